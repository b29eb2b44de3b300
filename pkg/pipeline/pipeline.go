package pipeline

import (
	"log/slog"

	"github.com/univox/univox/pkg/frames"
)

// FrameProcessor is one stage of a pipeline. Process runs on the host
// pipeline's scheduling turn and returns the frames to hand downstream.
type FrameProcessor interface {
	Process(frames.Frame) ([]frames.Frame, error)
	Name() string
}

// Chain feeds each processor's output into the next, sequentially, on the
// caller's turn. It is plumbing for composition and tests, not a scheduler;
// frame scheduling stays with the host pipeline.
type Chain struct {
	procs []FrameProcessor
}

func NewChain(procs ...FrameProcessor) *Chain {
	return &Chain{procs: procs}
}

func (c *Chain) Name() string { return "chain" }

func (c *Chain) Process(f frames.Frame) ([]frames.Frame, error) {
	in := []frames.Frame{f}
	for _, p := range c.procs {
		out := make([]frames.Frame, 0, len(in))
		for _, frame := range in {
			res, err := p.Process(frame)
			if err != nil {
				slog.Error("processor_error",
					slog.String("processor", p.Name()),
					slog.String("error", err.Error()))
				continue
			}
			out = append(out, res...)
		}
		in = out
	}
	return in, nil
}
