// Package cobra adapts the Picovoice Cobra voice-probability model to the
// pipeline's VAD analyzer capability. Cobra operates at 16 kHz mono with a
// fixed native frame length; the adapter does not resample.
package cobra

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	pvcobra "github.com/Picovoice/cobra/binding/go/v2"

	"github.com/univox/univox/pkg/adapters/vad"
	"github.com/univox/univox/pkg/errorsx"
	"github.com/univox/univox/pkg/logging"
)

// engine is the slice of the native runtime the analyzer drives.
type engine interface {
	Process(pcm []int16) (float32, error)
	Delete() error
}

// newEngine is swapped in tests to avoid loading the native library.
var newEngine = func(accessKey string) (engine, error) {
	c := pvcobra.NewCobra(accessKey)
	if err := c.Init(); err != nil {
		return nil, fmt.Errorf("init cobra runtime: %w", err)
	}
	return &c, nil
}

type Config struct {
	AccessKey string
}

// Analyzer wraps a native Cobra handle. Stateless across calls beyond the
// handle itself; Close must be called to release the native resource.
type Analyzer struct {
	eng         engine
	frameLength int
	sampleRate  int
	logger      *slog.Logger
}

// New fails immediately without an access credential, and when the native
// runtime cannot be initialized.
func New(cfg Config) (*Analyzer, error) {
	if cfg.AccessKey == "" {
		return nil, errorsx.Wrap(errors.New("cobra vad requires a picovoice access key"), errorsx.ReasonConfig)
	}
	eng, err := newEngine(cfg.AccessKey)
	if err != nil {
		return nil, errorsx.Wrap(err, errorsx.ReasonVADInit)
	}
	a := &Analyzer{
		eng:         eng,
		frameLength: pvcobra.FrameLength,
		sampleRate:  pvcobra.SampleRate,
		logger:      logging.NewComponentLogger(slog.Default(), "cobra_vad"),
	}
	a.logger.Debug("cobra_vad_loaded",
		slog.Int("sample_rate", a.sampleRate),
		slog.Int("frame_length", a.frameLength))
	return a, nil
}

func (a *Analyzer) Name() string { return "cobra" }

// SetSampleRate rejects anything but 16 kHz; the adapter does not resample.
func (a *Analyzer) SetSampleRate(rate int) error {
	if rate != a.sampleRate {
		return errorsx.Wrap(
			fmt.Errorf("cobra vad requires %d Hz sample rate (received: %d)", a.sampleRate, rate),
			errorsx.ReasonConfig)
	}
	return nil
}

// NumFramesRequired returns the number of PCM samples the native model
// expects per VoiceConfidence call.
func (a *Analyzer) NumFramesRequired() int { return a.frameLength }

// VoiceConfidence returns the voice probability for one raw 16-bit
// little-endian PCM buffer, clamped into [0, 1]. Failures degrade to 0 so a
// misbehaving VAD can never interrupt the audio pipeline.
func (a *Analyzer) VoiceConfidence(buf []byte) float32 {
	if a.eng == nil {
		return 0.0
	}
	pcm := decodePCM16LE(buf)
	if len(pcm) != a.frameLength {
		a.logger.Error("cobra_vad_bad_frame",
			slog.Int("samples", len(pcm)),
			slog.Int("expected", a.frameLength))
		return 0.0
	}
	prob, err := a.eng.Process(pcm)
	if err != nil {
		a.logger.Error("cobra_vad_process_error",
			slog.String("reason_code", string(errorsx.ReasonVADProcess)),
			slog.String("error", err.Error()))
		return 0.0
	}
	if prob < 0.0 {
		return 0.0
	}
	if prob > 1.0 {
		return 1.0
	}
	return prob
}

// Close releases the native handle. Nothing collects it automatically.
func (a *Analyzer) Close() error {
	if a.eng == nil {
		return nil
	}
	err := a.eng.Delete()
	a.eng = nil
	return err
}

func decodePCM16LE(buf []byte) []int16 {
	pcm := make([]int16, len(buf)/2)
	for i := range pcm {
		pcm[i] = int16(binary.LittleEndian.Uint16(buf[2*i:]))
	}
	return pcm
}

var _ vad.Analyzer = (*Analyzer)(nil)
