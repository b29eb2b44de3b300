package univox

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/univox/univox/pkg/adapters/vad"
	"github.com/univox/univox/pkg/errorsx"
	"github.com/univox/univox/pkg/metrics"
	"github.com/univox/univox/pkg/vad/cobra"
)

// newCobra is swappable in tests to avoid loading the native runtime.
var newCobra = func(cfg cobra.Config) (vad.Analyzer, error) {
	a, err := cobra.New(cfg)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// BuildVADAnalyzer resolves the configured VAD backend. Selecting cobra
// without an access key is a hard error; a cobra runtime failure degrades to
// the silero fallback so the session can still run. The returned string is
// the backend actually in use, which is also recorded on the observer.
func BuildVADAnalyzer(cfg VADConfig, fallback func() vad.Analyzer, obs metrics.Observer) (vad.Analyzer, string, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch backend {
	case "", VADBackendSilero:
		return fallback(), recordVADSelected(obs, VADBackendSilero), nil
	case VADBackendCobra:
		if strings.TrimSpace(cfg.CobraAccessKey) == "" {
			return nil, "", errorsx.Wrap(
				errors.New("vad backend cobra selected but no access key configured"),
				errorsx.ReasonConfig)
		}
		analyzer, err := newCobra(cobra.Config{AccessKey: cfg.CobraAccessKey})
		if err != nil {
			slog.Warn("cobra_vad_unavailable",
				slog.String("reason_code", string(errorsx.Reason(err))),
				slog.String("error", err.Error()))
			return fallback(), recordVADSelected(obs, VADBackendSilero), nil
		}
		return analyzer, recordVADSelected(obs, VADBackendCobra), nil
	default:
		return nil, "", errorsx.Wrap(
			fmt.Errorf("unknown vad backend %q", cfg.Backend),
			errorsx.ReasonConfig)
	}
}

func recordVADSelected(obs metrics.Observer, backend string) string {
	if obs != nil {
		obs.RecordEvent(metrics.MetricsEvent{
			Name: metrics.EventVADSelected,
			Time: time.Now(),
			Tags: map[string]string{"backend": backend},
		})
	}
	return backend
}
