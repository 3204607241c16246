package engine

import (
	"github.com/starload/starload/internal/metrics"
	"github.com/starload/starload/internal/metrics/datadog"
	"github.com/starload/starload/internal/metrics/prompush"
)

// SetupMetrics installs the configured metrics backend. The returned func
// flushes buffered metrics and should be called once the command finishes.
func (e *Engine) SetupMetrics() (func(), error) {
	m := e.Config.Metrics

	var backend metrics.Backend
	switch m.Backend {
	case "prometheus":
		b, err := prompush.NewBackend(m.Job, m.PushgatewayURL)
		if err != nil {
			return nil, err
		}
		backend = b
	case "datadog":
		b, err := datadog.NewBackend(datadog.Config{
			Addr:       m.StatsdAddr,
			Namespace:  m.Namespace,
			GlobalTags: m.Tags,
		})
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return func() {}, nil
	}

	metrics.SetBackend(backend)
	e.Logger.Debug("metrics backend installed", "backend", m.Backend)
	return func() {
		if err := metrics.Flush(); err != nil {
			e.Logger.Warn("flushing metrics", "backend", m.Backend, "error", err)
		}
	}, nil
}
