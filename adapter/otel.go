package adapter

import (
	"go.opentelemetry.io/otel"

	"github.com/srediag/plugin-ctc/pkg/ctc"
)

const instrumentationName = "github.com/srediag/plugin-ctc"

// Instrument points cfg at the global OpenTelemetry providers. Fields that
// are already set are kept.
func Instrument(cfg *ctc.Config) *ctc.Config {
	if cfg.Meter == nil {
		cfg.Meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}
	return cfg
}
