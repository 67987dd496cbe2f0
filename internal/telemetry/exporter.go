package telemetry

import (
	"fmt"
	"io"
	"os"

	texporter "github.com/GoogleCloudPlatform/opentelemetry-operations-go/exporter/trace"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Span exporters selectable by configuration.
const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterGCP    = "gcp"
)

// ExporterConfig selects where finished spans go.
type ExporterConfig struct {
	Kind string
	// ProjectID is the Cloud Trace project for the gcp exporter.
	ProjectID string
	// Writer receives stdout spans. Defaults to os.Stdout.
	Writer io.Writer
}

// NewExporter builds the configured span exporter. ExporterNone returns nil.
func NewExporter(cfg ExporterConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Kind {
	case "", ExporterNone:
		return nil, nil
	case ExporterStdout:
		w := cfg.Writer
		if w == nil {
			w = os.Stdout
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	case ExporterGCP:
		if cfg.ProjectID == "" {
			return nil, fmt.Errorf("gcp exporter requires a project id")
		}
		exp, err := texporter.New(texporter.WithProjectID(cfg.ProjectID))
		if err != nil {
			return nil, fmt.Errorf("create cloud trace exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unknown span exporter %q", cfg.Kind)
	}
}
