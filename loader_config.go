package pageserver

import (
	"github.com/livefir/pageserver/internal/config"
	"github.com/livefir/pageserver/internal/manifest"
	"github.com/livefir/pageserver/internal/metrics"
	"github.com/livefir/pageserver/internal/modules"
	"github.com/livefir/pageserver/internal/trace"
	"github.com/rs/zerolog"
)

// NewLoaderFromConfig creates a loader whose registry, manifest retry policy,
// tracer and logger follow cfg. Extra options are applied last.
func NewLoaderFromConfig(cfg *config.Config, logger zerolog.Logger, opts ...Option) *Loader {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}

	reader := manifest.Reader{
		Attempts: cfg.Manifest.Attempts,
		Delay:    cfg.Manifest.Delay,
	}

	base := []Option{
		WithRegistry(modules.NewRegistry(
			modules.Builtin(),
			modules.WithMinify(cfg.Modules.Minify),
			modules.WithLogger(logger),
		)),
		WithManifestReader(reader.Read),
		WithTracer(trace.New(
			trace.WithLogger(logger),
			trace.WithCollector(metrics.NewCollector()),
		)),
		WithLogger(logger),
	}

	return NewLoader(append(base, opts...)...)
}
