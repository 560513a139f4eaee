package pageserver

import (
	"context"
	"sync"

	"github.com/livefir/pageserver/internal/manifest"
	"github.com/livefir/pageserver/internal/modules"
	"github.com/livefir/pageserver/internal/trace"
	"github.com/rs/zerolog"
)

// ErrorPathname is the route every built-in error page is mounted at
const ErrorPathname = "/_error"

// PageConfig holds the per-page options a page module can export.
// Built-in error pages set none of them.
type PageConfig struct {
	AMP         string `json:"amp,omitempty"`
	RuntimeEnv  string `json:"runtime,omitempty"`
	MaxDuration int    `json:"maxDuration,omitempty"`
	BodyParser  *bool  `json:"bodyParser,omitempty"`
}

// ManifestItem lists the chunks of one lazily-loaded module
type ManifestItem struct {
	ID    any      `json:"id"` // number or string, as emitted by the bundler
	Files []string `json:"files"`
}

// LoadableManifest maps lazily-loaded module IDs to their chunks
type LoadableManifest map[string]ManifestItem

// ComponentBundle is everything the render pipeline needs to render a page.
//
// A bundle is built fresh by every load and is never mutated afterwards.
type ComponentBundle struct {
	Component             *modules.Page
	App                   *modules.App
	Document              *modules.Document
	PageConfig            PageConfig
	BuildManifest         *manifest.BuildManifest
	ReactLoadableManifest LoadableManifest

	// ComponentMod is the raw page module, kept for callers that need more
	// than the component, such as its route module
	ComponentMod *modules.Module
	RouteModule  *modules.RouteModule

	// SubresourceIntegrityManifest is only filled by loaders serving user pages
	SubresourceIntegrityManifest map[string]string

	IsAppPath bool
	Pathname  string
}

// ManifestReader reads the build manifest at path
type ManifestReader func(ctx context.Context, path string) (*manifest.BuildManifest, error)

// Loader assembles component bundles out of a module registry and a dist directory
type Loader struct {
	registry     *modules.Registry
	readManifest ManifestReader
	tracer       *trace.Tracer
	logger       zerolog.Logger

	loadDefaultErrorComponents func(context.Context, string) (*ComponentBundle, error)
}

// Option configures a Loader
type Option func(*Loader)

// WithRegistry sets the registry modules are required from
func WithRegistry(r *modules.Registry) Option {
	return func(l *Loader) {
		l.registry = r
	}
}

// WithManifestReader sets how build manifests are read
func WithManifestReader(read ManifestReader) Option {
	return func(l *Loader) {
		l.readManifest = read
	}
}

// WithTracer sets the tracer loads are recorded under
func WithTracer(t *trace.Tracer) Option {
	return func(l *Loader) {
		l.tracer = t
	}
}

// WithLogger sets the loader's logger
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) {
		l.logger = logger
	}
}

// NewLoader creates a loader. By default it uses the built-in module registry,
// reads manifests with manifest.LoadManifestWithRetries defaults and traces
// into a private collector.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{
		registry:     modules.DefaultRegistry(),
		readManifest: manifest.Reader{}.Read,
		tracer:       trace.New(),
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}

	l.loadDefaultErrorComponents = trace.Wrap(l.tracer, trace.SpanLoadDefaultErrorComponents, l.loadDefaultErrorComponentsImpl)
	return l
}

// Tracer returns the tracer loads are recorded under
func (l *Loader) Tracer() *trace.Tracer {
	return l.tracer
}

// LoadDefaultErrorComponents loads the built-in error page, its App and
// Document shells and the fallback build manifest of distDir. Any failure is
// returned as is and no partial bundle is produced.
func (l *Loader) LoadDefaultErrorComponents(ctx context.Context, distDir string) (*ComponentBundle, error) {
	return l.loadDefaultErrorComponents(ctx, distDir)
}

func (l *Loader) loadDefaultErrorComponentsImpl(ctx context.Context, distDir string) (*ComponentBundle, error) {
	documentMod, err := l.registry.Require(modules.DocumentModuleID)
	if err != nil {
		return nil, err
	}
	document, err := modules.ResolveDefaultExport[*modules.Document](documentMod)
	if err != nil {
		return nil, err
	}

	appMod, err := l.registry.Require(modules.AppModuleID)
	if err != nil {
		return nil, err
	}
	app, err := modules.ResolveDefaultExport[*modules.App](appMod)
	if err != nil {
		return nil, err
	}

	componentMod, err := l.registry.Require(modules.ErrorRouteModuleID)
	if err != nil {
		return nil, err
	}
	routeModule, err := modules.ExportAs[*modules.RouteModule](componentMod, modules.RouteExport)
	if err != nil {
		return nil, err
	}
	if routeModule.Userland.Default == nil {
		return nil, modules.ErrMalformedModule{ID: componentMod.ID, Reason: "route module has no userland default export"}
	}

	buildManifest, err := l.readManifest(ctx, manifest.FallbackPath(distDir))
	if err != nil {
		return nil, err
	}

	l.logger.Debug().
		Str("dist_dir", distDir).
		Int("pages", len(buildManifest.Pages)).
		Msg("default error components loaded")

	return &ComponentBundle{
		Component:             routeModule.Userland.Default,
		App:                   app,
		Document:              document,
		PageConfig:            PageConfig{},
		BuildManifest:         buildManifest,
		ReactLoadableManifest: LoadableManifest{},
		ComponentMod:          componentMod,
		RouteModule:           routeModule,
		Pathname:              ErrorPathname,
	}, nil
}

var defaultLoader = sync.OnceValue(func() *Loader {
	return NewLoader()
})

// LoadDefaultErrorComponents loads the default error components with the
// process-wide default loader
func LoadDefaultErrorComponents(ctx context.Context, distDir string) (*ComponentBundle, error) {
	return defaultLoader().LoadDefaultErrorComponents(ctx, distDir)
}
