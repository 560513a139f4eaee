package pageserver

import (
	"context"
	"errors"
	"html/template"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/livefir/pageserver/internal/config"
	"github.com/livefir/pageserver/internal/manifest"
	"github.com/livefir/pageserver/internal/modules"
	"github.com/livefir/pageserver/internal/trace"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const fallbackManifest = `{
  "devFiles": [],
  "ampDevFiles": [],
  "polyfillFiles": ["static/chunks/polyfills.js"],
  "lowPriorityFiles": [],
  "rootMainFiles": [],
  "pages": {
    "/_app": ["static/chunks/webpack.js", "static/chunks/framework.js", "static/chunks/main.js", "static/chunks/pages/_app.js"],
    "/_error": ["static/chunks/webpack.js", "static/chunks/framework.js", "static/chunks/main.js", "static/chunks/pages/_error.js"]
  },
  "ampFirstPages": []
}`

func expectedManifest() *manifest.BuildManifest {
	return &manifest.BuildManifest{
		DevFiles:         []string{},
		AmpDevFiles:      []string{},
		PolyfillFiles:    []string{"static/chunks/polyfills.js"},
		LowPriorityFiles: []string{},
		RootMainFiles:    []string{},
		Pages: map[string][]string{
			"/_app":   {"static/chunks/webpack.js", "static/chunks/framework.js", "static/chunks/main.js", "static/chunks/pages/_app.js"},
			"/_error": {"static/chunks/webpack.js", "static/chunks/framework.js", "static/chunks/main.js", "static/chunks/pages/_error.js"},
		},
		AmpFirstPages: []string{},
	}
}

// setupDistDir creates a dist directory holding a fallback build manifest
func setupDistDir(t *testing.T) string {
	t.Helper()
	distDir := t.TempDir()
	path := filepath.Join(distDir, "fallback-"+manifest.BuildManifestFile)
	if err := os.WriteFile(path, []byte(fallbackManifest), 0644); err != nil {
		t.Fatalf("Failed to write fallback manifest: %v", err)
	}
	return distDir
}

func fastLoader(opts ...Option) *Loader {
	reader := manifest.Reader{Attempts: 2, Delay: time.Millisecond}
	base := []Option{
		WithRegistry(modules.NewRegistry(modules.Builtin())),
		WithManifestReader(reader.Read),
	}
	return NewLoader(append(base, opts...)...)
}

func TestLoadDefaultErrorComponents(t *testing.T) {
	distDir := setupDistDir(t)
	loader := fastLoader()

	bundle, err := loader.LoadDefaultErrorComponents(context.Background(), distDir)
	if err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}

	if bundle.Pathname != "/_error" {
		t.Errorf("Pathname = %q, want %q", bundle.Pathname, "/_error")
	}
	if bundle.PageConfig != (PageConfig{}) {
		t.Errorf("PageConfig = %+v, want empty", bundle.PageConfig)
	}
	if bundle.ReactLoadableManifest == nil || len(bundle.ReactLoadableManifest) != 0 {
		t.Errorf("ReactLoadableManifest = %v, want empty map", bundle.ReactLoadableManifest)
	}
	if !reflect.DeepEqual(bundle.BuildManifest, expectedManifest()) {
		t.Errorf("BuildManifest = %+v, want %+v", bundle.BuildManifest, expectedManifest())
	}
	if bundle.IsAppPath {
		t.Error("IsAppPath should be false for built-in error pages")
	}
	if bundle.SubresourceIntegrityManifest != nil {
		t.Error("SubresourceIntegrityManifest should not be set")
	}
	if bundle.Component == nil || bundle.App == nil || bundle.Document == nil {
		t.Fatalf("expected all components to be set: %+v", bundle)
	}
}

func TestLoadDefaultErrorComponents_RouteModuleIdentity(t *testing.T) {
	distDir := setupDistDir(t)
	loader := fastLoader()

	bundle, err := loader.LoadDefaultErrorComponents(context.Background(), distDir)
	if err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}

	exported, ok := bundle.ComponentMod.Export(modules.RouteExport)
	if !ok {
		t.Fatal("ComponentMod has no routeModule export")
	}
	if exported != any(bundle.RouteModule) {
		t.Error("RouteModule must be the ComponentMod's routeModule export")
	}
	if bundle.Component != bundle.RouteModule.Userland.Default {
		t.Error("Component must be the route module's userland default")
	}
	if bundle.ComponentMod.ID != modules.ErrorRouteModuleID {
		t.Errorf("ComponentMod.ID = %q", bundle.ComponentMod.ID)
	}
	if bundle.RouteModule.Definition.Pathname != bundle.Pathname {
		t.Errorf("route pathname %q does not match bundle pathname %q",
			bundle.RouteModule.Definition.Pathname, bundle.Pathname)
	}
}

func TestLoadDefaultErrorComponents_MissingManifest(t *testing.T) {
	loader := fastLoader()

	bundle, err := loader.LoadDefaultErrorComponents(context.Background(), t.TempDir())
	if err == nil {
		t.Fatal("expected error for dist dir without fallback manifest")
	}
	if bundle != nil {
		t.Errorf("expected no bundle on failure, got %+v", bundle)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("expected fs.ErrNotExist, got %v", err)
	}
	var merr *manifest.ManifestError
	if !errors.As(err, &merr) {
		t.Errorf("expected *manifest.ManifestError, got %T", err)
	}
}

func TestLoadDefaultErrorComponents_MalformedManifest(t *testing.T) {
	distDir := t.TempDir()
	path := filepath.Join(distDir, "fallback-"+manifest.BuildManifestFile)
	if err := os.WriteFile(path, []byte(`{"pages": `), 0644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}

	bundle, err := fastLoader().LoadDefaultErrorComponents(context.Background(), distDir)
	if err == nil || bundle != nil {
		t.Fatalf("expected parse failure, got bundle=%v err=%v", bundle, err)
	}
	var merr *manifest.ManifestError
	if !errors.As(err, &merr) || merr.Op != manifest.OpParse {
		t.Errorf("expected parse *manifest.ManifestError, got %v", err)
	}
}

func TestLoadDefaultErrorComponents_ManifestErrorUnchanged(t *testing.T) {
	sentinel := errors.New("retries exhausted")
	var gotPath string

	loader := fastLoader(WithManifestReader(func(ctx context.Context, path string) (*manifest.BuildManifest, error) {
		gotPath = path
		return nil, sentinel
	}))

	distDir := filepath.Join("srv", "app", ".lvt")
	_, err := loader.LoadDefaultErrorComponents(context.Background(), distDir)
	if err != sentinel {
		t.Errorf("error = %v, want the reader's error unchanged", err)
	}

	want := filepath.Join(distDir, "fallback-build-manifest.json")
	if gotPath != want {
		t.Errorf("manifest path = %q, want %q", gotPath, want)
	}
}

func TestLoadDefaultErrorComponents_ModuleErrors(t *testing.T) {
	reads := 0
	reader := func(ctx context.Context, path string) (*manifest.BuildManifest, error) {
		reads++
		return expectedManifest(), nil
	}

	t.Run("MissingModules", func(t *testing.T) {
		loader := NewLoader(
			WithRegistry(modules.NewRegistry(fstest.MapFS{})),
			WithManifestReader(reader),
		)

		_, err := loader.LoadDefaultErrorComponents(context.Background(), t.TempDir())
		var notFound modules.ErrModuleNotFound
		if !errors.As(err, &notFound) {
			t.Fatalf("expected ErrModuleNotFound, got %v", err)
		}
		if notFound.ID != modules.DocumentModuleID {
			t.Errorf("first missing module = %q, want %q", notFound.ID, modules.DocumentModuleID)
		}
	})

	t.Run("AppWithoutDefault", func(t *testing.T) {
		fsys := fstest.MapFS{}
		for path, file := range builtinFiles(t) {
			fsys[path] = file
		}
		// An app module compiled as a route has no default export
		fsys["dist/pages/_app/module.yaml"] = &fstest.MapFile{Data: []byte(
			"id: lvt/dist/pages/_app\nkind: route\ntemplates: [app.html]\nroute:\n  kind: PAGES\n  page: /_app\n  pathname: /_app\n",
		)}

		loader := NewLoader(
			WithRegistry(modules.NewRegistry(fsys)),
			WithManifestReader(reader),
		)

		_, err := loader.LoadDefaultErrorComponents(context.Background(), t.TempDir())
		var malformed modules.ErrMalformedModule
		if !errors.As(err, &malformed) {
			t.Fatalf("expected ErrMalformedModule, got %v", err)
		}
		if malformed.ID != modules.AppModuleID {
			t.Errorf("malformed module = %q, want %q", malformed.ID, modules.AppModuleID)
		}
	})

	if reads != 0 {
		t.Errorf("manifest must not be read when a module fails to load, got %d reads", reads)
	}
}

// builtinFiles copies the embedded built-in modules into a map
func builtinFiles(t *testing.T) fstest.MapFS {
	t.Helper()
	files := fstest.MapFS{}
	err := fs.WalkDir(modules.Builtin(), ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := fs.ReadFile(modules.Builtin(), path)
		if err != nil {
			return err
		}
		files[path] = &fstest.MapFile{Data: data}
		return nil
	})
	if err != nil {
		t.Fatalf("Failed to copy built-in modules: %v", err)
	}
	return files
}

func TestLoadDefaultErrorComponents_Concurrent(t *testing.T) {
	distDir := setupDistDir(t)
	loader := fastLoader()

	const n = 8
	bundles := make([]*ComponentBundle, n)
	errs := make([]error, n)

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bundles[i], errs[i] = loader.LoadDefaultErrorComponents(context.Background(), distDir)
		}(i)
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("load #%d error = %v", i, errs[i])
		}
	}

	for i := 1; i < n; i++ {
		if bundles[i] == bundles[0] {
			t.Errorf("load #%d returned the same bundle pointer", i)
		}
		if bundles[i].BuildManifest == bundles[0].BuildManifest {
			t.Errorf("load #%d shares its build manifest", i)
		}
		if !reflect.DeepEqual(*bundles[i], *bundles[0]) {
			t.Errorf("load #%d bundle is not value-equal to load #0", i)
		}
	}

	// Mutating one bundle must not leak into another
	bundles[0].BuildManifest.Pages["/_error"] = nil
	bundles[0].ReactLoadableManifest["x"] = ManifestItem{ID: 1}
	if len(bundles[1].BuildManifest.Pages["/_error"]) == 0 {
		t.Error("build manifest state leaked between bundles")
	}
	if len(bundles[1].ReactLoadableManifest) != 0 {
		t.Error("loadable manifest state leaked between bundles")
	}
}

func TestLoadDefaultErrorComponents_ReadOnly(t *testing.T) {
	distDir := setupDistDir(t)

	type fileState struct {
		content string
		modTime time.Time
	}
	snapshot := func() map[string]fileState {
		state := make(map[string]fileState)
		err := filepath.WalkDir(distDir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			var content string
			if !d.IsDir() {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				content = string(data)
			}
			state[path] = fileState{content: content, modTime: info.ModTime()}
			return nil
		})
		if err != nil {
			t.Fatalf("Failed to snapshot dist dir: %v", err)
		}
		return state
	}

	before := snapshot()
	if _, err := fastLoader().LoadDefaultErrorComponents(context.Background(), distDir); err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}
	after := snapshot()

	if !reflect.DeepEqual(before, after) {
		t.Errorf("dist dir changed during load:\nbefore=%v\nafter=%v", before, after)
	}
}

func TestLoadDefaultErrorComponents_Traced(t *testing.T) {
	distDir := setupDistDir(t)
	loader := fastLoader()

	if _, err := loader.LoadDefaultErrorComponents(context.Background(), distDir); err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}
	if _, err := loader.LoadDefaultErrorComponents(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty dist dir")
	}

	span := loader.Tracer().Collector().Span(trace.SpanLoadDefaultErrorComponents)
	if span.Calls != 2 {
		t.Errorf("Calls = %d, want 2", span.Calls)
	}
	if span.Failures != 1 {
		t.Errorf("Failures = %d, want 1", span.Failures)
	}
	if span.Active != 0 {
		t.Errorf("Active = %d, want 0", span.Active)
	}
}

func TestLoadDefaultErrorComponents_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	loader := fastLoader(WithTracer(trace.New(trace.WithTracerProvider(tp))))

	if _, err := loader.LoadDefaultErrorComponents(context.Background(), setupDistDir(t)); err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}
	if _, err := loader.LoadDefaultErrorComponents(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty dist dir")
	}

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 ended spans, got %d", len(spans))
	}
	for _, s := range spans {
		if s.Name() != trace.SpanLoadDefaultErrorComponents {
			t.Errorf("span name = %q, want %q", s.Name(), trace.SpanLoadDefaultErrorComponents)
		}
	}
	if spans[0].Status().Code != codes.Ok {
		t.Errorf("successful load status = %v, want Ok", spans[0].Status().Code)
	}
	if spans[1].Status().Code != codes.Error {
		t.Errorf("failed load status = %v, want Error", spans[1].Status().Code)
	}
	if !strings.Contains(spans[1].Status().Description, manifest.BuildManifestFile) {
		t.Errorf("failed load description = %q", spans[1].Status().Description)
	}
}

func TestLoadDefaultErrorComponents_DefaultLoader(t *testing.T) {
	distDir := setupDistDir(t)

	bundle, err := LoadDefaultErrorComponents(context.Background(), distDir)
	if err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}
	if bundle.Pathname != ErrorPathname {
		t.Errorf("Pathname = %q", bundle.Pathname)
	}

	// The default loader shares the process-wide registry
	again, err := LoadDefaultErrorComponents(context.Background(), distDir)
	if err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}
	if again.ComponentMod != bundle.ComponentMod {
		t.Error("expected repeated loads to share the cached error route module")
	}
}

func TestComponentBundleRenders(t *testing.T) {
	distDir := setupDistDir(t)

	bundle, err := fastLoader().LoadDefaultErrorComponents(context.Background(), distDir)
	if err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}

	var page, app, doc strings.Builder
	if err := bundle.Component.Render(&page, modules.ErrorProps(500)); err != nil {
		t.Fatalf("Component.Render() error = %v", err)
	}
	if err := bundle.App.Render(&app, modules.AppProps{Component: template.HTML(page.String())}); err != nil {
		t.Fatalf("App.Render() error = %v", err)
	}
	err = bundle.Document.Render(&doc, modules.DocumentProps{
		Title:   "500: Internal Server Error",
		Scripts: bundle.BuildManifest.Files(bundle.Pathname),
		Body:    template.HTML(app.String()),
	})
	if err != nil {
		t.Fatalf("Document.Render() error = %v", err)
	}

	out := doc.String()
	for _, want := range []string{"Internal Server Error.", "static/chunks/pages/_error.js", "<body>"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered page missing %q:\n%s", want, out)
		}
	}
}

func TestNewLoaderFromConfig(t *testing.T) {
	distDir := setupDistDir(t)

	cfg := config.DefaultConfig()
	cfg.Manifest.Attempts = 1
	cfg.Modules.Minify = false

	loader := NewLoaderFromConfig(cfg, zerolog.Nop())
	bundle, err := loader.LoadDefaultErrorComponents(context.Background(), distDir)
	if err != nil {
		t.Fatalf("LoadDefaultErrorComponents() error = %v", err)
	}
	if !reflect.DeepEqual(bundle.BuildManifest, expectedManifest()) {
		t.Errorf("BuildManifest = %+v", bundle.BuildManifest)
	}

	start := time.Now()
	if _, err := loader.LoadDefaultErrorComponents(context.Background(), t.TempDir()); err == nil {
		t.Fatal("expected error for empty dist dir")
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("a single attempt should not wait between reads, took %v", elapsed)
	}
}
