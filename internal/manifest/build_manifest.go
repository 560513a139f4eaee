package manifest

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/go-json-experiment/json"
	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-retry"
)

const (
	// BuildManifestFile is the file name of the build manifest in a dist directory
	BuildManifestFile = "build-manifest.json"

	// FallbackPrefix prefixes the build manifest written for the fallback error page
	FallbackPrefix = "fallback-"

	// DefaultAttempts is the number of reads LoadManifestWithRetries makes by default
	DefaultAttempts = 3

	// DefaultDelay is the pause between two read attempts
	DefaultDelay = 100 * time.Millisecond
)

// BuildManifest maps pages to the static files a client must fetch to render them
type BuildManifest struct {
	DevFiles         []string            `json:"devFiles" validate:"dive,required"`
	AmpDevFiles      []string            `json:"ampDevFiles" validate:"dive,required"`
	PolyfillFiles    []string            `json:"polyfillFiles" validate:"dive,required"`
	LowPriorityFiles []string            `json:"lowPriorityFiles" validate:"dive,required"`
	RootMainFiles    []string            `json:"rootMainFiles" validate:"dive,required"`
	Pages            map[string][]string `json:"pages" validate:"required,dive,keys,startswith=/,endkeys,dive,required"`
	AmpFirstPages    []string            `json:"ampFirstPages" validate:"dive,startswith=/"`
}

// Files returns the files of a page, or nil when the page is not in the manifest
func (m *BuildManifest) Files(page string) []string {
	if m == nil {
		return nil
	}
	return m.Pages[page]
}

var validate = validator.New()

// Validate checks the manifest's structure
func (m *BuildManifest) Validate() error {
	return validate.Struct(m)
}

// LoadManifest reads, decodes and validates the build manifest at path
func LoadManifest(path string) (*BuildManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ManifestError{Path: path, Op: OpRead, Err: err}
	}

	var m BuildManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &ManifestError{Path: path, Op: OpParse, Err: err}
	}

	if err := m.Validate(); err != nil {
		return nil, &ManifestError{Path: path, Op: OpValidate, Err: err}
	}

	return &m, nil
}

// LoadManifestWithRetries calls LoadManifest until it succeeds or attempts
// are used up, waiting DefaultDelay between reads. A manifest being written
// by a concurrent build can fail to read or parse for a short while. When
// attempts run out the last error is returned unchanged.
func LoadManifestWithRetries(ctx context.Context, path string, attempts int) (*BuildManifest, error) {
	return Reader{Attempts: attempts}.Read(ctx, path)
}

// Reader loads manifests with a configurable retry policy
type Reader struct {
	Attempts int           // Total reads, <= 0 means DefaultAttempts
	Delay    time.Duration // Pause between reads, <= 0 means DefaultDelay
}

// Read loads the manifest at path, retrying on any failure
func (r Reader) Read(ctx context.Context, path string) (*BuildManifest, error) {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}
	delay := r.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}

	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.NewConstant(delay))

	var m *BuildManifest
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		loaded, err := LoadManifest(path)
		if err != nil {
			return retry.RetryableError(err)
		}
		m = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	return m, nil
}

// FallbackPath returns the path of the fallback build manifest inside distDir
func FallbackPath(distDir string) string {
	return filepath.Join(distDir, FallbackPrefix+BuildManifestFile)
}
