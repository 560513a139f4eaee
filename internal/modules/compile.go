package modules

import (
	"fmt"
	"html/template"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/html"
	"golang.org/x/net/html/atom"

	nethtml "golang.org/x/net/html"
)

var (
	minifier *minify.M
	once     sync.Once
)

// getMinifier returns an HTML minifier that leaves template actions intact
func getMinifier() *minify.M {
	once.Do(func() {
		minifier = minify.New()
		minifier.Add("text/html", &html.Minifier{
			KeepDocumentTags: true,
			KeepEndTags:      true,
			KeepQuotes:       true,
			TemplateDelims:   [2]string{"{{", "}}"},
		})
	})
	return minifier
}

// minifySource minifies template source, falling back to the original on failure
func minifySource(src string) string {
	minified, err := getMinifier().String("text/html", src)
	if err != nil {
		return src
	}
	return minified
}

// compile builds a Module from a validated descriptor and its template files
func compile(fsys fs.FS, dir string, d *Descriptor, minifyEnabled bool) (*Module, error) {
	tmpl, err := parseTemplates(fsys, dir, d, minifyEnabled)
	if err != nil {
		return nil, err
	}
	unit := Template{name: d.Templates[0], tmpl: tmpl}

	switch d.Kind {
	case KindDocument:
		if err := checkDocument(d.ID, tmpl); err != nil {
			return nil, err
		}
		return &Module{
			ID:       d.ID,
			ESModule: true,
			Exports:  map[string]any{DefaultExport: &Document{unit}},
		}, nil

	case KindApp:
		return &Module{
			ID:       d.ID,
			ESModule: true,
			Exports:  map[string]any{DefaultExport: &App{unit}},
		}, nil

	case KindRoute:
		rm := &RouteModule{
			Definition: RouteDefinition{
				Kind:       d.Route.Kind,
				Page:       d.Route.Page,
				Pathname:   d.Route.Pathname,
				Filename:   d.Route.Filename,
				BundlePath: d.Route.BundlePath,
			},
			Userland: Userland{Default: &Page{unit}},
		}
		return &Module{
			ID:      d.ID,
			Exports: map[string]any{RouteExport: rm},
		}, nil
	}

	return nil, ErrMalformedModule{ID: d.ID, Reason: fmt.Sprintf("unknown module kind %q", d.Kind)}
}

// parseTemplates parses every template file of a descriptor into one set; the
// first file is the entry template
func parseTemplates(fsys fs.FS, dir string, d *Descriptor, minifyEnabled bool) (*template.Template, error) {
	var root *template.Template

	for _, filename := range d.Templates {
		templatePath := path.Join(dir, filename)
		data, err := fs.ReadFile(fsys, templatePath)
		if err != nil {
			return nil, ErrTemplateParse{
				Path: templatePath,
				Err:  fmt.Errorf("failed to read template file: %w", err),
			}
		}

		src := string(data)
		if d.Minify && minifyEnabled {
			src = minifySource(src)
		}

		var t *template.Template
		if root == nil {
			root = template.New(filename)
			t = root
		} else {
			t = root.New(filename)
		}

		if _, err := t.Parse(src); err != nil {
			return nil, ErrTemplateParse{
				Path: templatePath,
				Err:  fmt.Errorf("failed to parse template: %w", err),
			}
		}
	}

	return root, nil
}

// checkDocument verifies a document template renders an explicit body element
func checkDocument(id string, tmpl *template.Template) error {
	var sb strings.Builder
	if err := tmpl.Execute(&sb, DocumentProps{}); err != nil {
		return ErrMalformedModule{ID: id, Reason: fmt.Sprintf("document does not render: %v", err)}
	}

	z := nethtml.NewTokenizer(strings.NewReader(sb.String()))
	for {
		switch z.Next() {
		case nethtml.ErrorToken:
			return ErrMalformedModule{ID: id, Reason: "document has no body element"}
		case nethtml.StartTagToken:
			name, _ := z.TagName()
			if atom.Lookup(name) == atom.Body {
				return nil
			}
		}
	}
}
