package modules

import (
	"html/template"
	"io"
	"net/http"
)

// Template is a compiled, renderable unit backed by html/template
type Template struct {
	name string
	tmpl *template.Template
}

// Name returns the template name the unit was compiled under
func (t *Template) Name() string {
	return t.name
}

// Render executes the template against data
func (t *Template) Render(w io.Writer, data any) error {
	return t.tmpl.Execute(w, data)
}

// Document is the outermost shell every page renders inside of
type Document struct{ Template }

// App wraps every page component inside the Document
type App struct{ Template }

// Page is a page body component
type Page struct{ Template }

// DocumentProps is the data a Document renders
type DocumentProps struct {
	Title   string
	Scripts []string
	Body    template.HTML
}

// AppProps is the data an App renders
type AppProps struct {
	Component template.HTML
	PageProps any
}

// ErrorPageProps is the data the built-in error page renders
type ErrorPageProps struct {
	StatusCode int
	Title      string
}

// ErrorProps returns the props for rendering the built-in error page with a status code
func ErrorProps(statusCode int) ErrorPageProps {
	title := "An unexpected error has occurred"
	switch {
	case statusCode == http.StatusNotFound:
		title = "This page could not be found"
	case http.StatusText(statusCode) != "":
		title = http.StatusText(statusCode)
	}
	return ErrorPageProps{StatusCode: statusCode, Title: title}
}
