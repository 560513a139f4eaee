package main

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/livefir/pageserver"
	"github.com/livefir/pageserver/internal/config"
	"github.com/livefir/pageserver/internal/logging"
	"github.com/spf13/pflag"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle = lipgloss.NewStyle().Width(14).Foreground(lipgloss.Color("8"))
	fileStyle  = lipgloss.NewStyle().PaddingLeft(2)
)

// runInspect loads the default error components of a dist dir and prints a summary
func runInspect(args []string, stdout, stderr io.Writer) error {
	flags := pflag.NewFlagSet("inspect", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	configPath := flags.String("config", "", "runtime config file")
	logLevel := flags.String("log-level", "", "log level override")
	showMetrics := flags.Bool("metrics", false, "print span metrics")

	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("inspect requires exactly one dist directory")
	}
	distDir := flags.Arg(0)

	if *configPath == "" {
		*configPath = filepath.Join(distDir, config.ConfigFileName)
	}
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger, err := logging.New(stderr, cfg.Log)
	if err != nil {
		return err
	}

	loader := pageserver.NewLoaderFromConfig(cfg, logger)
	bundle, err := loader.LoadDefaultErrorComponents(context.Background(), distDir)
	if err != nil {
		return fmt.Errorf("failed to load default error components: %w", err)
	}

	printBundle(stdout, bundle)

	if *showMetrics {
		fmt.Fprintln(stdout)
		fmt.Fprintln(stdout, titleStyle.Render("Spans"))
		for _, span := range loader.Tracer().Collector().Spans() {
			fmt.Fprintf(stdout, "%s  calls=%d failures=%d avg=%s\n",
				span.Name, span.Calls, span.Failures, span.AverageDuration())
		}
	}

	return nil
}

func printBundle(w io.Writer, bundle *pageserver.ComponentBundle) {
	fmt.Fprintln(w, titleStyle.Render("Default error components"))
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("pathname"), bundle.Pathname)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("module"), bundle.ComponentMod.ID)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("route kind"), bundle.RouteModule.Definition.Kind)
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("component"), bundle.Component.Name())
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("app"), bundle.App.Name())
	fmt.Fprintf(w, "%s %s\n", labelStyle.Render("document"), bundle.Document.Name())

	pages := make([]string, 0, len(bundle.BuildManifest.Pages))
	for page := range bundle.BuildManifest.Pages {
		pages = append(pages, page)
	}
	sort.Strings(pages)

	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Build manifest (%d pages)", len(pages))))
	for _, page := range pages {
		fmt.Fprintln(w, page)
		fmt.Fprintln(w, fileStyle.Render(strings.Join(bundle.BuildManifest.Pages[page], "\n")))
	}
}
