package main

import (
	"fmt"
	"os"
	"runtime/debug"
)

// Version information (can be overridden at build time with -ldflags)
var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error

	switch command {
	case "inspect":
		err = runInspect(args, os.Stdout, os.Stderr)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("lvt-errorpage version %s\n", version)

	if info, ok := debug.ReadBuildInfo(); ok {
		revision := commit
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && revision == "unknown" {
				revision = setting.Value
			}
		}
		if len(revision) > 12 {
			revision = revision[:12]
		}
		fmt.Printf("commit: %s\n", revision)
		fmt.Printf("go: %s\n", info.GoVersion)
	}
}

func printUsage() {
	fmt.Println("Built-in error page inspector")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lvt-errorpage inspect <dist-dir> [flags]   Load the default error components of a build")
	fmt.Println("  lvt-errorpage version                      Show version information")
	fmt.Println()
	fmt.Println("Inspect Flags:")
	fmt.Println("  --config <file>      Runtime config (default <dist-dir>/pageserver.yaml)")
	fmt.Println("  --log-level <level>  Override the configured log level")
	fmt.Println("  --metrics            Print span metrics after loading")
}
