package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/magfield.report/internal/version"
)

const defaultDBPath = "magmap.db"

func main() {
	flag.Usage = func() { printUsage(os.Stdout) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stdout)
		os.Exit(1)
	}

	os.Exit(run(flag.Arg(0), flag.Args()[1:], os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(command string, args []string, stdout, stderr io.Writer) int {
	var err error
	switch command {
	case "serve":
		err = runServe(args, stderr)
	case "migrate":
		err = runMigrate(args, stdout)
	case "export":
		err = runExport(args, stdout)
	case "render":
		err = runRender(args, stdout)
	case "upload":
		err = runUpload(args, stdout)
	case "version":
		fmt.Fprintln(stdout, version.String("magmap"))
	case "help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", command)
		printUsage(stderr)
		return 1
	}

	if errors.Is(err, flag.ErrHelp) {
		return 0
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `magmap - magnetic field mapping from phone sensor walks

Usage: magmap <command> [options]

Commands:
  serve      Run the ingest and mapping HTTP server
  migrate    Manage database schema migrations (up, down, status, ...)
  export     Write stored measurements as CSV
  render     Render paths or a heatmap to HTML, PNG, SVG or PDF
  upload     Post a recorded sample file to a running server
  version    Show magmap version
  help       Show this help message

Examples:
  # Serve on :8080 and ingest from the USB logger
  magmap serve --serial-port /dev/ttyUSB0 --config config/magmap.defaults.json

  # Heatmap of one walk as a PNG
  magmap render --kind heatmap --session hallway --output hallway.png

  # Replay a logger capture against a server
  magmap upload --server http://localhost:8080 --file walk.ndjson --session hallway

Run 'magmap <command> -h' for the options of a command.`)
}
