package main

import (
	"fmt"
	"os"

	"github.com/hpungsan/nounimaging/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"serve": true, "run": true, "import": true,
	"list": true, "find": true, "set-image": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	// Known subcommand → CLI
	if cliCommands[arg] {
		return true
	}
	// Global flags (--data-dir, --config, --memory, --help, --version) → CLI
	if len(arg) > 1 && arg[0] == '-' {
		return true
	}
	return false
}

// isTerminalStdin returns true if stdin is a terminal (not piped).
func isTerminalStdin() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  nounimaging

  Keeps noun images in object storage and noun records in agreement

  Usage: nounimaging <command> [options]
         nounimaging --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminalStdin() {
		printBanner()
		return
	}

	rt := &runtime{}

	if isCLIMode() {
		app := newCLIApp(rt)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminalStdin() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'nounimaging --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default)
	if err := runMCP(rt); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// runMCP serves the MCP tools on stdio. Without usable object storage the
// imaging_run tool is withheld and the noun tools still work.
func runMCP(rt *runtime) error {
	if err := rt.open("", ""); err != nil {
		return err
	}
	defer rt.close()

	if unknown := mcp.ValidateDisabledTools(rt.cfg.DisabledTools); len(unknown) > 0 {
		rt.logger.Warn("unknown tools in disabled_tools", "tools", unknown)
	}

	deps := mcp.Deps{DB: rt.db, Config: rt.cfg, Logger: rt.logger}
	reconciler, locks, err := rt.runner()
	if err != nil {
		rt.logger.Warn("object storage unavailable; imaging_run disabled", "error", err)
		rt.cfg.DisabledTools = append(rt.cfg.DisabledTools, "imaging_run")
	} else {
		deps.Reconciler = reconciler
		deps.Locks = locks
	}
	return mcp.Run(deps, Version)
}
