package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/hpungsan/nounimaging/internal/errors"
	"github.com/hpungsan/nounimaging/internal/imaging"
	"github.com/hpungsan/nounimaging/internal/ops"
	"github.com/hpungsan/nounimaging/internal/stream"
	"github.com/hpungsan/nounimaging/internal/web"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(rt *runtime) *cli.App {
	app := &cli.App{
		Name:    "nounimaging",
		Usage:   "Reconcile noun images in object storage with noun records",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "data-dir", Usage: "Directory holding the database, config and run locks (default ~/.nounimaging)"},
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "Explicit config file layered over the data dir config"},
			&cli.BoolFlag{Name: "memory", Usage: "Use an empty in-memory object store instead of S3"},
		},
		Before: func(c *cli.Context) error {
			if c.NArg() == 0 || c.Args().First() == "help" {
				return nil
			}
			if c.Bool("memory") {
				rt.memory = true
			}
			if err := rt.open(c.String("data-dir"), c.String("config")); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			return rt.close()
		},
		Commands: []*cli.Command{
			serveCmd(rt),
			runCmd(rt),
			importCmd(rt),
			listCmd(rt),
			findCmd(rt),
			setImageCmd(rt),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// serveCmd creates the serve command.
func serveCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the imaging progress stream, health and metrics over HTTP",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Usage: "Bind address (default from config)"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Port (default from config)"},
		},
		Action: func(c *cli.Context) error {
			reconciler, locks, err := rt.runner()
			if err != nil {
				return outputError(err)
			}

			bind := rt.cfg.Web.Bind
			if c.IsSet("bind") {
				bind = c.String("bind")
			}
			port := rt.cfg.Web.Port
			if c.IsSet("port") {
				port = c.Int("port")
			}

			srv := web.NewServer(web.Deps{
				Reconciler: reconciler,
				Locks:      locks,
				Config:     rt.cfg,
				Gatherer:   rt.metricsRegistry(),
				Logger:     rt.logger,
			}, Version, bind, port)
			return web.Run(srv, rt.logger)
		},
	}
}

// runCmd creates the run command.
func runCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Run one reconciliation and print the report",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "namespace", Aliases: []string{"n"}, Usage: "Storage prefix (default from config)"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "Output format: json|table"},
			&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: "Suppress progress output"},
		},
		Action: func(c *cli.Context) error {
			format, err := parseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			reconciler, locks, err := rt.runner()
			if err != nil {
				return outputError(err)
			}

			namespace := strings.TrimSpace(c.String("namespace"))
			if namespace == "" {
				namespace = rt.cfg.Namespace
			}
			release, err := locks.Acquire(namespace)
			if err != nil {
				return outputError(err)
			}
			defer release()

			ctx, stop := signal.NotifyContext(cliContext(c), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var sink stream.Sink = discardSink{}
			if !c.Bool("quiet") {
				sink = newProgressSink(rt.stderr)
			}
			emitter := stream.NewEmitter(sink, stream.Options{
				Step:      rt.cfg.ProgressStep,
				Heartbeat: -1,
				Logger:    rt.logger,
			})
			defer emitter.Close()

			report, err := reconciler.Reconcile(ctx, ops.ReconcileInput{
				Namespace: namespace,
				Progress:  func(u stream.Update) { emitter.Update(u) },
			})
			if err != nil {
				_ = emitter.Fail(stream.ErrorPayload{Message: err.Error()})
				return outputError(err)
			}
			_ = emitter.Complete(report)

			if format == formatTable {
				_, err := fmt.Fprintln(rt.stdout, renderReport(report))
				return err
			}
			return outputJSON(rt.stdout, report)
		},
	}
}

// importCmd creates the import command.
func importCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Import nouns from a JSON array file ('-' reads stdin)",
		ArgsUsage: "<file|->",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one file argument is required"))
			}

			var r io.Reader
			if path := c.Args().First(); path == "-" {
				if !stdinHasData() {
					return outputError(errors.NewInvalidRequest("import data must be piped via stdin"))
				}
				r = os.Stdin
			} else {
				f, err := ops.OpenImportFile(path)
				if err != nil {
					return outputError(err)
				}
				defer f.Close()
				r = f
			}

			output, err := ops.ImportNouns(cliContext(c), rt.db, ops.ImportNounsInput{Reader: r})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(rt.stdout, output)
		},
	}
}

// listCmd creates the list command.
func listCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List nouns, oldest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum items to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Value: 0, Usage: "Items to skip"},
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: "json", Usage: "Output format: json|table"},
		},
		Action: func(c *cli.Context) error {
			format, err := parseFormat(c.String("format"))
			if err != nil {
				return outputError(err)
			}

			output, err := ops.ListNouns(cliContext(c), rt.db, ops.ListNounsInput{
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}

			if format == formatTable {
				_, err := fmt.Fprintln(rt.stdout, renderNouns(output.Items))
				return err
			}
			return outputJSON(rt.stdout, output)
		},
	}
}

// findCmd creates the find command.
func findCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:  "find",
		Usage: "Find nouns by English name",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Required: true, Usage: "English name (case-insensitive)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.FindNoun(cliContext(c), rt.db, ops.FindNounInput{NameEn: c.String("name")})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(rt.stdout, output)
		},
	}
}

// setImageCmd creates the set-image command.
func setImageCmd(rt *runtime) *cli.Command {
	return &cli.Command{
		Name:      "set-image",
		Usage:     "Set a noun's image URL (omit the URL to clear it)",
		ArgsUsage: "<id> [url]",
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 || c.NArg() > 2 {
				return outputError(errors.NewInvalidRequest("usage: set-image <id> [url]"))
			}

			output, err := ops.SetNounImage(cliContext(c), rt.db, ops.SetNounImageInput{
				ID:       c.Args().Get(0),
				ImageURL: c.Args().Get(1),
			})
			if err != nil {
				return outputError(err)
			}

			return outputJSON(rt.stdout, output)
		},
	}
}

type outputFormat string

const (
	formatJSON  outputFormat = "json"
	formatTable outputFormat = "table"
)

func parseFormat(s string) (outputFormat, error) {
	switch outputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", formatJSON:
		return formatJSON, nil
	case formatTable:
		return formatTable, nil
	default:
		return "", errors.NewInvalidRequest(fmt.Sprintf("unknown format %q (want json or table)", s))
	}
}

// discardSink drops every event.
type discardSink struct{}

func (discardSink) Send(stream.Event) error { return nil }
func (discardSink) Heartbeat() error        { return nil }

func cliContext(c *cli.Context) context.Context {
	if c.Context != nil {
		return c.Context
	}
	return context.Background()
}

// outputJSON writes JSON output with indentation.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if iErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", iErr.Code, iErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// stdinHasData returns true if stdin has piped data (not a terminal).
func stdinHasData() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) == 0
}

// failedResults returns the results that need attention.
func failedResults(report *imaging.Report) []imaging.MatchResult {
	out := make([]imaging.MatchResult, 0)
	for _, r := range report.Files {
		if r.Action.Failed() {
			out = append(out, r)
		}
	}
	return out
}
