// Command entunify maintains the entity database: it imports per-release
// fragment files, exports the merged database for a set of releases or for
// the engine, and counts entities per release.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/entunify/internal/config"
	"github.com/MrWong99/entunify/internal/database"
	"github.com/MrWong99/entunify/internal/entity"
	"github.com/MrWong99/entunify/internal/export"
	"github.com/MrWong99/entunify/internal/merge"
	"github.com/MrWong99/entunify/internal/observe"
	"github.com/MrWong99/entunify/internal/sink"
	"github.com/MrWong99/entunify/internal/stats"
	"github.com/MrWong99/entunify/pkg/tags"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cli holds the state shared by all subcommands of one invocation.
type cli struct {
	stderr io.Writer

	// Persistent flags.
	configPath  string
	dbPath      string
	extra       string
	logLevel    string
	metricsFile string

	cfg      *config.Config
	log      *slog.Logger
	met      *observe.Metrics
	registry *prometheus.Registry
	shutdown func(context.Context) error
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c := &cli{stderr: stderr}
	root := c.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if ferr := c.finish(); ferr != nil {
		err = errors.Join(err, ferr)
	}
	if err != nil {
		fmt.Fprintf(stderr, "entunify: %v\n", err)
		return 1
	}
	return 0
}

func (c *cli) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "entunify",
		Short:         "Maintain a unified, tagged entity database",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.setup(cmd)
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&c.dbPath, "database", "d", "fgd", "database directory")
	pf.StringVar(&c.extra, "extra", "", "additional fragment file or directory overriding the database")
	pf.StringVar(&c.configPath, "config", "", "optional YAML configuration file")
	pf.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&c.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile on exit")

	root.AddCommand(c.exportCommand(), c.importCommand(), c.countCommand())
	return root
}

// setup loads the configuration, applies flag overrides and initialises
// logging and telemetry.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg := config.Default()
	if c.configPath != "" {
		loaded, err := config.Load(c.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("database") || c.configPath == "" {
		cfg.Database.Path = c.dbPath
	}
	if flags.Changed("extra") {
		cfg.Database.Extra = c.extra
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = config.LogLevel(c.logLevel)
	}
	if flags.Changed("metrics-file") {
		cfg.Metrics.Textfile = c.metricsFile
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}
	c.cfg = cfg

	c.log = newLogger(cfg.LogLevel, c.stderr)
	slog.SetDefault(c.log)

	reg, shutdown, err := observe.InitProvider(cmd.Context(), observe.ProviderConfig{
		ServiceName:    "entunify",
		ServiceVersion: version,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	c.registry, c.shutdown = reg, shutdown

	met, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	c.met = met

	c.log.Debug("entunify starting",
		"command", cmd.Name(),
		"database", cfg.Database.Path,
		"extra", cfg.Database.Extra,
		"log_level", cfg.LogLevel,
	)
	return nil
}

// finish writes the metrics textfile and shuts telemetry down. It is a no-op
// when setup never ran.
func (c *cli) finish() error {
	if c.shutdown == nil {
		return nil
	}
	var errs []error
	if c.cfg.Metrics.Textfile != "" {
		if err := observe.WriteTextfile(c.cfg.Metrics.Textfile, c.registry); err != nil {
			errs = append(errs, err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
	}
	return errors.Join(errs...)
}

func (c *cli) loadDatabase(ctx context.Context, dbc config.DatabaseConfig) (*entity.Database, error) {
	return database.Load(ctx, database.Options{
		Root:        dbc.Path,
		Extra:       dbc.Extra,
		MapSize:     dbc.MapSize,
		Concurrency: dbc.Concurrency,
		Logger:      c.log,
		Metrics:     c.met,
	})
}

// ── Subcommands ───────────────────────────────────────────────────────────────

func (c *cli) exportCommand() *cobra.Command {
	var (
		output  string
		engine  bool
		binary  bool
		mapSize int
	)
	cmd := &cobra.Command{
		Use:     "export [tags...]",
		Aliases: []string{"exp", "e"},
		Short:   "Export the database for a set of release and feature tags, or for the engine",
		Long: "Export the database for a set of release and feature tags, or for the engine.\n\n" +
			"Allowed tags:\n" + tags.Default().FormatAll(),
		RunE: func(cmd *cobra.Command, args []string) error {
			ecfg := c.cfg.Export
			dbc := c.cfg.Database
			flags := cmd.Flags()
			if flags.Changed("output") {
				ecfg.Output = output
			}
			if flags.Changed("engine") {
				ecfg.Engine = engine
			}
			if flags.Changed("binary") {
				ecfg.Format = config.FormatText
				if binary {
					ecfg.Format = config.FormatBinary
				}
			}
			if flags.Changed("map-size") {
				dbc.MapSize = mapSize
			}
			if len(args) > 0 {
				ecfg.Tags = args
			}

			ctx := cmd.Context()
			db, err := c.loadDatabase(ctx, dbc)
			if err != nil {
				return err
			}

			mode := export.ModeTagged
			if ecfg.Engine {
				mode = export.ModeEngine
			}
			out, rep, err := export.Project(ctx, db, export.Options{
				Mode:    mode,
				Tags:    ecfg.Tags,
				Logger:  c.log,
				Metrics: c.met,
			})
			if err != nil {
				return err
			}

			var s sink.Sink = sink.Text{}
			if ecfg.Format == config.FormatBinary {
				s = sink.Binary{}
			}
			if err := sink.WriteFile(ecfg.Output, s, out); err != nil {
				return err
			}
			c.log.Info("export written",
				"path", ecfg.Output,
				"mode", string(mode),
				"format", string(ecfg.Format),
				"entities", out.Len(),
				"polyfills", strings.Join(rep.Polyfills, ", "),
				"diagnostics", len(rep.Diagnostics),
			)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "output.yaml", "destination file")
	f.BoolVarP(&engine, "engine", "e", false, "export for the engine, ignoring tags")
	f.BoolVarP(&binary, "binary", "b", false, "write the compressed binary format")
	f.IntVar(&mapSize, "map-size", 0, "editor grid half-extent; 0 keeps the database setting")
	return cmd
}

func (c *cli) importCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "import <release> <fragment>...",
		Aliases: []string{"imp", "i"},
		Short:   "Merge release-specific fragment files into the database",
		Args:    cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			im := &merge.Importer{
				Root:    c.cfg.Database.Path,
				Logger:  c.log,
				Metrics: c.met,
			}
			_, err := im.Import(cmd.Context(), args[0], args[1:])
			return err
		},
	}
}

func (c *cli) countCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "count",
		Aliases: []string{"c"},
		Short:   "Count entities per release",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			defer c.met.Time(ctx, "count")()
			db, err := c.loadDatabase(ctx, c.cfg.Database)
			if err != nil {
				return err
			}
			t := stats.Count(db, tags.Default())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Releases: %s\n\n", strings.Join(t.Releases, ", "))
			fmt.Fprintln(out, t.Render())
			if len(t.Bases) > 0 {
				fmt.Fprintf(out, "\nBases:\n%s\n", t.RenderBases())
			}
			return nil
		},
	}
}

// ── Logging ───────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel, w io.Writer) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}
