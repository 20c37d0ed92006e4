package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/engine"
	"github.com/roach88/framewatch/internal/export"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/movetable"
	"github.com/roach88/framewatch/internal/store"
	"github.com/roach88/framewatch/internal/stream"
	"github.com/roach88/framewatch/internal/telemetry"
)

// RunOptions holds flags for the run command. Empty flags fall back to the
// FRAMEWATCH_* environment settings.
type RunOptions struct {
	*RootOptions
	Base       string
	Config     string
	Database   string
	CSV        string
	Labels     string
	StreamAddr string
	Cycles     int
	PollHz     int

	// SessionGenerator overrides the UUIDv7 session ids (for testing).
	SessionGenerator engine.SessionGenerator
}

// RunSummary is printed when the engine stops.
type RunSummary struct {
	Session string `json:"session"`
	Cycles  int64  `json:"cycles"`
	Frames  int    `json:"frames"`
	Hits    int    `json:"hits"`
	Combos  int    `json:"combos"`
	CSVRows int    `json:"csv_rows,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <dump>",
		Short: "Run the polling engine over a memory dump",
		Long: `Run the polling engine over a memory dump.

<dump> is a directory of <hexbase>.bin window dumps, or a single raw dump
file mapped at --base. Frames go to any combination of a CSV hit log, the
SQLite event log and the WebSocket stream.

With --cycles the engine runs exactly that many cycles as fast as possible;
otherwise it polls at --poll-hz until interrupted.

Examples:
  framewatch run ./dumps --cycles 600 --csv hits.csv
  framewatch run mem1.bin --base 0x90000000 --db events.db --stream :8080`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEngine(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "base address of a single dump file (hex)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "configuration table (.cue file or directory)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite event log")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "path to CSV hit log (appended)")
	cmd.Flags().StringVar(&opts.Labels, "labels", "", "move label CSV merged into the table")
	cmd.Flags().StringVar(&opts.StreamAddr, "stream", "", "serve the WebSocket stream on this address")
	cmd.Flags().IntVar(&opts.Cycles, "cycles", 0, "run this many cycles and stop (0 = until interrupted)")
	cmd.Flags().IntVar(&opts.PollHz, "poll-hz", 0, "poll rate in Hz (default from FRAMEWATCH_POLL_HZ)")

	return cmd
}

func (o *RunOptions) merge(s config.Settings) config.Settings {
	if o.Config != "" {
		s.ConfigPath = o.Config
	}
	if o.Database != "" {
		s.DBPath = o.Database
	}
	if o.CSV != "" {
		s.CSVPath = o.CSV
	}
	if o.Labels != "" {
		s.LabelsCSV = o.Labels
	}
	if o.StreamAddr != "" {
		s.StreamAddr = o.StreamAddr
	}
	if o.PollHz > 0 {
		s.PollHz = o.PollHz
	}
	return s
}

func runEngine(opts *RunOptions, dumpPath string, cmd *cobra.Command) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}
	settings = opts.merge(settings)
	if err := settings.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid settings", err)
	}

	logger, err := newLogger(opts.RootOptions, settings.LogLevel, cmd.ErrOrStderr())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid log level", err)
	}
	slog.SetDefault(logger)

	table, err := loadTable(settings.ConfigPath)
	if err != nil {
		return err
	}
	if settings.LabelsCSV != "" {
		if err := mergeLabels(table, settings.LabelsCSV, logger); err != nil {
			return err
		}
	}

	dump, err := openDump(dumpPath, opts.Base)
	if err != nil {
		return err
	}
	logger.Info("dump mapped", "files", len(dump.Files), "regions", len(dump.Regions()))

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	shutdown, err := telemetry.Setup(ctx, settings.ServiceName, settings.OTELEndpoint)
	if err != nil {
		return WrapExitError(ExitCommandError, "telemetry setup failed", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Error("telemetry shutdown failed", "error", err)
		}
	}()

	rec := &countingSink{}
	sinks := []engine.Sink{rec}

	var csvWriter *export.HitWriter
	if settings.CSVPath != "" {
		csvWriter, err = export.Create(settings.CSVPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open CSV log", err)
		}
		defer func() {
			if err := csvWriter.Close(); err != nil {
				logger.Error("error closing CSV log", "error", err)
			}
		}()
		sinks = append(sinks, csvWriter)
	}

	if settings.DBPath != "" {
		st, err := store.Open(settings.DBPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("error closing database", "error", err)
			}
		}()
		sinks = append(sinks, st)
	}

	var srv *stream.Server
	if settings.StreamAddr != "" {
		srv = stream.New(stream.WithLogger(logger))
		sinks = append(sinks, srv)
	}

	engOpts := []engine.Option{
		engine.WithLogger(logger),
		engine.WithInterval(settings.PollInterval()),
		engine.WithHistoryCapacity(settings.HistoryCapacity),
		engine.WithSinks(sinks...),
	}
	if opts.SessionGenerator != nil {
		engOpts = append(engOpts, engine.WithSessionGenerator(opts.SessionGenerator))
	}

	scanEvery := settings.ScanEvery
	if scanEvery == 0 {
		scanEvery = table.Scan.EveryCycles
	}
	if scanEvery > 0 && table.Scan.Region.Len() > 0 {
		scanner := movetable.NewScanner(dump, table, movetable.WithLogger(logger))
		worker := engine.NewScanWorker(ctx, scanner, engine.WithScanLogger(logger))
		defer worker.Close()
		engOpts = append(engOpts, engine.WithScanWorker(worker, scanEvery))
	}

	eng := engine.New(dump, table, engOpts...)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	g, gctx := errgroup.WithContext(ctx)
	if srv != nil {
		g.Go(func() error {
			return srv.ListenAndServe(gctx, settings.StreamAddr)
		})
	}
	g.Go(func() error {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-gctx.Done():
		}
		return nil
	})
	g.Go(func() error {
		// Stop the server and the signal watcher once the engine is done.
		defer cancel()
		if opts.Cycles > 0 {
			return stepN(gctx, eng, opts.Cycles)
		}
		err := eng.Run(gctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "engine error", err)
	}

	summary := RunSummary{
		Session: eng.Session(),
		Cycles:  eng.Cycle(),
		Frames:  rec.frames,
		Hits:    rec.hits,
		Combos:  rec.combos,
	}
	if csvWriter != nil {
		summary.CSVRows = csvWriter.Rows()
	}
	return outputRunSummary(newFormatter(opts.RootOptions, cmd), summary)
}

// stepN runs n cycles back to back and flushes open combos.
func stepN(ctx context.Context, eng *engine.Engine, n int) error {
	for i := 0; i < n; i++ {
		if _, err := eng.Step(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				break
			}
			return err
		}
	}
	eng.Flush(context.WithoutCancel(ctx))
	return nil
}

func mergeLabels(table *config.Table, path string, logger *slog.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open label CSV", err)
	}
	defer f.Close()

	if table.MoveLabels == nil {
		table.MoveLabels = config.NewMoveLabels()
	}
	n, err := table.MoveLabels.ReadCSV(f)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read label CSV", err)
	}
	logger.Info("move labels loaded", "path", path, "labels", n)
	return nil
}

// countingSink tallies what the engine produced for the run summary.
type countingSink struct {
	frames int
	hits   int
	combos int
}

func (c *countingSink) Consume(_ context.Context, f model.Frame) error {
	c.frames++
	c.hits += len(f.Hits)
	c.combos += len(f.Combos)
	return nil
}

func outputRunSummary(f *OutputFormatter, s RunSummary) error {
	if f.JSON() {
		return f.encode(CLIResponse{Status: "ok", Data: s, Session: s.Session})
	}
	fmt.Fprintf(f.Writer, "Session %s: %d cycles, %d hits, %d combos\n", s.Session, s.Cycles, s.Hits, s.Combos)
	if s.CSVRows > 0 {
		fmt.Fprintf(f.Writer, "CSV rows written: %d\n", s.CSVRows)
	}
	return nil
}
