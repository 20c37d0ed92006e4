package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/engine"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/movetable"
)

// ScanOptions holds flags for the scan command.
type ScanOptions struct {
	*RootOptions
	Base   string
	Config string
	Lo     string
	Hi     string
}

// NewScanCommand creates the scan command.
func NewScanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ScanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "scan <dump>",
		Short: "Extract move tables from a memory dump",
		Long: `Run the deep move-table scan over a memory dump.

One engine cycle runs first to learn which entity occupies each slot, so
scanned moves carry their entity's labels. The scan region defaults to
the table's scan.region; --lo and --hi override it.

Examples:
  framewatch scan ./dumps
  framewatch scan ./dumps --lo 0x908AE000 --hi 0x90A00000 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "base address of a single dump file (hex)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "configuration table (.cue file or directory)")
	cmd.Flags().StringVar(&opts.Lo, "lo", "", "scan region start (hex)")
	cmd.Flags().StringVar(&opts.Hi, "hi", "", "scan region end, exclusive (hex)")

	return cmd
}

func runScan(opts *ScanOptions, dumpPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	table, err := loadTable(opts.Config)
	if err != nil {
		return err
	}
	if err := overrideRegion(&table.Scan.Region, opts.Lo, opts.Hi); err != nil {
		return err
	}
	if table.Scan.Region.Len() == 0 {
		return NewExitError(ExitCommandError, "scan region is empty")
	}

	dump, err := openDump(dumpPath, opts.Base)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	frame, err := engine.New(dump, table, engine.WithLogger(logger)).Step(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "engine cycle failed", err)
	}
	var entities [model.SlotCount]model.Field[uint32]
	for _, slot := range model.AllSlots {
		if s := frame.Snapshot(slot); s.Present {
			entities[slot] = s.EntityTypeID
		}
	}
	formatter.VerboseLog("Scanning %s", table.Scan.Region)

	mt, err := movetable.NewScanner(dump, table, movetable.WithLogger(logger)).Scan(ctx, entities)
	if err != nil {
		return WrapExitError(ExitFailure, "scan failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(mt)
	}

	fmt.Fprintf(formatter.Writer, "%d clusters, %d moves\n\n", mt.Clusters, mt.Len())
	var rows [][]string
	for _, sm := range mt.Slots {
		for _, m := range sm.Moves {
			rows = append(rows, []string{
				sm.Slot.String(),
				sm.Entity,
				m.ID.String(),
				m.Name,
				string(m.Kind),
				m.ActiveStart.String(),
				m.ActiveEnd.String(),
				m.Damage.String(),
				m.Hitstun.String(),
				strconv.Itoa(m.AdvHit),
				strconv.Itoa(m.AdvBlock),
			})
		}
	}
	return formatter.Table(
		[]string{"SLOT", "ENTITY", "ID", "NAME", "KIND", "START", "END", "DAMAGE", "HITSTUN", "ADV_HIT", "ADV_BLOCK"},
		rows,
	)
}

func overrideRegion(w *config.Window, lo, hi string) error {
	if lo != "" {
		v, err := parseAddr(lo)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --lo", err)
		}
		w.Lo = v
	}
	if hi != "" {
		v, err := parseAddr(hi)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --hi", err)
		}
		w.Hi = v
	}
	if w.Hi < w.Lo {
		return NewExitError(ExitCommandError, fmt.Sprintf("scan region %s ends before it starts", w))
	}
	return nil
}
