// Package cli implements the framewatch command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/framewatch/internal/config"
	"github.com/roach88/framewatch/internal/memory"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the framewatch CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "framewatch",
		Short: "framewatch - live state observer for a running fighting game",
		Long: `framewatch polls a running game's memory, reconstructs per-slot entity
state every cycle and derives hits, attribution, phases, readiness,
timing advantage and combos from it.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewScanCommand(opts))
	cmd.AddCommand(NewPokeCommand(opts))
	cmd.AddCommand(NewHitsCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// newFormatter builds the formatter every command writes through.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// newLogger builds the process logger: Debug under --verbose, otherwise
// the level named by FRAMEWATCH_LOG_LEVEL.
func newLogger(opts *RootOptions, level string, w io.Writer) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	if opts.Verbose {
		lvl = slog.LevelDebug
	}
	if w == nil {
		w = os.Stderr
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

// loadTable loads the configuration table and maps load failures to
// exit code 2.
func loadTable(path string) (*config.Table, error) {
	table, err := config.Load(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return table, nil
}

// openDump maps a dump directory, or a single dump file at base.
func openDump(path, base string) (*memory.DumpFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "dump not found", err)
	}
	if info.IsDir() {
		df, err := memory.OpenDumpDir(path)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "failed to open dump", err)
		}
		return df, nil
	}
	if base == "" {
		return nil, NewExitError(ExitCommandError, "--base is required for a single dump file")
	}
	addr, err := parseAddr(base)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --base", err)
	}
	df, err := memory.OpenDump(path, addr)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open dump", err)
	}
	return df, nil
}

// parseAddr accepts hex with or without 0x.
func parseAddr(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("parse address %q: %w", s, err)
	}
	return uint32(v), nil
}
