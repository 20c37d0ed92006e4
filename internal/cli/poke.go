package cli

import (
	"encoding/hex"
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

// PokeOptions holds flags for the poke command.
type PokeOptions struct {
	*RootOptions
	Base   string
	Config string
	Out    string
	Flags  []string // NAME=VALUE
	Writes []string // ADDR=HEXBYTES
	List   bool
}

// PokeResult is the JSON payload of poke.
type PokeResult struct {
	Writes int      `json:"writes"`
	Saved  []string `json:"saved"`
}

// NewPokeCommand creates the poke command.
func NewPokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "poke [dump]",
		Short: "Apply guarded debug writes to a memory dump",
		Long: `Apply guarded debug writes to a memory dump and save it.

Every write must land inside a configured window and on the table's
debug-flag allowlist; a rejected write aborts the command before
anything is saved. Touched regions are written to --out as
<hexbase>.bin (default: the dump directory itself).

Examples:
  framewatch poke --list
  framewatch poke ./dumps --flag TrPause=1
  framewatch poke ./dumps --write 803F5683=01 --out ./patched`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.List {
				return listFlags(opts, cmd)
			}
			if len(args) == 0 {
				return NewExitError(ExitCommandError, "a dump is required unless --list is given")
			}
			return runPoke(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Base, "base", "", "base address of a single dump file (hex)")
	cmd.Flags().StringVar(&opts.Config, "config", "", "configuration table (.cue file or directory)")
	cmd.Flags().StringVar(&opts.Out, "out", "", "directory for the patched dump")
	cmd.Flags().StringArrayVar(&opts.Flags, "flag", nil, "set a named debug flag (NAME=VALUE)")
	cmd.Flags().StringArrayVar(&opts.Writes, "write", nil, "write raw bytes (ADDR=HEXBYTES)")
	cmd.Flags().BoolVar(&opts.List, "list", false, "list the debug flags and exit")

	return cmd
}

func listFlags(opts *PokeOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	table, err := loadTable(opts.Config)
	if err != nil {
		return err
	}
	if formatter.JSON() {
		return formatter.Success(table.Debug.Flags)
	}
	rows := make([][]string, 0, len(table.Debug.Flags))
	for _, f := range table.Debug.Flags {
		rows = append(rows, []string{f.Name, fmt.Sprintf("0x%08X", f.Addr), f.Note})
	}
	return formatter.Table([]string{"NAME", "ADDR", "NOTE"}, rows)
}

// pokeWrite is one parsed write.
type pokeWrite struct {
	flag string
	addr uint32
	data []byte
}

func runPoke(opts *PokeOptions, dumpPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	table, err := loadTable(opts.Config)
	if err != nil {
		return err
	}
	writes, err := parseWrites(table, opts.Flags, opts.Writes)
	if err != nil {
		return err
	}
	if len(writes) == 0 {
		return NewExitError(ExitCommandError, "nothing to write: give --flag or --write")
	}

	out := opts.Out
	if out == "" {
		info, err := os.Stat(dumpPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "dump not found", err)
		}
		if !info.IsDir() {
			return NewExitError(ExitCommandError, "--out is required for a single dump file")
		}
		out = dumpPath
	}

	dump, err := openDump(dumpPath, opts.Base)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(formatter.GetErrWriter(), &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	poker := memory.NewPoker(dump, table, memory.WithPokerLogger(logger))
	defer poker.Close()

	for _, w := range writes {
		var err error
		if w.flag != "" {
			err = poker.WriteFlag(w.flag, w.data[0])
		} else {
			err = poker.Write(w.addr, w.data)
		}
		if err != nil {
			return WrapExitError(ExitCommandError, "write rejected", err)
		}
	}

	if err := os.MkdirAll(out, 0o755); err != nil {
		return WrapExitError(ExitCommandError, "failed to create output directory", err)
	}
	var saved []string
	for _, r := range dump.Regions() {
		if !touched(r, writes) {
			continue
		}
		path, err := memory.WriteDump(out, dump, r[0], int(r[1]))
		if err != nil {
			return WrapExitError(ExitFailure, "failed to save dump", err)
		}
		saved = append(saved, path)
	}

	result := PokeResult{Writes: len(writes), Saved: saved}
	if formatter.JSON() {
		return formatter.Success(result)
	}
	fmt.Fprintf(formatter.Writer, "✓ %d write(s) applied\n", result.Writes)
	for _, p := range saved {
		fmt.Fprintf(formatter.Writer, "  saved %s\n", p)
	}
	return nil
}

// parseWrites resolves --flag and --write arguments. Flag addresses come
// from the table so saved regions can be found for them too.
func parseWrites(table *config.Table, flags, raw []string) ([]pokeWrite, error) {
	var writes []pokeWrite
	for _, arg := range flags {
		name, val, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --flag %q: want NAME=VALUE", arg))
		}
		f, found := table.Debug.Flag(name)
		if !found {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("unknown debug flag %q", name))
		}
		v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(val), "0x"), 16, 8)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, fmt.Sprintf("invalid value for %s", name), err)
		}
		writes = append(writes, pokeWrite{flag: name, addr: f.Addr, data: []byte{uint8(v)}})
	}
	for _, arg := range raw {
		addrStr, data, ok := strings.Cut(arg, "=")
		if !ok {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --write %q: want ADDR=HEXBYTES", arg))
		}
		addr, err := parseAddr(addrStr)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid --write address", err)
		}
		b, err := hex.DecodeString(strings.ReplaceAll(data, " ", ""))
		if err != nil || len(b) == 0 {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid --write bytes %q", data))
		}
		writes = append(writes, pokeWrite{addr: addr, data: b})
	}
	return writes, nil
}

func touched(r [2]uint32, writes []pokeWrite) bool {
	lo, hi := uint64(r[0]), uint64(r[0])+uint64(r[1])
	for _, w := range writes {
		if a := uint64(w.addr); a >= lo && a < hi {
			return true
		}
	}
	return false
}
