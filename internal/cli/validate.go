package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/framewatch/internal/config"
)

// TableSummary describes a table that loaded cleanly.
type TableSummary struct {
	Name         string `json:"name"`
	Source       string `json:"source"`
	Windows      int    `json:"windows"`
	Probes       int    `json:"probes"`
	EntityNames  int    `json:"entity_names"`
	MoveLabels   int    `json:"move_labels"`
	PhaseIDs     int    `json:"phase_ids"`
	Durations    int    `json:"durations"`
	DebugFlags   int    `json:"debug_flags"`
	StaleCycles  int    `json:"stale_cycles"`
	ComboTimeout int    `json:"combo_timeout_cycles"`
}

// ValidationResult is the JSON payload of validate.
type ValidationResult struct {
	Valid bool          `json:"valid"`
	Table *TableSummary `json:"table,omitempty"`
	Error *CLIError     `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [config]",
		Short: "Validate a configuration table",
		Long: `Validate a CUE configuration table against the embedded schema.

The argument is a .cue file or a directory holding one CUE package. Without
an argument the embedded default table is checked.

Exit codes:
  0 - Table is valid
  2 - Table missing or invalid`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runValidate(rootOpts, path, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	source := path
	if source == "" {
		source = config.DefaultName
	}
	formatter.VerboseLog("Validating %s", source)

	table, err := config.Load(path)
	if err != nil {
		var le *config.LoadError
		if !errors.As(err, &le) {
			le = &config.LoadError{Code: config.ErrCodeGeneric, Message: err.Error()}
		}
		var details any
		if le.Pos.IsValid() {
			details = fmt.Sprintf("%s:%d:%d", le.Pos.Filename(), le.Pos.Line(), le.Pos.Column())
		}
		_ = formatter.Error(le.Code, le.Message, details)
		return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", le.Code, le.Message))
	}

	summary := summarize(table, source)
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Table: &summary})
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ %s is valid (table %q)\n", source, summary.Name)
	fmt.Fprintf(w, "  windows: %d, probes: %d\n", summary.Windows, summary.Probes)
	fmt.Fprintf(w, "  entity names: %d, move labels: %d, phase ids: %d\n",
		summary.EntityNames, summary.MoveLabels, summary.PhaseIDs)
	fmt.Fprintf(w, "  active durations: %d, debug flags: %d\n", summary.Durations, summary.DebugFlags)
	return nil
}

func summarize(t *config.Table, source string) TableSummary {
	s := TableSummary{
		Name:         t.Name,
		Source:       source,
		Windows:      len(t.Resolver.Windows),
		Probes:       len(t.Resolver.ProbeOffsets),
		EntityNames:  len(t.EntityNames),
		PhaseIDs:     t.Phases.Len(),
		Durations:    len(t.Durations),
		DebugFlags:   len(t.Debug.Flags),
		StaleCycles:  t.StaleCycles,
		ComboTimeout: t.Combo.TimeoutCycles,
	}
	if t.MoveLabels != nil {
		s.MoveLabels = t.MoveLabels.Len()
	}
	return s
}
