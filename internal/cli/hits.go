package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/framewatch/internal/export"
	"github.com/roach88/framewatch/internal/model"
	"github.com/roach88/framewatch/internal/store"
)

// HitsOptions holds flags for the hits command.
type HitsOptions struct {
	*RootOptions
	Session  string
	Victim   string
	From     int64
	Limit    int
	Stats    bool
	Sessions bool
	CSV      string
}

// HitsResult is the JSON payload of hits.
type HitsResult struct {
	Session string            `json:"session"`
	Hits    []model.HitEvent  `json:"hits,omitempty"`
	Stats   []store.SlotStats `json:"stats,omitempty"`
}

// SessionRow is one entry of hits --sessions.
type SessionRow struct {
	ID         string `json:"id"`
	Table      string `json:"table"`
	StartedAt  string `json:"started_at"`
	FirstCycle int64  `json:"first_cycle"`
}

// NewHitsCommand creates the hits command.
func NewHitsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HitsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "hits <db>",
		Short: "Query hits recorded in an event log",
		Long: `Query the hits recorded in a SQLite event log.

Without --session the most recent session is used.

Examples:
  framewatch hits events.db
  framewatch hits events.db --victim P2-C1 --from 600 --limit 20
  framewatch hits events.db --stats
  framewatch hits events.db --sessions
  framewatch hits events.db --session 0190... --csv hits.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHits(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Session, "session", "", "session id (default: latest)")
	cmd.Flags().StringVar(&opts.Victim, "victim", "", "only hits on this slot (P1-C1, P2-C1, P1-C2, P2-C2)")
	cmd.Flags().Int64Var(&opts.From, "from", 0, "only hits at or after this cycle")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "maximum number of hits (0 = all)")
	cmd.Flags().BoolVar(&opts.Stats, "stats", false, "print per-victim totals instead of hits")
	cmd.Flags().BoolVar(&opts.Sessions, "sessions", false, "list recorded sessions")
	cmd.Flags().StringVar(&opts.CSV, "csv", "", "export the session's hits to this CSV file")

	return cmd
}

func runHits(opts *HitsOptions, dbPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := store.Open(dbPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.Sessions {
		return listSessions(ctx, st, formatter)
	}

	session := opts.Session
	if session == "" {
		latest, err := st.LatestSession(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return NewExitError(ExitCommandError, "event log has no sessions")
		}
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read sessions", err)
		}
		session = latest.ID
	}
	formatter.VerboseLog("Session %s", session)

	if opts.CSV != "" {
		return exportHits(ctx, st, session, opts.CSV, formatter)
	}

	if opts.Stats {
		stats, err := st.HitStats(ctx, session)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to read hit stats", err)
		}
		if formatter.JSON() {
			return formatter.Success(HitsResult{Session: session, Stats: stats})
		}
		rows := make([][]string, 0, len(stats))
		for _, s := range stats {
			rows = append(rows, []string{
				s.Victim.String(),
				strconv.Itoa(s.Hits),
				strconv.FormatInt(s.Total, 10),
				strconv.FormatInt(s.MaxDelta, 10),
				strconv.FormatInt(s.LastCycle, 10),
			})
		}
		return formatter.Table([]string{"VICTIM", "HITS", "TOTAL", "MAX", "LAST_CYCLE"}, rows)
	}

	filter := store.HitFilter{FromCycle: opts.From, Limit: opts.Limit}
	if opts.Victim != "" {
		slot, err := model.ParseSlot(opts.Victim)
		if err != nil {
			return WrapExitError(ExitCommandError, "invalid --victim", err)
		}
		filter.Victim = &slot
	}

	hits, err := st.ReadHits(ctx, session, filter)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read hits", err)
	}
	if formatter.JSON() {
		return formatter.Success(HitsResult{Session: session, Hits: hits})
	}

	rows := make([][]string, 0, len(hits))
	for _, h := range hits {
		attacker := "-"
		if h.Attacker != model.SlotNone {
			attacker = h.Attacker.String()
		}
		move := h.MoveName
		if move == "" {
			move = h.MoveID.String()
		}
		rows = append(rows, []string{
			strconv.FormatInt(h.Cycle, 10),
			h.Victim.String(),
			attacker,
			strconv.FormatInt(h.Delta, 10),
			fmt.Sprintf("%d→%d", h.ValueBefore, h.ValueAfter),
			string(h.Source),
			move,
		})
	}
	return formatter.Table([]string{"CYCLE", "VICTIM", "ATTACKER", "DELTA", "VALUE", "SOURCE", "MOVE"}, rows)
}

func listSessions(ctx context.Context, st *store.Store, formatter *OutputFormatter) error {
	sessions, err := st.ReadSessions(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read sessions", err)
	}
	out := make([]SessionRow, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionRow{
			ID:         s.ID,
			Table:      s.TableName,
			StartedAt:  s.StartedAt.UTC().Format("2006-01-02T15:04:05.000Z"),
			FirstCycle: s.FirstCycle,
		})
	}
	if formatter.JSON() {
		return formatter.Success(out)
	}
	rows := make([][]string, 0, len(out))
	for _, s := range out {
		rows = append(rows, []string{s.ID, s.Table, s.StartedAt, strconv.FormatInt(s.FirstCycle, 10)})
	}
	return formatter.Table([]string{"SESSION", "TABLE", "STARTED", "FIRST_CYCLE"}, rows)
}

// exportHits replays the session's frames into a CSV hit writer.
func exportHits(ctx context.Context, st *store.Store, session, path string, formatter *OutputFormatter) error {
	hw, err := export.Create(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open CSV file", err)
	}
	if _, err := st.Replay(ctx, session, hw); err != nil {
		hw.Close()
		return WrapExitError(ExitFailure, "export failed", err)
	}
	if err := hw.Close(); err != nil {
		return WrapExitError(ExitFailure, "export failed", err)
	}

	if formatter.JSON() {
		return formatter.Success(map[string]any{"session": session, "path": path, "rows": hw.Rows()})
	}
	fmt.Fprintf(formatter.Writer, "✓ exported %d hits from %s to %s\n", hw.Rows(), session, path)
	return nil
}
