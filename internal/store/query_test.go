package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEventQuery_Compile(t *testing.T) {
	tests := []struct {
		name       string
		query      eventQuery
		wantSQL    string
		wantParams []any
	}{
		{
			name:       "no filter",
			query:      eventQuery{Columns: []string{"cycle", "delta"}, From: "hits"},
			wantSQL:    "SELECT cycle, delta FROM hits ORDER BY id ASC",
			wantParams: nil,
		},
		{
			name: "conjunction with limit",
			query: eventQuery{
				Columns: []string{"cycle"},
				From:    "hits",
				Where:   and{equals{"session_id", "s1"}, atLeast{"cycle", int64(10)}, equals{"victim", "P1-C1"}},
				OrderBy: []string{"cycle"},
				Limit:   5,
			},
			wantSQL:    "SELECT cycle FROM hits WHERE session_id = ? AND cycle >= ? AND victim = ? ORDER BY cycle ASC, id ASC LIMIT ?",
			wantParams: []any{"s1", int64(10), "P1-C1", 5},
		},
		{
			name:       "empty conjunction",
			query:      eventQuery{Columns: []string{"raw"}, From: "advantage", Where: and{}},
			wantSQL:    "SELECT raw FROM advantage WHERE 1 = 1 ORDER BY id ASC",
			wantParams: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, params, err := tt.query.compile()
			if err != nil {
				t.Fatalf("compile() failed: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("sql = %q, want %q", sql, tt.wantSQL)
			}
			if diff := cmp.Diff(tt.wantParams, params); diff != "" {
				t.Errorf("params mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestEventQuery_ValueNeverInterpolated(t *testing.T) {
	hostile := "x'; DROP TABLE hits; --"
	sql, params, err := eventQuery{
		Columns: []string{"cycle"},
		From:    "hits",
		Where:   equals{"session_id", hostile},
	}.compile()
	if err != nil {
		t.Fatal(err)
	}
	if want := "SELECT cycle FROM hits WHERE session_id = ? ORDER BY id ASC"; sql != want {
		t.Errorf("sql = %q, want %q", sql, want)
	}
	if len(params) != 1 || params[0] != hostile {
		t.Errorf("params = %v", params)
	}
}

func TestEventQuery_Invalid(t *testing.T) {
	if _, _, err := (eventQuery{Columns: []string{"cycle"}}).compile(); err == nil {
		t.Error("missing table: want error")
	}
	if _, _, err := (eventQuery{From: "hits"}).compile(); err == nil {
		t.Error("missing columns: want error")
	}
}
