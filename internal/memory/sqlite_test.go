package memory

import (
	"context"
	"path/filepath"
	"testing"
)

func TestSQLiteStore_SaveAndQuery(t *testing.T) {
	store, err := OpenSQLite(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatalf("OpenSQLite() error: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	entries := []Entry{
		{AgentID: "a1", TaskID: "t1", Kind: "step_output", Content: "wrote parser"},
		{AgentID: "a1", TaskID: "t1", Kind: "introduction", Content: "hello"},
		{AgentID: "a2", TaskID: "t1", Kind: "step_output", Content: "tested parser"},
		{AgentID: "a1", TaskID: "t2", Kind: "step_output", Content: "other task"},
	}
	for _, e := range entries {
		if err := store.Save(ctx, e); err != nil {
			t.Fatalf("Save() error: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"by agent", Filter{AgentID: "a1"}, 3},
		{"by agent and task", Filter{AgentID: "a1", TaskID: "t1"}, 2},
		{"by kind", Filter{Kind: "step_output"}, 3},
		{"no match", Filter{AgentID: "a9"}, 0},
		{"limit applies", Filter{AgentID: "a1", Limit: 1}, 1},
		{"unfiltered", Filter{}, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query() error: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("Query(%+v) returned %d entries, want %d", tt.filter, len(got), tt.want)
			}
		})
	}
}

func TestNopStore_Degrades(t *testing.T) {
	var store Store = NopStore{}
	ctx := context.Background()

	if err := store.Save(ctx, Entry{AgentID: "a1", Content: "x"}); err != nil {
		t.Errorf("NopStore.Save() error: %v", err)
	}
	got, err := store.Query(ctx, Filter{AgentID: "a1"})
	if err != nil {
		t.Errorf("NopStore.Query() error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("NopStore.Query() returned %d entries, want 0", len(got))
	}
}
