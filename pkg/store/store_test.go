package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rmax-ai/linkgate/pkg/links"
	"github.com/rmax-ai/linkgate/pkg/links/linkstest"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := NewStore(filepath.Join(t.TempDir(), "linkgate.db"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestNewStore(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "linkgate.db")

	store, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	defer store.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Errorf("database file was not created at %s", dbPath)
	}

	for _, table := range []string{"links", "leases"} {
		var name string
		err = store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("failed to query sqlite_master for %s table: %v", table, err)
		}
	}

	var index string
	err = store.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_links_source_target'").Scan(&index)
	if err != nil {
		t.Errorf("idx_links_source_target not found: %v", err)
	}
}

func TestLinksConformance(t *testing.T) {
	linkstest.RunEngineTests(t, func(t *testing.T, capacity int) links.Engine[uint64] {
		return NewLinks[uint64](setupTestStore(t), uint64(capacity))
	})
}

func TestLinksSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "linkgate.db")

	st, err := NewStore(dbPath)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	e := NewLinks[uint64](st, 0)
	for _, p := range [][2]uint64{{1, 2}, {2, 3}} {
		if _, err := e.GetOrCreate(ctx, p[0], p[1]); err != nil {
			t.Fatalf("GetOrCreate failed: %v", err)
		}
	}
	st.Close()

	st, err = NewStore(dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer st.Close()
	e = NewLinks[uint64](st, 0)

	id, err := e.GetOrCreate(ctx, 2, 3)
	if err != nil {
		t.Fatalf("GetOrCreate after reopen failed: %v", err)
	}
	if id != 2 {
		t.Errorf("expected existing id 2, got %d", id)
	}

	got := linkstest.Collect(t, e)
	if len(got) != 2 {
		t.Errorf("expected 2 links after reopen, got %v", got)
	}
}

func TestLinksNarrowIDType(t *testing.T) {
	ctx := context.Background()
	st := setupTestStore(t)

	// Seed 255 rows directly so the next index would overflow uint8.
	for i := 1; i <= 255; i++ {
		if _, err := st.db.Exec("INSERT INTO links (id, source, target) VALUES (?, ?, ?)", i, i, 0); err != nil {
			t.Fatalf("seed failed: %v", err)
		}
	}

	e := NewLinks[uint8](st, 0)
	if _, err := e.GetOrCreate(ctx, 7, 7); err != links.ErrIDOverflow {
		t.Errorf("expected ErrIDOverflow, got %v", err)
	}
}
