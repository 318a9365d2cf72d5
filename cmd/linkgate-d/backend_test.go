package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/rmax-ai/linkgate/pkg/api"
	"github.com/rmax-ai/linkgate/pkg/gateway"
	"github.com/rmax-ai/linkgate/pkg/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func testConfig(engine string) Config {
	return Config{
		Addr:        "127.0.0.1:0",
		Engine:      engine,
		RedisPrefix: "linkgate",
		LeaseTTL:    time.Second,
		LogLevel:    "info",
	}
}

func insertScenario(t *testing.T, b *backend) {
	t.Helper()
	gw := gateway.New[api.LinkID](b.engine)
	got, err := gw.Mutation.InsertLinks(context.Background(), []gateway.InputLink[api.LinkID]{
		{FromID: 1, ToID: 2}, {FromID: 2, ToID: 3}, {FromID: 1, ToID: 2},
	})
	if err != nil {
		t.Fatalf("InsertLinks() error = %v", err)
	}
	if got[0].ID != 1 || got[1].ID != 2 || got[2].ID != 1 {
		t.Errorf("unexpected ids %v", got)
	}
}

func TestOpenBackend_Mem(t *testing.T) {
	cfg := testConfig("mem")
	cfg.Capacity = 2

	b, err := openBackend(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	defer b.Close(discardLogger())

	if b.owner != nil {
		t.Error("in-memory engine should not take a lease")
	}
	insertScenario(t, b)
}

func TestOpenBackend_SQLiteLease(t *testing.T) {
	cfg := testConfig("sqlite")
	cfg.DBPath = filepath.Join(t.TempDir(), "linkgate.db")
	ctx := context.Background()

	first, err := openBackend(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	insertScenario(t, first)

	// A second daemon on the same file must refuse while the lease is held.
	second, err := openBackend(ctx, cfg, discardLogger())
	if err == nil {
		second.Close(discardLogger())
		t.Fatal("expected second owner to be rejected")
	}
	if !errors.Is(err, store.ErrStoreOwned) {
		t.Errorf("expected ErrStoreOwned, got %v", err)
	}

	first.Close(discardLogger())

	reopened, err := openBackend(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("reopen after release: %v", err)
	}
	defer reopened.Close(discardLogger())

	n, err := reopened.engine.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 links after reopen, got %d", n)
	}
}

func TestOpenBackend_RedisLease(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("redis")
	cfg.RedisAddr = mr.Addr()
	ctx := context.Background()

	b, err := openBackend(ctx, cfg, discardLogger())
	if err != nil {
		t.Fatalf("openBackend() error = %v", err)
	}
	insertScenario(t, b)

	if _, err := openBackend(ctx, cfg, discardLogger()); err == nil {
		t.Fatal("expected second owner to be rejected")
	}

	// Renewals keep the lease alive; losing it stops keepLease with an error.
	leaseCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- b.keepLease(leaseCtx, discardLogger()) }()

	mr.Del("linkgate:lease:" + cfg.RedisPrefix + ":links")
	select {
	case err := <-done:
		if err == nil || !strings.Contains(err.Error(), "lost store lease") {
			t.Errorf("keepLease() error = %v, want lost store lease", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("keepLease did not notice the lost lease")
	}
	cancel()
	b.Close(discardLogger())
}

func TestOpenBackend_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig("redis")
	cfg.RedisAddr = mr.Addr()
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := openBackend(ctx, cfg, discardLogger()); err == nil {
		t.Fatal("expected connection error")
	}
}
