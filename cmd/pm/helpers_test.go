package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/types"
)

func newTestStore(t *testing.T) *sqlite.SQLiteStorage {
	t.Helper()
	s, err := sqlite.New(context.Background(), filepath.Join(t.TempDir(), "pm.db"))
	if err != nil {
		t.Fatalf("sqlite.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"1", 1},
		{"1, 2,,3 ", 3},
		{" , ", 0},
	}
	for _, tt := range tests {
		if got := splitList(tt.in); len(got) != tt.want {
			t.Errorf("splitList(%q) = %v, want %d items", tt.in, got, tt.want)
		}
	}
}

func TestResolveTaskAndDependencyRefs(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for _, name := range []string{"auth", "infra"} {
		if err := s.CreateEpic(ctx, &types.Epic{Name: name, Status: types.EpicBacklog}); err != nil {
			t.Fatal(err)
		}
	}
	auth, _ := s.GetEpic(ctx, "auth")
	infra, _ := s.GetEpic(ctx, "infra")
	a1 := &types.Task{EpicID: auth.ID, Name: "a1"}
	i1 := &types.Task{EpicID: infra.ID, Name: "i1"}
	for _, task := range []*types.Task{a1, i1} {
		if err := s.CreateTask(ctx, task); err != nil {
			t.Fatal(err)
		}
	}

	for _, args := range [][]string{{"auth#1"}, {"auth/1"}, {"auth", "1"}} {
		got, err := resolveTask(ctx, s, args)
		if err != nil {
			t.Fatalf("resolveTask(%v): %v", args, err)
		}
		if got.ID != a1.ID {
			t.Errorf("resolveTask(%v) = %s", args, got.Ref())
		}
	}
	if _, err := resolveTask(ctx, s, []string{"auth#9"}); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("missing task error = %v, want ErrNotFound", err)
	}

	ids, err := resolveDependencyRefs(ctx, s, "auth", []string{"1", "#1", "infra#1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[0] != a1.ID || ids[1] != a1.ID || ids[2] != i1.ID {
		t.Errorf("ids = %v, want [%d %d %d]", ids, a1.ID, a1.ID, i1.ID)
	}
	if _, err := resolveDependencyRefs(ctx, s, "auth", []string{"x"}); err == nil {
		t.Error("expected error for non-numeric ref")
	}
}

func TestCheckVersionCompatibility(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	if err := checkVersionCompatibility(ctx, s); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetMetadata(ctx, sqlite.MetaBinaryVersion); v != Version {
		t.Errorf("stamped version = %q, want %q", v, Version)
	}

	if err := s.SetMetadata(ctx, sqlite.MetaBinaryVersion, "0.0.1"); err != nil {
		t.Fatal(err)
	}
	if err := checkVersionCompatibility(ctx, s); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.GetMetadata(ctx, sqlite.MetaBinaryVersion); v != Version {
		t.Errorf("older stamp not upgraded: %q", v)
	}

	if err := s.SetMetadata(ctx, sqlite.MetaBinaryVersion, "99.0.0"); err != nil {
		t.Fatal(err)
	}
	if err := checkVersionCompatibility(ctx, s); err == nil {
		t.Error("expected an error for a database from a newer major version")
	}
}

func TestDebouncerCollapsesBursts(t *testing.T) {
	var calls atomic.Int32
	d := NewDebouncer(30*time.Millisecond, func() { calls.Add(1) })
	for i := 0; i < 5; i++ {
		d.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(150 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("action ran %d times, want 1", n)
	}

	d.Trigger()
	d.Cancel()
	time.Sleep(80 * time.Millisecond)
	if n := calls.Load(); n != 1 {
		t.Errorf("cancelled trigger still ran; calls = %d", n)
	}
}

func TestPrintErrorHint(t *testing.T) {
	var buf bytes.Buffer
	printError(&buf, errors.New("boom"))
	if buf.String() != "Error: boom\n" {
		t.Errorf("got %q", buf.String())
	}

	buf.Reset()
	printError(&buf, fmt.Errorf("open: %w", storage.ErrDBNotInitialized))
	if !strings.Contains(buf.String(), "pm init") {
		t.Errorf("missing init hint: %q", buf.String())
	}
}
