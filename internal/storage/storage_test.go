package storage_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/untoldecay/ccpm/internal/storage"
	"github.com/untoldecay/ccpm/internal/storage/sqlite"
	"github.com/untoldecay/ccpm/internal/types"
)

var _ storage.Storage = (*sqlite.SQLiteStorage)(nil)

// countTasks only needs the read side, so it accepts both a store and a
// transaction.
func countTasks(ctx context.Context, r storage.Reader, epicID int64) (int, error) {
	tasks, err := r.ListTasks(ctx, types.TaskFilter{EpicID: &epicID})
	return len(tasks), err
}

func TestReaderSharedByStoreAndTransaction(t *testing.T) {
	ctx := context.Background()
	var s storage.Storage
	s, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "pm.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Close() }()

	epic := &types.Epic{Name: "auth"}
	if err := s.CreateEpic(ctx, epic); err != nil {
		t.Fatal(err)
	}

	errAbort := errors.New("abort")
	err = s.RunInTransaction(ctx, func(tx storage.Transaction) error {
		if err := tx.CreateTask(ctx, &types.Task{EpicID: epic.ID, Name: "a"}); err != nil {
			return err
		}
		n, err := countTasks(ctx, tx, epic.ID)
		if err != nil {
			return err
		}
		if n != 1 {
			t.Errorf("task not visible inside its transaction: %d", n)
		}
		return errAbort
	})
	if !errors.Is(err, errAbort) {
		t.Fatalf("RunInTransaction = %v, want the callback error", err)
	}

	n, err := countTasks(ctx, s, epic.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rolled back task is visible: %d", n)
	}
}
