package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stratline/internal/db"
	"stratline/internal/migrate"
	"stratline/internal/repo"
)

func runCommand(t *testing.T, cmd *cobra.Command, args []string) {
	t.Helper()
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%s: %v", cmd.Use, err)
	}
}

func openRepo(t *testing.T, workspace string) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return repo.Repo{DB: conn}
}

// Listing the thesis ledger is a read; it must not rewrite the working
// snapshot. Appending a line must.
func TestThesisListingLeavesSnapshotAlone(t *testing.T) {
	workspace := t.TempDir()
	viper.Set("workspace", workspace)
	viper.Set("json", true)
	t.Cleanup(viper.Reset)
	ctx := context.Background()

	runCommand(t, ledgerThesisCmd(), []string{"--line", "charge for outcomes"})

	r := openRepo(t, workspace)
	if _, err := r.GetSnapshot(ctx, currentSnapshotID); err != nil {
		t.Fatalf("append did not persist the working snapshot: %v", err)
	}

	// Remove the snapshot; a pure listing must not recreate it.
	if err := r.DeleteSnapshot(ctx, currentSnapshotID); err != nil {
		t.Fatalf("delete snapshot: %v", err)
	}
	runCommand(t, ledgerThesisCmd(), []string{})
	if _, err := r.GetSnapshot(ctx, currentSnapshotID); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("listing rewrote the working snapshot: %v", err)
	}
}
