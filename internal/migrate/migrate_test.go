package migrate

import (
	"testing"

	"slipway/internal/db"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	if err := Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}

	all, err := steps()
	if err != nil {
		t.Fatalf("steps: %v", err)
	}
	if len(all) == 0 {
		t.Fatal("no embedded migrations")
	}
	v, err := currentVersion(conn)
	if err != nil {
		t.Fatalf("current version: %v", err)
	}
	if want := all[len(all)-1].version; v != want {
		t.Fatalf("version = %d, want %d", v, want)
	}
}
