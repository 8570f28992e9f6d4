package db

import (
	"strings"
	"testing"
)

func TestConfigMigrateURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Password = "p@ss word"

	got := cfg.MigrateURL()
	if !strings.HasPrefix(got, "pgx5://postgres:") {
		t.Fatalf("expected pgx5 scheme with user, got %s", got)
	}
	if !strings.Contains(got, "@localhost:5432/yoda?sslmode=disable") {
		t.Fatalf("unexpected url %s", got)
	}
	if strings.Contains(got, "p@ss word") {
		t.Fatalf("expected password to be escaped, got %s", got)
	}
}

func TestConfigDSN(t *testing.T) {
	got := DefaultConfig().DSN()
	want := "host=localhost port=5432 user=postgres password=admin dbname=yoda sslmode=disable"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	var up, down int
	for _, entry := range entries {
		switch {
		case strings.HasSuffix(entry.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(entry.Name(), ".down.sql"):
			down++
		}
	}
	if up == 0 || up != down {
		t.Fatalf("expected matching up/down migrations, got %d up and %d down", up, down)
	}
}
