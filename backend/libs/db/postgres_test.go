package db

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := NewPostgresDB(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestConfigureAppliesDefaults(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	Configure(db, PoolOptions{MaxOpenConns: 7})
	if got := db.Stats().MaxOpenConnections; got != 7 {
		t.Fatalf("max open = %d, want 7", got)
	}

	opts := PoolOptions{}.withDefaults()
	if opts.MaxIdleConns != 2 || opts.PingTimeout != 5*time.Second {
		t.Fatalf("defaults = %+v", opts)
	}
}
