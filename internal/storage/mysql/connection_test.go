package mysql

import (
	"context"
	"testing"
	"time"
)

func TestDriverConfigForcesUTCTimes(t *testing.T) {
	cfg, err := driverConfig("keeper:secret@tcp(db.internal:3306)/orchkeeper?timeout=3s")
	if err != nil {
		t.Fatalf("driver config: %v", err)
	}
	if !cfg.ParseTime || cfg.Loc != time.UTC {
		t.Fatalf("expected parseTime in UTC, got parseTime=%t loc=%v", cfg.ParseTime, cfg.Loc)
	}
	if cfg.Timeout != 3*time.Second {
		t.Fatalf("explicit timeout should be kept, got %s", cfg.Timeout)
	}
	if cfg.Addr != "db.internal:3306" || cfg.DBName != "orchkeeper" {
		t.Fatalf("unexpected target %s/%s", cfg.Addr, cfg.DBName)
	}

	cfg, err = driverConfig("keeper@tcp(127.0.0.1:3306)/orchkeeper")
	if err != nil {
		t.Fatalf("driver config: %v", err)
	}
	if cfg.Timeout != defaultDialTimeout {
		t.Fatalf("expected default dial timeout, got %s", cfg.Timeout)
	}
}

func TestOpenDatabaseRejectsBadDSN(t *testing.T) {
	for _, dsn := range []string{"", "   ", "not a dsn"} {
		if _, err := openDatabase(context.Background(), Config{DSN: dsn}); err == nil {
			t.Fatalf("expected DSN %q to be rejected", dsn)
		}
	}
}

func TestPositiveOr(t *testing.T) {
	if positiveOr(0, 4) != 4 || positiveOr(-1, 4) != 4 || positiveOr(8, 4) != 8 {
		t.Fatal("unexpected int fallback")
	}
	if positiveOr(time.Duration(0), time.Minute) != time.Minute {
		t.Fatal("unexpected duration fallback")
	}
}
