package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/okian/cohort/internal/adapters/repository"
	"github.com/okian/cohort/internal/adapters/repository/storetest"
)

const dsnEnv = "COHORT_TEST_POSTGRES_DSN"

func TestStore_Contract(t *testing.T) {
	dsn := os.Getenv(dsnEnv)
	if dsn == "" {
		t.Skipf("%s not set", dsnEnv)
	}
	storetest.Run(t, func(t *testing.T) repository.Store {
		ctx := context.Background()
		s, err := Open(ctx, dsn)
		if err != nil {
			t.Fatalf("open postgres store: %v", err)
		}
		if _, err := s.pool.Exec(ctx, `TRUNCATE phase_configs, applications, reviews, cutoff_runs,
	notification_outcomes, audit_log, admins`); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return s
	})
}

func TestOpen_EmptyDSN(t *testing.T) {
	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
