//go:build integration

package entstore

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
)

func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	pg, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("summon"),
		tcpostgres.WithUsername("summon"),
		tcpostgres.WithPassword("summon"),
		tcpostgres.WithSQLDriver("pgx"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pg)
	if err != nil {
		t.Skipf("skip: cannot start postgres: %v", err)
	}

	// ConnectionString returns a postgres:// URL usable by pgx.
	dsn, err := pg.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	st, err := Open(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = st.Close() })
	if err := st.Migrate(ctx); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestPostgresAuditFlow(t *testing.T) {
	ctx := context.Background()
	st := startPostgres(t)

	params, _ := json.Marshal(map[string]any{"state": "lucid"})
	if _, err := st.AppendAudit(ctx, auditRecord("pa1", "octocat", "alter_state", params)); err != nil {
		t.Fatal(err)
	}
	if _, err := st.AppendAudit(ctx, auditRecord("pa2", "octocat", "summon", nil)); err != nil {
		t.Fatal(err)
	}
	// idempotent
	if _, err := st.AppendAudit(ctx, auditRecord("pa2", "octocat", "summon", nil)); err != nil {
		t.Fatal(err)
	}

	got, err := st.ListAudit(ctx, "octocat", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("len=%d want 2", len(got))
	}
	if got[0].RecordID != "pa2" || got[1].RecordID != "pa1" {
		t.Fatalf("order wrong: %+v", got)
	}
	var p map[string]any
	if err := json.Unmarshal(got[1].Parameters, &p); err != nil || p["state"] != "lucid" {
		t.Fatalf("parameters=%s err=%v", got[1].Parameters, err)
	}
}
