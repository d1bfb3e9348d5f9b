package postgres

import (
	"database/sql"
	"fmt"
	"testing"

	"searchcore/pkg/domain"
)

func TestNewStoreOpenFailure(t *testing.T) {
	restore := OverrideSQLOpen(func(driverName, dsn string) (*sql.DB, error) {
		if driverName != defaultDriver {
			t.Fatalf("unexpected driver %s", driverName)
		}
		return nil, fmt.Errorf("refused")
	})
	defer restore()

	if _, err := NewStore("postgres://example/searchcore", domain.NewRulesEngine()); err == nil {
		t.Fatalf("expected open error")
	}
}

func TestNewStoreDefaultsDSN(t *testing.T) {
	var gotDSN string
	restore := OverrideSQLOpen(func(_, dsn string) (*sql.DB, error) {
		gotDSN = dsn
		return nil, fmt.Errorf("refused")
	})
	defer restore()

	_, _ = NewStore("", domain.NewRulesEngine())
	if gotDSN != defaultDSN {
		t.Fatalf("expected default dsn, got %s", gotDSN)
	}
}

func TestOverrideSQLOpenRestores(t *testing.T) {
	marker := func(string, string) (*sql.DB, error) { return nil, fmt.Errorf("marker") }
	restore := OverrideSQLOpen(marker)
	restore()
	if _, err := sqlOpen("pgx", "postgres://localhost/none?sslmode=disable"); err != nil {
		// sql.Open defers connectivity; an immediate error would mean the
		// override leaked through restore.
		t.Fatalf("restored sqlOpen should be database/sql Open: %v", err)
	}
}
