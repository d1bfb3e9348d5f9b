package core

import (
	"fmt"
	"os"

	"searchcore/internal/infra/persistence/memory"
	"searchcore/internal/infra/persistence/postgres"
	"searchcore/internal/infra/persistence/sqlite"
	"searchcore/pkg/domain"
)

// StorageDriver identifies a concrete persistent storage implementation.
type StorageDriver string

const (
	StorageMemory   StorageDriver = "memory"   // in-memory only (tests / ephemeral)
	StorageSQLite   StorageDriver = "sqlite"   // embedded sqlite file
	StoragePostgres StorageDriver = "postgres" // PostgreSQL server
)

type (
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

// OpenPersistentStore selects a backend using environment variables.
// Defaults to sqlite when unset.
//
//	SEARCHCORE_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	SEARCHCORE_SQLITE_PATH: path to sqlite file (default ./searchcore.db)
//	SEARCHCORE_POSTGRES_DSN: postgres DSN when driver=postgres
func OpenPersistentStore(engine *RulesEngine) (PersistentStore, error) {
	driver := os.Getenv("SEARCHCORE_STORAGE_DRIVER")
	if driver == "" {
		driver = string(StorageSQLite)
	}
	switch StorageDriver(driver) {
	case StorageMemory:
		return memory.NewStore(engine), nil
	case StorageSQLite:
		path := os.Getenv("SEARCHCORE_SQLITE_PATH")
		return sqlite.NewStore(path, engine)
	case StoragePostgres:
		dsn := os.Getenv("SEARCHCORE_POSTGRES_DSN")
		return postgres.NewStore(dsn, engine)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", driver)
	}
}
