package repository

import (
	"context"
	"fmt"
	"strings"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open constructs the backend named by driver.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverMemory, "":
		return NewMemoryStore(opts...), nil
	case DriverSQLite:
		return OpenSQLite(ctx, dsn, opts...)
	case DriverPostgres, "postgresql", "supabase":
		return OpenPostgres(ctx, dsn, opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}
}
