package repository

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationFS embed.FS

// emailKeyMigration adds talent_applications.email_key. Existing rows are
// backfilled from Go right after it runs so the key matches
// model.NormalizeEmail exactly.
const emailKeyMigration = "_email_key"

func backfillsEmailKey(version string) bool {
	return strings.HasSuffix(version, emailKeyMigration)
}

type emailKeyRow struct {
	id    string
	email string
}

type migration struct {
	version string
	sql     string
}

func loadMigrations(dialect string) ([]migration, error) {
	dir := path.Join("migrations", dialect)
	entries, err := migrationFS.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	out := make([]migration, 0, len(names))
	for _, name := range names {
		data, err := migrationFS.ReadFile(path.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, migration{version: strings.TrimSuffix(name, ".sql"), sql: string(data)})
	}
	return out, nil
}
