package store

import (
	"io/fs"
	"regexp"
	"strings"
	"testing"
)

func TestMigrationsHaveUpAndDownSections(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.sql$`)
	versions := map[Dialect][]string{}

	for _, dialect := range []Dialect{Postgres, SQLite} {
		sub, err := migrationsFS(dialect)
		if err != nil {
			t.Fatalf("migrations for %s: %v", dialect, err)
		}
		entries, err := fs.ReadDir(sub, ".")
		if err != nil {
			t.Fatalf("read %s migrations: %v", dialect, err)
		}
		for _, entry := range entries {
			match := pattern.FindStringSubmatch(entry.Name())
			if match == nil {
				t.Fatalf("unexpected migration file name %s/%s", dialect, entry.Name())
			}
			body, err := fs.ReadFile(sub, entry.Name())
			if err != nil {
				t.Fatalf("read %s: %v", entry.Name(), err)
			}
			text := string(body)
			if !strings.Contains(text, "-- +goose Up") || !strings.Contains(text, "-- +goose Down") {
				t.Fatalf("%s/%s must include both goose Up and Down sections", dialect, entry.Name())
			}
			versions[dialect] = append(versions[dialect], match[1])
		}
		if len(versions[dialect]) == 0 {
			t.Fatalf("no %s migrations discovered", dialect)
		}
	}

	if strings.Join(versions[Postgres], ",") != strings.Join(versions[SQLite], ",") {
		t.Fatalf("dialects disagree on migration versions: postgres=%v sqlite=%v", versions[Postgres], versions[SQLite])
	}
}
