package store

import (
	"io/fs"
	"os"
	"regexp"
	"testing"

	"toolcatalog/db"
)

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}

	entries, err := fs.ReadDir(db.Migrations, "migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestMigrationFilesFromEmbedAndDisk(t *testing.T) {
	embedded, err := migrationFiles(db.Migrations, ".up.sql")
	if err != nil {
		t.Fatalf("embedded: %v", err)
	}
	onDisk, err := migrationFiles(os.DirFS("../../db/migrations"), ".up.sql")
	if err != nil {
		t.Fatalf("disk: %v", err)
	}
	if len(embedded) == 0 || len(embedded) != len(onDisk) {
		t.Fatalf("expected the same non-empty set, got %v and %v", embedded, onDisk)
	}
	if embedded[0] != "migrations/0001_catalog.up.sql" {
		t.Fatalf("unexpected first embedded migration %q", embedded[0])
	}
	if onDisk[0] != "0001_catalog.up.sql" {
		t.Fatalf("unexpected first disk migration %q", onDisk[0])
	}
}
