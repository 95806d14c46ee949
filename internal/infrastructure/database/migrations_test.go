package database

import (
	"context"
	"io/fs"
	"testing"
	"testing/fstest"
)

func testdataFS(t *testing.T) fs.FS {
	t.Helper()
	sub, err := fs.Sub(testdataDir, "testdata")
	if err != nil {
		t.Fatal(err)
	}
	return sub
}

func TestMigrate(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testdataFS(t)

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	if _, err := db.ExecContext(ctx, "INSERT INTO widgets (id, name, colour) VALUES ('w1', 'one', 'red')"); err != nil {
		t.Fatalf("schema not applied: %v", err)
	}

	applied, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatalf("MigrationStatus() error = %v", err)
	}
	if len(applied) != 2 || len(pending) != 0 {
		t.Errorf("applied %d, pending %d; want 2, 0", len(applied), len(pending))
	}
	if applied[0].AppliedAt.IsZero() {
		t.Error("AppliedAt not recorded")
	}

	// Idempotent.
	if err := db.Migrate(ctx, src); err != nil {
		t.Fatalf("second Migrate() error = %v", err)
	}
}

func TestMigrate_NilSource(t *testing.T) {
	db := openTestDB(t)
	if err := db.Migrate(context.Background(), nil); err != nil {
		t.Errorf("Migrate(nil) error = %v", err)
	}
}

func TestMigrate_FailureStopsAtBrokenMigration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := fstest.MapFS{
		"20260101_000000_ok.up.sql":     {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260102_000000_broken.up.sql": {Data: []byte("CREATE TABLE ok (id INTEGER);")},
		"20260103_000000_later.up.sql":  {Data: []byte("CREATE TABLE later (id INTEGER);")},
	}

	if err := db.Migrate(ctx, src); err == nil {
		t.Fatal("Migrate() expected error for duplicate table")
	}

	applied, pending, err := db.MigrationStatus(ctx, src)
	if err != nil {
		t.Fatal(err)
	}
	if len(applied) != 1 || len(pending) != 2 {
		t.Errorf("applied %d, pending %d; want 1, 2", len(applied), len(pending))
	}
}

func TestMigrateDown(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := fstest.MapFS{
		"20260101_000000_things.up.sql":   {Data: []byte("CREATE TABLE things (id INTEGER);")},
		"20260101_000000_things.down.sql": {Data: []byte("DROP TABLE things;")},
	}

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateDown(ctx, src); err != nil {
		t.Fatalf("MigrateDown() error = %v", err)
	}

	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE name = 'things'").Scan(&name)
	if err == nil {
		t.Error("table still exists after MigrateDown")
	}

	// Nothing left to roll back.
	if err := db.MigrateDown(ctx, src); err != nil {
		t.Errorf("MigrateDown() with nothing applied error = %v", err)
	}
}

func TestMigrateDown_NoDownSQL(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	src := testdataFS(t)

	if err := db.Migrate(ctx, src); err != nil {
		t.Fatal(err)
	}
	if err := db.MigrateDown(ctx, src); err == nil {
		t.Error("MigrateDown() expected error for migration without down SQL")
	}
}

func TestLoadMigrations(t *testing.T) {
	migrations, err := LoadMigrations(testdataFS(t))
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("got %d migrations, want 2", len(migrations))
	}
	first := migrations[0]
	if first.Version != "20260101_000000" || first.Name != "widgets" || first.DownSQL == "" {
		t.Errorf("first migration = %+v", first)
	}
	if migrations[1].Name != "widget_colour" {
		t.Errorf("second migration name = %q", migrations[1].Name)
	}
}

func TestParseMigrationFilename(t *testing.T) {
	tests := []struct {
		name    string
		version string
		up      bool
		ok      bool
	}{
		{"20260118_120000_initial.up.sql", "20260118_120000", true, true},
		{"20260118_120000_initial.down.sql", "20260118_120000", false, true},
		{"20260118_120000.up.sql", "20260118_120000", true, true},
		{"20260118_120000_initial.sql", "", false, false},
		{"README.md", "", false, false},
		{"nounderscore.up.sql", "", false, false},
	}
	for _, tt := range tests {
		version, up, ok := parseMigrationFilename(tt.name)
		if version != tt.version || up != tt.up || ok != tt.ok {
			t.Errorf("parseMigrationFilename(%q) = (%q, %v, %v), want (%q, %v, %v)",
				tt.name, version, up, ok, tt.version, tt.up, tt.ok)
		}
	}
}

func TestExtractMigrationName(t *testing.T) {
	tests := map[string]string{
		"20260301_090000_entity_registry.up.sql":   "entity_registry",
		"20260301_090000_entity_registry.down.sql": "entity_registry",
		"20260301_090000.up.sql":                   "20260301_090000",
	}
	for in, want := range tests {
		if got := extractMigrationName(in); got != want {
			t.Errorf("extractMigrationName(%q) = %q, want %q", in, got, want)
		}
	}
}
