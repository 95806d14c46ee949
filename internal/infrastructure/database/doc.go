// Package database provides the SQLite store behind the entity registry.
//
// It opens the database with WAL mode and a busy timeout, and applies
// versioned migrations from any fs.FS (the binary embeds them from the
// top-level migrations package).
//
// Usage:
//
//	db, err := database.Open(cfg.Database)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations are additive: new columns are nullable or carry a default, so
// an older binary can still read a newer file.
package database
