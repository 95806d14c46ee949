package database

import "embed"

//go:embed testdata/*.sql
var testdataDir embed.FS
