// Package migrations embeds the SQL schema for every supported driver.
package migrations

import "embed"

// FS holds one directory of golang-migrate files per driver name.
//
//go:embed postgres/*.sql sqlite3/*.sql
var FS embed.FS
