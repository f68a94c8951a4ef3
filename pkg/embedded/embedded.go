// Package embedded provides static assets compiled into the binary.
package embedded

import (
	"embed"
)

// Schemas contains the SQL schema files applied by database.Migrate.
// Embedding them keeps migrations working regardless of working directory
// or executable location (tests, CI, production).
//
//go:embed schemas
var Schemas embed.FS
