// Package liftlog holds assets embedded into the binaries.
package liftlog

import "embed"

// MigrationsFS contains the SQL schema migrations applied at startup.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
