// Package db ships the Postgres migrations with the binary.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
