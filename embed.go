// Package relabel carries the build-time assets of the label print-tracking
// server. The SQL migrations ship inside the binary so a deployment is a
// single file plus its data directory.
package relabel

import "embed"

//go:embed migrations/*
var MigrationFS embed.FS
