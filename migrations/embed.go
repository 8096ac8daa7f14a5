// Package migrations carries the embedded SQL schema migrations so a
// single binary can bring any database up to date.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
