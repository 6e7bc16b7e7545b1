//go:build !cgo_sqlite

package store

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver, no CGO
)

// sqlDriverName selects the SQLite driver compiled into this binary.
// The default build uses modernc.org/sqlite so docserver cross-compiles
// without a C toolchain.
const sqlDriverName = "sqlite"

const sqlDSNSuffix = "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
