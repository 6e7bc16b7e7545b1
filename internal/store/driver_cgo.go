//go:build cgo_sqlite

package store

import (
	_ "github.com/mattn/go-sqlite3" // CGO-accelerated driver, opt-in via build tag
)

// sqlDriverName selects the SQLite driver compiled into this binary. Build
// with -tags cgo_sqlite to link mattn/go-sqlite3 instead, trading the
// pure-Go default for CGO's faster native SQLite implementation.
const sqlDriverName = "sqlite3"

const sqlDSNSuffix = "?_journal_mode=WAL&_foreign_keys=on"
