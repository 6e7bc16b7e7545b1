// Package logging sets up structured logging for docserver.
//
// The stdio JSON-RPC transport reserves stdout exclusively for protocol
// frames, so every logger built here writes to stderr (optionally tee'd
// to a rotating file for the CLI's diagnostic commands). The handler
// format adapts to whether stderr is a terminal: text when attached to
// one, JSON otherwise, so piped/aggregated logs stay machine-readable.
package logging
