// Package store persists mailbox items in a SQL database.
//
// SQLStore runs on SQLite (modernc.org/sqlite, no cgo) or PostgreSQL (pgx
// through database/sql). The schema is embedded and applied with goose when
// the store is opened. SQLStore implements source.Source.
package store
