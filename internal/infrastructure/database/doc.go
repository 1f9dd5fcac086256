// Package database opens the SQLite file behind the notification journal
// and applies its embedded schema migrations.
//
// The entity graph itself is never stored here; it lives in memory and is
// rebuilt from the cloud snapshot on every start. SQLite only keeps the
// append-only history of graph notifications.
//
// Migrations are plain SQL files named
//
//	YYYYMMDD_HHMMSS_description.up.sql
//
// read from any fs.FS (normally the embed.FS in the top-level migrations
// package). Each migration runs in its own transaction and is recorded in
// the schema_migrations table.
package database
