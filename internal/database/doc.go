// Package database provides the PostgreSQL connection pool used by the
// event journal.
package database
