// Package testdb provides database helpers for integration tests. Tests
// that need a real Postgres instance obtain a migrated connection from
// GetTestDB and run inside a rolled-back transaction via WithTx, so they
// leave no state behind and can run concurrently.
//
// The connection URL comes from the DISPATCH_TEST_DATABASE_URL
// environment variable; tests skip themselves when it is unset.
package testdb
