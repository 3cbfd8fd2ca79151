// Package postgres provides PostgreSQL implementations of the store
// interfaces. Lease acquisition and source-item consumption are expressed
// as single conditional UPDATE statements so correctness holds across any
// number of concurrent worker processes.
package postgres
