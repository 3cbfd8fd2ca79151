// Package mocks provides centralized mock implementations for testing.
//
// Instead of defining inline mocks in individual test files, these
// standardized mock implementations can be reused across packages. Each
// mock carries a default in-memory implementation plus per-method Fn
// fields that override it, so a test can start from realistic behavior
// and replace exactly the calls it needs to fail or observe.
package mocks
