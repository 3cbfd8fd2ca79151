// Package service contains the application services that orchestrate
// domain logic, persistence, and the automation provider on behalf of the
// API layer.
package service
