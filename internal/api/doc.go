// Package api provides the HTTP handlers for the dispatch engine's
// inbound surface: enqueueing tasks, stopping them, and observing the
// queue. Authentication is applied by the surrounding router, not here.
package api
