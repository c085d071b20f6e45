// Package integration provides integration tests for the store sync API
// server. These tests validate the complete server lifecycle against fake
// commerce and index backends: store registration, manual and scheduled
// sync runs, failure backoff, lock conflicts, and store removal.
package integration
