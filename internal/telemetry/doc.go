// Package telemetry streams arbiter events to ground-station clients over server-sent
// events.
//
// Every event gets a monotonic ID and is kept in a bounded buffer so a client that
// reconnects with Last-Event-ID receives what it missed. Each connection starts with a
// ready event carrying the current arbiter status.
package telemetry
