// Package replay plays scripted sensor scenarios onto the event bus, so the arbiter can
// be exercised on the bench without a vehicle or autopilot bridge.
package replay
