// Package audit writes the append-only record of everything that changed who flies the
// vehicle: mode engagements, state transitions, published commands, action faults and
// injected events.
//
// Records are JSON lines in a size-rotated file.
package audit
