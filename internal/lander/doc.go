// Package lander implements the control-authority arbiter for the autonomous landing sequence.
//
// The package owns the landing state machine (FLYING, SEEK_HOME, LAND_HIGH, LAND_LOW), the
// latest sensor readings it decides on, the per-state action selection that turns those
// readings into an RC override command, and the Router that funnels every inbound event
// through a single critical section.
//
// The package performs no I/O. Events arrive through the Router's On* methods and commands
// leave through a CommandSink; everything else (bus, vehicle link, audit, telemetry) lives in
// sibling packages.
package lander
