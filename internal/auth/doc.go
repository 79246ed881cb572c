// Package auth verifies bearer tokens on the operator API and enforces roles and scopes.
//
// Viewers may read the arbiter status and subscribe to telemetry. Operators may also
// inject inbound events for bench and hardware-in-the-loop runs. No token can change the
// autonomous mode: that only ever follows the RC switch.
package auth
