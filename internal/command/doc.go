// Package command carries arbiter output to the vehicle and reports what happened.
//
// The Dispatcher is the router's command sink: it checks every frame against the PWM
// limits, hands it to the vehicle link under the command timeout and traces the send.
// It is also a router observer, turning each handled event into audit records,
// telemetry events and log lines.
package command
