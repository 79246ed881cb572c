// Package api serves the operator HTTP/JSON API of the landing arbiter.
//
// It exposes the arbiter status, the telemetry stream over server-sent events and an
// injection endpoint that publishes inbound events onto the bus for bench runs. Every
// response uses the result/data/code/message/correlationId envelope.
package api
