// Package bus is the in-process publish/subscribe transport between the vehicle bridge
// and the arbiter.
//
// Each subscription owns a bounded queue drained by its own goroutine, so messages on
// one topic are handled in publish order while different topics are handled
// concurrently. A full queue drops its oldest pending message.
package bus
