// Package telemetry keeps the last-known device state and fans it out to
// SSE subscribers. The store is written only by the device link's inbound
// datagram classifier; every write is immediately followed by a broadcast
// of the full snapshot.
package telemetry
