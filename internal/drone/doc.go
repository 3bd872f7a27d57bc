// Package drone owns the UDP command/telemetry channel to the device.
//
// The wire protocol has no request IDs: inbound datagrams are matched to
// outbound commands purely by arrival order, so the link serializes
// callers and keeps at most one command in flight. Datagrams that look
// like telemetry (numeric, "cm/s", trailing "s") never resolve a pending
// command; they update the store and trigger a fan-out broadcast instead.
package drone
