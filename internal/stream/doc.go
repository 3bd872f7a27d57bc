// Package stream fans raw video chunks out to WebSocket subscribers.
//
// Delivery is per-subscriber isolated: one failing connection is removed
// and logged without interrupting delivery to the rest. Chunks are
// forwarded verbatim; subscribers must tolerate partial codec frames
// across chunk boundaries.
package stream
