/*
Package broadcast delivers live pool and transfer notifications to connected
devices over server-sent events.

The broadcaster keeps a process-local registry of subscribers, one per open
event-stream connection. A subscription is keyed by a client id derived from
both the device id and the authenticated pool, so one device subscribed to two
pools holds two independent streams and never sees another pool's events.

# Architecture

	┌──────────────────── BROADCASTER ─────────────────────┐
	│                                                       │
	│  Subscribe(device, pool) ──► registry [(id, chan)]    │
	│                                  │                    │
	│  Broadcast(devices, pool, ev) ───┤ snapshot + fan-out │
	│                                  │                    │
	│  ping loop (30s) ────────────────┘ evict stale        │
	└───────────────────────────────────────────────────────┘

Each subscriber owns a buffered channel (depth 10). Sends are non-blocking: a
consumer that stops draining fails its next delivery and is evicted by the
periodic liveness probe. The registry mutex is held only to snapshot or
replace the subscriber list, never across a send.

# Wire format

Messages encode as standard text/event-stream records:

	: Ping                        keepalive, comment line
	event: connected              subscription acknowledgment
	event: pool / transfer        JSON payload in the data line
	event: logout                 no payload, pool was destroyed

# Usage

	b := broadcast.NewBroadcaster()
	b.Start()
	defer b.Stop()

	sub := b.Subscribe(deviceID, hashedKeyPhrase)
	defer b.Unsubscribe(sub)
	for msg := range sub.Ch() {
		_ = msg.WriteTo(w)
	}
*/
package broadcast
