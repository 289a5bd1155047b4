// Package mesh implements the core of a scalable Bluetooth-Low-Energy mesh
// discovery and clusterhead-election protocol engine.
//
// This includes the wire codec for discovery and election-announcement
// frames, the node state machine, the neighbor table, the discovery cycle,
// broadcast timing, the RSSI-derived crowding estimator, the forwarding
// filter, the bounded forward queue, and the clusterhead election evaluator.
//
// The engine is single-threaded and cooperative: callers drive it entirely
// through Tick and Receive, passing the current time explicitly. The engine
// consults no clock and starts no goroutines. Serialize and Parse write into
// caller-owned buffers and do not allocate on success. ForwardQueue.Dequeue
// and Peek return a pointer to a heap-allocated copy of the queued Packet,
// so a Tick that drains a queued frame allocates one Packet.
package mesh
