// Package session owns connection tuning shared by both engines.
//
// Ownership boundary:
// - request, connect, write, idle and linger timeouts
// - read buffer and reply chunk sizes
// - decoder limits
// - reconnect backoff primitives (the engines never retry on their own)
package session
