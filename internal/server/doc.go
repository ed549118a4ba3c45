// Package server implements the serving side of JSON-RPC 2.0 over byte
// streams.
//
// Ownership boundary:
// - listeners (tcp, unix) and per-connection read loops
// - envelope validation and request/notification classification
// - the reply contract handed to application handlers
// - fatal stream errors (parse failure, batch attempt) and close-after-flush
//
// Method routing and business logic belong to the Handler.
package server
