// Package protocol owns the JSON-RPC 2.0 wire contract.
//
// Ownership boundary:
// - envelope vocabulary (request, notification, result, error)
// - error code table and default messages
// - validation predicates for ids and params
// - canonical envelope encoders
// - request id generation
//
// Nothing in this package holds mutable state; it is shared freely by the
// client and server engines.
package protocol
