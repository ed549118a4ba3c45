// Package client implements the calling side of a JSON-RPC 2.0 connection.
//
// Ownership boundary:
// - dialing and re-dialing one remote address (tcp, unix, ws)
// - request id assignment and the per-connection pending table
// - response correlation by id, per-request timeouts
// - bulk cancellation when the connection is lost or the stream breaks
//
// Retry policy is left to callers; see session.Backoff.
package client
