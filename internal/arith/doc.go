// Package arith is the example RPC application served by rpcserverd.
//
// Ownership boundary:
// - subtract ("-") and sum ("+") over positional or named params
// - echo for transport checks
// - the update notification and its in-memory record
package arith
