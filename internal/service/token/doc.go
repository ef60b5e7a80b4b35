// Package token manages the per-address unsubscribe secret.
//
// One token is shared by every membership row carrying an address. It is
// issued lazily on first send and cleared when the address unsubscribes.
// Issuance happens under a row lock so two concurrent sends to the same
// address cannot mint different tokens.
package token
