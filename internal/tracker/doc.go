// Package tracker keeps the ledger of completed conversions and the
// byte savings they achieved, whether produced locally or reported by
// the external processing service.
package tracker
