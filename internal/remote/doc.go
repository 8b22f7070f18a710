// Package remote integrates with the external conversion service. The
// protocol is two-phase: Client.Submit sends a job and the service
// later reports the outcome through a webhook, which the Reconciler
// applies to local job state and the savings tracker. Submission and
// completion are correlated by asset id and account id only.
package remote
