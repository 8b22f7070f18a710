// Package convert runs individual media conversions. A Pipeline takes
// an immutable Request, selects a backend from the capability matrix,
// encodes into a temporary file, and publishes the artifact with an
// atomic rename so consumers never observe partial output. Failures are
// typed as transient or permanent so callers know what to retry.
package convert
