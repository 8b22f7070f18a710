// Package quota meters conversion dispatches against rolling per-window
// limits, with independent counters for image and video work.
package quota
