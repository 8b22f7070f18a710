// Package middleware provides HTTP middleware for the optimizer's API
// surface: W3C Extended Log Format access logging, Prometheus request
// metrics, request id propagation, and gzip compression for JSON
// responses.
package middleware
