// Package startup handles configuration loading, directory validation,
// and the structured startup/shutdown logging for the media optimizer.
//
// Configuration is read from environment variables with sensible defaults
// and is validated once at boot; the resulting Config value is immutable
// and injected into the components that need it.
package startup
