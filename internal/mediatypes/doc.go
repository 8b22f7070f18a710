// Package mediatypes defines the asset kinds, target formats, and MIME
// classification helpers shared by the conversion pipeline, the capability
// detector, and the HTTP surface.
package mediatypes
