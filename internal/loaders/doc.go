// Package loaders provides DocumentLoader implementations for the
// supported file formats. Each loader extracts ordered text elements and
// metadata from one family of file extensions.
//
// Loaders are registered with a Registry at startup and selected by
// file extension.
package loaders
