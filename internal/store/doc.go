// Package store defines the document-store contract used by the resolver.
// Implementations live in internal/storage; this package must not import
// database drivers or concrete clients.
package store
