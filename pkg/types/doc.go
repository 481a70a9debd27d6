// Package types defines the Store interface, the note, dictionary and
// test-history entity types, and the standard errors for the cidian
// vocabulary store.
package types
