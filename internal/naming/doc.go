// Package naming maps source file identities to canonical archive identifiers
// and storage URIs.
//
// A Strategy is derived once per source entry and is a pure function of its
// inputs and its Collection: deriving it again for the same entry, in another
// unit or on a retry, yields identical ids and URIs. Only the metadata and
// file info may be back-filled after construction.
//
// A Context holds the strategies of one listing, keyed by Strategy.Key, and
// fans raw entries out through a collection-specific Expander.
package naming
