// Package execunit runs one bounded batch of ingest work: the files of one
// listing time window, staged into a workspace of their own.
//
// A Unit is driven as Start, Do, Stop by a single goroutine. Units share
// nothing but the remote reader's pending set, in which each unit only
// touches the keys of its own window. Start attaches an optional per-unit
// log file and creates the workspace; Stop removes the workspace when policy
// allows and always releases the log file.
package execunit
