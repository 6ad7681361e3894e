// Package pipeline runs the per-file work of one execution unit: list the
// unit's entries, name each one, read its metadata, run the metadata and
// data visitors, store it in the archive, and clean up after success.
//
// A Runner reports its outcome as an integer so the results of a run and its
// retry can be OR-combined: Success (0) when every entry succeeded, Failed
// otherwise.
package pipeline
