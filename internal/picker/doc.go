// Package picker feeds the catalog with importable selections. It covers the
// two intake paths: a remote picker service reached over HTTP, and a local
// drop folder polled on a timer. Both paths end the same way, with a session
// expanded into enqueued selections that the import workers claim.
package picker
