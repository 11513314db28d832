// Package processor turns one input record into its rendered artifact.
//
// A record is a JSON document in one of a small closed set of schemas. It
// may name a companion EML message in the same directory; the processor waits
// a bounded time for it to appear, extracts the text body and attachment
// list, renders the configured template and publishes the result atomically
// next to the record. Failures are returned as classified errors and never
// leave partial output at the final path.
package processor
