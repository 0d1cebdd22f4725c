// Package model defines the records that flow through the ingest pipeline:
// decoded quotes, batches of quotes, source files and their checkpoints.
package model
