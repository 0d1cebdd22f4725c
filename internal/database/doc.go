// Package database opens pgwire connection pools to the sink, used for table
// administration, verification queries and COPY ingest.
package database
