// Package transcript buffers caption fragments into per-turn entries and
// persists finalized entries to Redis or JSONL files.
package transcript
