// Package metrics exposes Prometheus collectors for capture, playback and
// sessions, plus a per-session summary written to the log when a session
// ends.
package metrics
