// Package session implements the assistant's session controller: start and
// stop with rollback, routing of live events into playback and captions,
// and the snapshots the UI renders.
package session
