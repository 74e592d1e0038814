// Package live speaks the bidirectional streaming protocol of the remote
// voice model: it opens a session, streams microphone chunks up and turns
// server messages into ordered events.
package live
