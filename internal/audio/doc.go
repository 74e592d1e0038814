// Package audio converts between PCM sample buffers and the transport
// encoding used by the live session, and implements the capture pipeline
// that turns microphone windows into outbound chunks.
package audio
