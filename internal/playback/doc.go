// Package playback schedules decoded response audio for gapless output and
// renders scheduled sources into a PCM sink in real time.
package playback
