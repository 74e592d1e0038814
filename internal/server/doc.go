// Package server exposes the session controller over HTTP, a WebSocket
// snapshot stream and a line-oriented console.
package server
