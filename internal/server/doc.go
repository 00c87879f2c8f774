// Package server implements the presence and message-relay core of the chat
// backend: the session registry, presence broadcaster, and event router, plus
// the WebSocket transport and HTTP surface they are served through.
//
// The implementation is organized into specialized files for configuration,
// hub management, clients, routing, and HTTP handlers to keep the codebase
// maintainable and testable as the project grows.
package server
