// Package server implements the GoChat relay: a plain-text chat server that
// negotiates a nickname for every connection and fans each received payload
// out to all connected clients, the sender included.
//
// The implementation is organized into specialized files for configuration,
// connections, the registry and hub, the handshake and receive loop, the TCP
// and WebSocket listeners, and HTTP handlers.
//
// The relay does not frame messages. A payload is whatever one read returns,
// up to Config.ReadBufferSize bytes, so two client writes may arrive as one
// broadcast and a long write may arrive as several.
package server
