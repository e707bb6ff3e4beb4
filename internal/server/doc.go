// Package server runs the chat relay.
//
// The Hub owns the session registry and the group directory and starts one
// lifecycle worker (Client) per accepted connection. Connections arrive
// either from the TCP Listener, which speaks the newline-framed text
// protocol, or from the /ws HTTP endpoint, which carries one line per
// WebSocket text frame. Both end up in Hub.Serve and behave identically.
package server
