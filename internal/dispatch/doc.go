// Package dispatch decodes gateway dispatch payloads into typed events and
// delivers them to subscribers.
//
// The Dispatcher:
//   - Keeps an explicit, ordered list of subscribers per event name
//   - Delivers synchronously, in registration order, on the caller's goroutine
//   - Isolates subscribers: an error or panic in one does not stop the rest
//
// Events are a closed set of structs implementing Event. Consumers switch
// on the concrete type; names the decoder does not know arrive as Unknown.
package dispatch
