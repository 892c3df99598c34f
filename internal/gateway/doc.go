// Package gateway implements the gateway Connection Manager.
//
// The Connection Manager:
//   - Maintains exactly one WebSocket connection per client
//   - Drives identify/resume after the Hello frame
//   - Sends heartbeats and forces a reconnect when an ack is missed
//   - Classifies close codes and reconnects with exponential backoff
//   - Decodes dispatch frames and hands them to the Dispatcher in order
//
// All session and heartbeat state is owned by the connection event loop.
// Socket writes from the loop and from application commands serialize
// through the client's write mutex.
package gateway
