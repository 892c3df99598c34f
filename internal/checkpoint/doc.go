// Package checkpoint persists gateway session state in Redis so a restarted
// process can resume instead of re-identifying.
//
// One key is kept per shard:
//
//	<prefix>:session:<shard_id>
//
// The value is the JSON encoding of gateway.Session. Every Save refreshes
// the key TTL; a session older than the TTL is treated as gone.
package checkpoint
