// Package journal records every gateway dispatch event in PostgreSQL.
//
// The Writer subscribes to the dispatcher, queues one row per event and
// batch-inserts them with pgx.Batch when the batch fills or the flush
// interval passes. Rows are keyed by (session_id, seq) so a replayed
// event after resume is written once.
//
// Schema:
//
//	gateway_events(event_id uuid, session_id text, shard int, seq bigint,
//	               name text, received_at timestamptz, payload jsonb)
package journal
