// Package rest issues rate-limited REST requests.
//
// Every request is keyed by its method and route template, for example
// "POST /channels/{channel_id}/messages". Before a request is sent the
// RateLimitTable is consulted:
//   - If the global limit is active the request fails with a RateLimitError
//     whose Global field is set.
//   - If the request's bucket has no quota left before its reset, the request
//     fails with a RateLimitError for that bucket.
//
// Requests that fail this check never reach the network, and nothing is
// retried automatically. Callers decide whether to wait RetryAfter and try
// again.
//
// Rate-limit headers consumed from every response:
//   - X-RateLimit-Limit, X-RateLimit-Remaining
//   - X-RateLimit-Reset-After (preferred) or X-RateLimit-Reset
//   - X-RateLimit-Global, X-RateLimit-Bucket
//   - Retry-After and the JSON body of a 429
package rest
