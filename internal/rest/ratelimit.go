package rest

import (
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rate-limit response headers.
const (
	headerLimit      = "X-RateLimit-Limit"
	headerRemaining  = "X-RateLimit-Remaining"
	headerReset      = "X-RateLimit-Reset"
	headerResetAfter = "X-RateLimit-Reset-After"
	headerGlobal     = "X-RateLimit-Global"
	headerBucket     = "X-RateLimit-Bucket"
	headerRetryAfter = "Retry-After"
)

// sameWindowTolerance absorbs the latency skew between two responses that
// report the same reset with Reset-After.
const sameWindowTolerance = 500 * time.Millisecond

// Bucket is the last known quota of one bucket key.
type Bucket struct {
	Key       string
	ID        string // X-RateLimit-Bucket, informational
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type bucketState struct {
	Bucket
	inflight int // requests sent and not yet answered
}

// RateLimitInfo is the rate-limit metadata of one response.
type RateLimitInfo struct {
	HasBucket  bool // Remaining and a reset were both present
	BucketID   string
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	ResetAt    time.Time
	Global     bool
	Limited    bool // The response was a 429
	RetryAfter time.Duration
}

// RateLimitTable tracks bucket quotas and the global limit. It is safe for
// concurrent use; every check and update runs under one mutex.
type RateLimitTable struct {
	mu            sync.Mutex
	buckets       map[string]*bucketState
	globalResetAt time.Time

	now func() time.Time
}

// NewRateLimitTable creates an empty table.
func NewRateLimitTable() *RateLimitTable {
	return &RateLimitTable{
		buckets: make(map[string]*bucketState),
		now:     time.Now,
	}
}

// Acquire checks key against the global limit and its bucket. When the
// request may proceed a slot is reserved until Release, so concurrent
// callers cannot both spend the last remaining request. Buckets without
// response data yet are not limited.
func (t *RateLimitTable) Acquire(key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Before(t.globalResetAt) {
		return &RateLimitError{Global: true, RetryAfter: t.globalResetAt.Sub(now)}
	}

	b := t.bucket(key)
	if now.Before(b.ResetAt) && b.Remaining-b.inflight <= 0 {
		return &RateLimitError{Bucket: key, RetryAfter: b.ResetAt.Sub(now)}
	}

	b.inflight++
	return nil
}

// Release returns the slot reserved by Acquire and applies the response
// metadata. info is nil when no response arrived.
func (t *RateLimitTable) Release(key string, info *RateLimitInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b := t.bucket(key)
	if b.inflight > 0 {
		b.inflight--
	}
	if info == nil {
		return
	}

	now := t.now()
	if info.BucketID != "" {
		b.ID = info.BucketID
	}
	if info.HasBucket {
		t.apply(b, info, now)
	}

	if !info.Limited {
		return
	}
	resetAt := now.Add(info.RetryAfter)
	if info.Global {
		if resetAt.After(t.globalResetAt) {
			t.globalResetAt = resetAt
		}
		return
	}
	b.Remaining = 0
	if resetAt.After(b.ResetAt) {
		b.ResetAt = resetAt
	}
}

// apply updates a bucket from response headers. Responses can arrive out of
// order; within one window the lowest remaining count wins.
func (t *RateLimitTable) apply(b *bucketState, info *RateLimitInfo, now time.Time) {
	resetAt := info.ResetAt
	if info.ResetAfter > 0 {
		resetAt = now.Add(info.ResetAfter)
	}

	sameWindow := now.Before(b.ResetAt) && !resetAt.After(b.ResetAt.Add(sameWindowTolerance))
	if sameWindow {
		b.Remaining = min(b.Remaining, info.Remaining)
		if resetAt.After(b.ResetAt) {
			b.ResetAt = resetAt
		}
	} else {
		b.Remaining = info.Remaining
		b.ResetAt = resetAt
	}
	b.Limit = info.Limit
}

func (t *RateLimitTable) bucket(key string) *bucketState {
	b, ok := t.buckets[key]
	if !ok {
		b = &bucketState{Bucket: Bucket{Key: key}}
		t.buckets[key] = b
	}
	return b
}

// Snapshot returns a copy of a bucket.
func (t *RateLimitTable) Snapshot(key string) (Bucket, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[key]
	if !ok {
		return Bucket{}, false
	}
	return b.Bucket, true
}

// GlobalResetAt returns when the global limit ends. The zero time means no
// global limit was ever reported.
func (t *RateLimitTable) GlobalResetAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.globalResetAt
}

// parseRateLimitHeaders extracts rate-limit metadata from response headers.
func parseRateLimitHeaders(h http.Header) RateLimitInfo {
	info := RateLimitInfo{
		BucketID: h.Get(headerBucket),
		Global:   strings.EqualFold(h.Get(headerGlobal), "true"),
	}

	remaining, errRemaining := strconv.Atoi(h.Get(headerRemaining))
	resetAfter, hasResetAfter := parseSeconds(h.Get(headerResetAfter))
	resetEpoch, hasReset := parseSeconds(h.Get(headerReset))

	if errRemaining == nil && (hasResetAfter || hasReset) {
		info.HasBucket = true
		info.Remaining = max(remaining, 0)
		if limit, err := strconv.Atoi(h.Get(headerLimit)); err == nil {
			info.Limit = limit
		}
		if hasResetAfter {
			info.ResetAfter = secondsToDuration(resetAfter)
		} else {
			info.ResetAt = time.UnixMilli(int64(math.Round(resetEpoch * 1000)))
		}
	}

	if retryAfter, ok := parseSeconds(h.Get(headerRetryAfter)); ok {
		info.RetryAfter = secondsToDuration(retryAfter)
	}

	return info
}

// rateLimitBody is the JSON body of a 429.
type rateLimitBody struct {
	Message    string  `json:"message"`
	RetryAfter float64 `json:"retry_after"`
	Global     bool    `json:"global"`
	Code       int     `json:"code"`
}

// applyLimited marks info as a 429 and merges the body into it. The body's
// retry_after is the most precise source, then Retry-After, then
// Reset-After. It returns the server message.
func (info *RateLimitInfo) applyLimited(body []byte) string {
	info.Limited = true

	var rb rateLimitBody
	if len(body) > 0 && json.Unmarshal(body, &rb) == nil {
		if rb.RetryAfter > 0 {
			info.RetryAfter = secondsToDuration(rb.RetryAfter)
		}
		info.Global = info.Global || rb.Global
	}
	if info.RetryAfter == 0 {
		info.RetryAfter = info.ResetAfter
	}
	return rb.Message
}

func parseSeconds(s string) (float64, bool) {
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
