package gateway

import (
	"math"
	"time"
)

// CloseClass is the outcome of classifying a close code.
type CloseClass int

const (
	CloseRecoverable CloseClass = iota
	CloseFatal
)

func (c CloseClass) String() string {
	if c == CloseFatal {
		return "fatal"
	}
	return "recoverable"
}

// Gateway close codes.
const (
	CloseUnknownError         = 4000
	CloseUnknownOpcode        = 4001
	CloseDecodeError          = 4002
	CloseNotAuthenticated     = 4003
	CloseAuthenticationFailed = 4004
	CloseAlreadyAuthenticated = 4005
	CloseInvalidSeq           = 4007
	CloseRateLimited          = 4008
	CloseSessionTimedOut      = 4009
	CloseInvalidShard         = 4010
	CloseShardingRequired     = 4011
	CloseInvalidAPIVersion    = 4012
	CloseInvalidIntents       = 4013
	CloseDisallowedIntents    = 4014

	// closeResumable is sent by the client when it drops a socket it
	// intends to resume. Normal closure (1000) would end the session.
	closeResumable = 4900
)

// fatalCloseCodes are permanent rejections; retrying cannot succeed.
var fatalCloseCodes = map[int]struct{}{
	CloseAuthenticationFailed: {},
	CloseInvalidShard:         {},
	CloseShardingRequired:     {},
	CloseInvalidAPIVersion:    {},
	CloseInvalidIntents:       {},
	CloseDisallowedIntents:    {},
}

// Classify returns whether a close code is fatal or recoverable.
func Classify(code int) CloseClass {
	if _, ok := fatalCloseCodes[code]; ok {
		return CloseFatal
	}
	return CloseRecoverable
}

// invalidatesSession reports whether a recoverable close still makes the
// current session unusable, so the next connection must identify.
func invalidatesSession(code int) bool {
	switch code {
	case CloseInvalidSeq, CloseSessionTimedOut:
		return true
	}
	return false
}

// ReconnectPolicy computes backoff for consecutive reconnect attempts.
type ReconnectPolicy struct {
	base        time.Duration
	max         time.Duration
	maxAttempts int
	attempts    int
}

// NewReconnectPolicy creates a policy. max of 0 disables the cap and
// maxAttempts of 0 retries forever.
func NewReconnectPolicy(base, max time.Duration, maxAttempts int) *ReconnectPolicy {
	return &ReconnectPolicy{
		base:        base,
		max:         max,
		maxAttempts: maxAttempts,
	}
}

// Next returns the delay before the next attempt and increments the attempt
// counter. The delay for attempt n is base * 2^(n-1), saturating at the
// largest Duration when uncapped. It returns false once
// the maximum number of attempts is exhausted.
func (p *ReconnectPolicy) Next() (time.Duration, bool) {
	if p.maxAttempts > 0 && p.attempts >= p.maxAttempts {
		return 0, false
	}
	p.attempts++

	delay := p.base
	for i := 1; i < p.attempts; i++ {
		if delay > math.MaxInt64/2 {
			delay = math.MaxInt64
			break
		}
		delay *= 2
		if p.max > 0 && delay >= p.max {
			return p.max, true
		}
	}
	if p.max > 0 && delay > p.max {
		delay = p.max
	}
	return delay, true
}

// Reset clears the attempt counter after a successful connection.
func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
}

// Attempts returns the number of consecutive attempts so far.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}
