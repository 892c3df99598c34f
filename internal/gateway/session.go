package gateway

import "context"

// Session is a snapshot of resumable session identity.
type Session struct {
	ID        string `json:"session_id,omitempty"`
	Sequence  *int64 `json:"seq,omitempty"`
	ResumeURL string `json:"resume_gateway_url,omitempty"`
}

// Resumable reports whether both the session id and a sequence are known.
func (s Session) Resumable() bool {
	return s.ID != "" && s.Sequence != nil
}

// Checkpointer persists session identity outside the process so a
// restarted client can resume instead of identifying again.
type Checkpointer interface {
	Load(ctx context.Context) (Session, bool, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// SessionStore holds the session identity for one connection manager.
// It is owned by the manager's event loop and is not safe for concurrent use.
type SessionStore struct {
	id        string
	seq       int64
	hasSeq    bool
	resumeURL string
}

// Observe records an inbound sequence number. Lower values are ignored so
// the stored sequence never decreases. Reports whether the value advanced.
func (s *SessionStore) Observe(seq int64) bool {
	if s.hasSeq && seq <= s.seq {
		return false
	}
	s.seq = seq
	s.hasSeq = true
	return true
}

// Sequence returns the last observed sequence.
func (s *SessionStore) Sequence() (int64, bool) {
	return s.seq, s.hasSeq
}

// SetIdentity records the session id and resume address from READY.
func (s *SessionStore) SetIdentity(id, resumeURL string) {
	s.id = id
	s.resumeURL = resumeURL
}

// ID returns the session id.
func (s *SessionStore) ID() string { return s.id }

// ResumeURL returns the resume address.
func (s *SessionStore) ResumeURL() string { return s.resumeURL }

// Resumable reports whether a resume can be attempted.
func (s *SessionStore) Resumable() bool {
	return s.id != "" && s.hasSeq
}

// Clear drops the whole session.
func (s *SessionStore) Clear() {
	*s = SessionStore{}
}

// Snapshot returns a copy of the session.
func (s *SessionStore) Snapshot() Session {
	snap := Session{ID: s.id, ResumeURL: s.resumeURL}
	if s.hasSeq {
		seq := s.seq
		snap.Sequence = &seq
	}
	return snap
}

// Restore replaces the session with a snapshot.
func (s *SessionStore) Restore(snap Session) {
	s.Clear()
	s.id = snap.ID
	s.resumeURL = snap.ResumeURL
	if snap.Sequence != nil {
		s.seq = *snap.Sequence
		s.hasSeq = true
	}
}
