package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/tradecouncil/orchestrator/internal/trade"
)

var (
	// ErrSessionNotFound is returned when a session doesn't exist.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidTransition is returned on a status transition the state
	// machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Status is the deliberation lifecycle state of a session.
type Status string

const (
	StatusInit       Status = "INIT"
	StatusPlanning   Status = "PLANNING"
	StatusDelegating Status = "DELEGATING"
	StatusEvaluating Status = "EVALUATING"
	StatusFinalizing Status = "FINALIZING"
	StatusComplete   Status = "COMPLETE"
	StatusAborted    Status = "ABORTED"
)

// Terminal reports whether no further messages are accepted in this status.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusAborted
}

// allowedTransitions encodes the state machine. ABORTED is reachable from
// anywhere and handled separately; PLANNING/EVALUATING cycle per round.
var allowedTransitions = map[Status][]Status{
	StatusInit:       {StatusPlanning, StatusInit},
	StatusPlanning:   {StatusDelegating},
	StatusDelegating: {StatusEvaluating},
	StatusEvaluating: {StatusPlanning, StatusFinalizing},
	StatusFinalizing: {StatusComplete},
}

// Vote is a voting participant's position on the active proposal.
type Vote string

const (
	VoteAgree    Vote = "agree"
	VoteDisagree Vote = "disagree"
	VoteAbstain  Vote = "abstain"
)

// Proposal is the candidate decision currently under deliberation. Proposals
// are superseded, never mutated; each replacement bumps the version and
// clears accumulated votes.
type Proposal struct {
	Version    int                   `json:"version"`
	Summary    string                `json:"summary"`
	Trade      *trade.Recommendation `json:"trade,omitempty"`
	ProposedBy string                `json:"proposed_by"`
	CreatedAt  time.Time             `json:"created_at"`
}

// Message is one participant's output in one round. Immutable once appended.
type Message struct {
	SessionID   string                `json:"session_id"`
	Round       int                   `json:"round"`
	Participant string                `json:"participant"`
	Content     string                `json:"content"`
	Trade       *trade.Recommendation `json:"trade,omitempty"`
	Chart       *trade.ChartConfig    `json:"chart,omitempty"`
	Vote        Vote                  `json:"vote,omitempty"`
	HardError   bool                  `json:"hard_error,omitempty"`
	Error       string                `json:"error,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
	Seq         uint64                `json:"seq"`
}

// HasStructuredPayload reports whether the message carries more than prose.
func (m Message) HasStructuredPayload() bool {
	return m.Trade != nil || m.Chart != nil || m.Vote != ""
}

// Fingerprint identifies the message's payload for duplicate and novelty
// detection: participant plus content plus any structured payload.
func (m Message) Fingerprint() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(m.Participant))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(m.Content))
	if m.Trade != nil {
		b, _ := json.Marshal(m.Trade)
		_, _ = h.Write(b)
	}
	if m.Chart != nil {
		b, _ := json.Marshal(m.Chart)
		_, _ = h.Write(b)
	}
	_, _ = h.Write([]byte(m.Vote))
	return h.Sum64()
}

// Limits are the per-session deliberation bounds, injected at creation.
type Limits struct {
	MaxTurns  int
	MaxStalls int
}

// Session is one bounded deliberation instance. It is owned exclusively by
// the orchestrator loop driving it; nothing else mutates it.
type Session struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Status     Status    `json:"status"`
	Round      int       `json:"round"`
	StallCount int       `json:"stall_count"`
	Symbols    []string  `json:"symbols,omitempty"`
	Transcript []Message `json:"transcript"`
	Proposal   *Proposal `json:"proposal,omitempty"`

	// Votes on the active proposal, by participant. Cleared atomically when
	// the proposal is superseded.
	Votes map[string]Vote `json:"votes,omitempty"`

	// Candidates pending clarification while paused in INIT.
	PendingCandidates []string `json:"pending_candidates,omitempty"`

	Limits  Limits   `json:"-"`
	Context *Context `json:"-"`

	nextSeq uint64
	busy    atomic.Bool
}

// New creates a session in INIT.
func New(id, query string, limits Limits, ctxLimits ContextLimits) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Query:     query,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    StatusInit,
		Votes:     make(map[string]Vote),
		Limits:    limits,
		Context:   NewContext(ctxLimits),
		nextSeq:   1,
	}
}

// Acquire claims the session for a run loop. All other session methods assume
// the caller holds this claim; concurrent queries on the same id must be
// rejected when it fails.
func (s *Session) Acquire() bool {
	return s.busy.CompareAndSwap(false, true)
}

// Release returns the session to the idle state.
func (s *Session) Release() {
	s.busy.Store(false)
}

// Transition moves the session to the next lifecycle state. ABORTED is always
// reachable; terminal states accept no further transitions.
func (s *Session) Transition(to Status) error {
	if s.Status.Terminal() {
		return fmt.Errorf("%w: %s is terminal", ErrInvalidTransition, s.Status)
	}
	if to == StatusAborted {
		s.Status = StatusAborted
		s.UpdatedAt = time.Now()
		return nil
	}
	for _, next := range allowedTransitions[s.Status] {
		if next == to {
			s.Status = to
			s.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.Status, to)
}

// Reset prepares a terminal or paused session for a fresh query on the same
// id, preserving the conversation context for follow-up continuity.
func (s *Session) Reset(query string) {
	s.Query = query
	s.Status = StatusInit
	s.Round = 0
	s.StallCount = 0
	s.Symbols = nil
	s.Transcript = nil
	s.Proposal = nil
	s.Votes = make(map[string]Vote)
	s.PendingCandidates = nil
	s.nextSeq = 1
	s.UpdatedAt = time.Now()
}

// Append stamps the message with the next sequence number and adds it to the
// transcript. Sequence numbers are strictly increasing and gapless; this is
// the only place they are assigned.
func (s *Session) Append(msg Message) Message {
	msg.SessionID = s.ID
	msg.Seq = s.nextSeq
	s.nextSeq++
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	s.Transcript = append(s.Transcript, msg)
	s.UpdatedAt = time.Now()
	return msg
}

// SetProposal installs a new active proposal, superseding any previous one
// and clearing all votes atomically.
func (s *Session) SetProposal(summary string, rec *trade.Recommendation, proposedBy string) *Proposal {
	version := 1
	if s.Proposal != nil {
		version = s.Proposal.Version + 1
	}
	s.Proposal = &Proposal{
		Version:    version,
		Summary:    summary,
		Trade:      rec,
		ProposedBy: proposedBy,
		CreatedAt:  time.Now(),
	}
	s.Votes = make(map[string]Vote)
	s.UpdatedAt = time.Now()
	return s.Proposal
}

// RecordVote stores a participant's position on the active proposal,
// overwriting any earlier vote. Returns whether the stored position changed.
func (s *Session) RecordVote(participant string, vote Vote) bool {
	prev, had := s.Votes[participant]
	s.Votes[participant] = vote
	s.UpdatedAt = time.Now()
	return !had || prev != vote
}

// TranscriptText renders the transcript for use as reasoning context.
func (s *Session) TranscriptText() string {
	var out []byte
	for _, m := range s.Transcript {
		out = append(out, m.Participant...)
		out = append(out, ": "...)
		out = append(out, m.Content...)
		out = append(out, '\n')
	}
	return string(out)
}
