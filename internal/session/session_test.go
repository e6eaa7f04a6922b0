package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/trade"
)

func testLimits() Limits {
	return Limits{MaxTurns: 20, MaxStalls: 3}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	return New("sess-1", "Analyse AAPL", testLimits(), DefaultContextLimits())
}

func TestTransitionLifecycle(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, StatusInit, s.Status)

	require.NoError(t, s.Transition(StatusPlanning))
	require.NoError(t, s.Transition(StatusDelegating))
	require.NoError(t, s.Transition(StatusEvaluating))

	// Round loop back to planning.
	require.NoError(t, s.Transition(StatusPlanning))
	require.NoError(t, s.Transition(StatusDelegating))
	require.NoError(t, s.Transition(StatusEvaluating))

	require.NoError(t, s.Transition(StatusFinalizing))
	require.NoError(t, s.Transition(StatusComplete))

	err := s.Transition(StatusPlanning)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionRejectsSkips(t *testing.T) {
	s := newTestSession(t)
	assert.ErrorIs(t, s.Transition(StatusEvaluating), ErrInvalidTransition)
	assert.ErrorIs(t, s.Transition(StatusComplete), ErrInvalidTransition)
}

func TestAbortReachableFromAnywhere(t *testing.T) {
	for _, from := range []Status{StatusInit, StatusPlanning, StatusDelegating, StatusEvaluating, StatusFinalizing} {
		s := newTestSession(t)
		s.Status = from
		require.NoError(t, s.Transition(StatusAborted))
		assert.True(t, s.Status.Terminal())
	}
}

func TestAbortedIsAbsorbing(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.Transition(StatusAborted))
	assert.ErrorIs(t, s.Transition(StatusPlanning), ErrInvalidTransition)
	assert.ErrorIs(t, s.Transition(StatusAborted), ErrInvalidTransition)
}

func TestAppendAssignsGaplessSeq(t *testing.T) {
	s := newTestSession(t)
	for i := 0; i < 5; i++ {
		msg := s.Append(Message{Round: 1, Participant: "MarketAnalyst", Content: "x"})
		assert.Equal(t, uint64(i+1), msg.Seq)
		assert.Equal(t, "sess-1", msg.SessionID)
		assert.False(t, msg.Timestamp.IsZero())
	}
	require.Len(t, s.Transcript, 5)
	for i, m := range s.Transcript {
		assert.Equal(t, uint64(i+1), m.Seq)
	}
}

func TestSetProposalBumpsVersionAndClearsVotes(t *testing.T) {
	s := newTestSession(t)

	p1 := s.SetProposal("long AAPL", nil, "MarketAnalyst")
	assert.Equal(t, 1, p1.Version)

	s.RecordVote("MarketAnalyst", VoteAgree)
	s.RecordVote("NewsResearcher", VoteAgree)
	require.Len(t, s.Votes, 2)

	p2 := s.SetProposal("long AAPL, tighter stop", nil, "NewsResearcher")
	assert.Equal(t, 2, p2.Version)
	assert.Empty(t, s.Votes, "superseding a proposal must clear votes")
}

func TestRecordVoteReportsChange(t *testing.T) {
	s := newTestSession(t)
	s.SetProposal("p", nil, "MarketAnalyst")

	assert.True(t, s.RecordVote("IndicatorCoder", VoteAgree))
	assert.False(t, s.RecordVote("IndicatorCoder", VoteAgree), "same vote again is not a change")
	assert.True(t, s.RecordVote("IndicatorCoder", VoteDisagree))
}

func TestResetPreservesContext(t *testing.T) {
	s := newTestSession(t)
	s.Context.AddUserTurn("was kostet AAPL", []string{"AAPL"}, true, false)
	require.NoError(t, s.Transition(StatusAborted))
	s.Append(Message{Participant: "MarketAnalyst", Content: "x"})

	s.Reset("und jetzt TSLA")
	assert.Equal(t, StatusInit, s.Status)
	assert.Empty(t, s.Transcript)
	assert.Nil(t, s.Proposal)
	assert.Equal(t, 0, s.StallCount)
	assert.Contains(t, s.Context.ActiveSymbols, "AAPL")

	// Sequence numbering restarts with the transcript.
	msg := s.Append(Message{Participant: "MarketAnalyst", Content: "y"})
	assert.Equal(t, uint64(1), msg.Seq)
}

func TestAcquireIsExclusive(t *testing.T) {
	s := newTestSession(t)

	require.True(t, s.Acquire())
	assert.False(t, s.Acquire(), "second claim must fail while held")

	s.Release()
	assert.True(t, s.Acquire(), "released session is claimable again")
}

func TestMessageFingerprint(t *testing.T) {
	a := Message{Participant: "MarketAnalyst", Content: "AAPL looks strong"}
	b := Message{Participant: "MarketAnalyst", Content: "AAPL looks strong"}
	c := Message{Participant: "NewsResearcher", Content: "AAPL looks strong"}
	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())

	withTrade := b
	withTrade.Trade = &trade.Recommendation{Symbol: "AAPL", Direction: trade.DirectionLong}
	assert.NotEqual(t, b.Fingerprint(), withTrade.Fingerprint())

	withVote := b
	withVote.Vote = VoteAgree
	assert.NotEqual(t, b.Fingerprint(), withVote.Fingerprint())
}

func TestContextPromotesSymbols(t *testing.T) {
	c := NewContext(DefaultContextLimits())
	c.AddUserTurn("AAPL und MSFT", []string{"AAPL", "MSFT"}, false, true)
	assert.Equal(t, []string{"AAPL", "MSFT"}, c.ActiveSymbols)

	c.AddUserTurn("was kostet MSFT", []string{"MSFT"}, true, false)
	assert.Equal(t, []string{"MSFT", "AAPL"}, c.ActiveSymbols)
}

func TestContextCapsActiveSymbols(t *testing.T) {
	c := NewContext(ContextLimits{MaxRecentTurns: 5, MaxActiveSymbols: 2, MaxSummaryLength: 500})
	c.AddUserTurn("q", []string{"AAPL", "MSFT", "TSLA"}, false, false)
	assert.Len(t, c.ActiveSymbols, 2)
	assert.Equal(t, "AAPL", c.ActiveSymbols[0])
}

func TestContextFoldsOldTurnsIntoSummary(t *testing.T) {
	c := NewContext(ContextLimits{MaxRecentTurns: 2, MaxActiveSymbols: 5, MaxSummaryLength: 500})
	c.AddUserTurn("was kostet AAPL", []string{"AAPL"}, true, false)
	c.AddUserTurn("analysiere TSLA", []string{"TSLA"}, false, true)
	c.AddUserTurn("news zu NVDA", []string{"NVDA"}, false, false)

	assert.Len(t, c.RecentTurns, 2)
	assert.Contains(t, c.Summary, "Preisabfrage: AAPL")
}

func TestContextSummaryBounded(t *testing.T) {
	c := NewContext(ContextLimits{MaxRecentTurns: 1, MaxActiveSymbols: 5, MaxSummaryLength: 60})
	for i := 0; i < 20; i++ {
		c.AddUserTurn("analysiere AAPL", []string{"AAPL"}, false, true)
	}
	assert.LessOrEqual(t, len(c.Summary), 60)
}

func TestContextCompressesMarkdown(t *testing.T) {
	c := NewContext(DefaultContextLimits())
	c.AddAssistantTurn("## Analyse\n**AAPL** sieht stark aus", []string{"AAPL"})
	require.Len(t, c.RecentTurns, 1)
	assert.Equal(t, "Analyse\nAAPL sieht stark aus", c.RecentTurns[0].Content)
}

func TestForQueryIncludesSections(t *testing.T) {
	c := NewContext(ContextLimits{MaxRecentTurns: 1, MaxActiveSymbols: 5, MaxSummaryLength: 500})
	assert.Empty(t, c.ForQuery())

	c.AddUserTurn("was kostet AAPL", []string{"AAPL"}, true, false)
	c.AddUserTurn("analysiere TSLA", []string{"TSLA"}, false, true)

	out := c.ForQuery()
	assert.Contains(t, out, "[Vorherige Diskussion: Preisabfrage: AAPL]")
	assert.Contains(t, out, "[Aktive Symbole: TSLA, AAPL]")
	assert.Contains(t, out, "analysiere TSLA")
}

func TestNeedsClarification(t *testing.T) {
	c := NewContext(DefaultContextLimits())
	c.AddUserTurn("AAPL und MSFT vergleichen", []string{"AAPL", "MSFT"}, false, true)

	need, candidates := c.NeedsClarification("mache mir hierzu eine Analyse")
	assert.True(t, need)
	assert.Equal(t, []string{"AAPL", "MSFT"}, candidates)

	need, _ = c.NeedsClarification("analysiere NVDA")
	assert.False(t, need, "no back-reference word")
}

func TestNeedsClarificationSingleSymbol(t *testing.T) {
	c := NewContext(DefaultContextLimits())
	c.AddUserTurn("was kostet AAPL", []string{"AAPL"}, true, false)
	need, _ := c.NeedsClarification("mache dazu eine Analyse")
	assert.False(t, need, "one active symbol is unambiguous")
}

func TestManagerGetOrCreate(t *testing.T) {
	m := NewManager(testLimits(), DefaultContextLimits(), time.Hour, 10, zap.NewNop())

	s, existed := m.GetOrCreate("a", "q1")
	assert.False(t, existed)
	assert.Equal(t, "a", s.ID)

	again, existed := m.GetOrCreate("a", "q2")
	assert.True(t, existed)
	assert.Same(t, s, again)
	assert.Equal(t, 1, m.Count())
}

func TestManagerGetAndDelete(t *testing.T) {
	m := NewManager(testLimits(), DefaultContextLimits(), time.Hour, 10, zap.NewNop())

	_, err := m.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	m.GetOrCreate("a", "q")
	s, err := m.Get("a")
	require.NoError(t, err)
	assert.Equal(t, "a", s.ID)

	m.Delete("a")
	_, err = m.Get("a")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManagerEvictsLRU(t *testing.T) {
	m := NewManager(testLimits(), DefaultContextLimits(), time.Hour, 2, zap.NewNop())

	a, _ := m.GetOrCreate("a", "q")
	a.UpdatedAt = time.Now().Add(-time.Minute)
	m.GetOrCreate("b", "q")
	m.GetOrCreate("c", "q")

	assert.Equal(t, 2, m.Count())
	_, err := m.Get("a")
	assert.ErrorIs(t, err, ErrSessionNotFound, "oldest session evicted")
	_, err = m.Get("c")
	assert.NoError(t, err)
}

func TestManagerSweepsIdleSessions(t *testing.T) {
	m := NewManager(testLimits(), DefaultContextLimits(), time.Minute, 10, zap.NewNop())

	stale, _ := m.GetOrCreate("stale", "q")
	stale.UpdatedAt = time.Now().Add(-2 * time.Minute)
	m.GetOrCreate("fresh", "q")

	removed := m.Sweep()
	assert.Equal(t, 1, removed)
	_, err := m.Get("stale")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = m.Get("fresh")
	assert.NoError(t, err)
}
