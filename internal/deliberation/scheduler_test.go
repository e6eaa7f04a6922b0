package deliberation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecouncil/orchestrator/internal/registry"
	"github.com/tradecouncil/orchestrator/internal/session"
	"github.com/tradecouncil/orchestrator/internal/trade"
)

func planNames(p Plan) []string {
	names := make([]string, 0, len(p.Invocations))
	for _, inv := range p.Invocations {
		names = append(names, inv.Participant.Name)
	}
	return names
}

func TestSchedulerOpeningRoundRunsAnalystsInParallel(t *testing.T) {
	s := NewScheduler(registry.New())
	plan := s.Next(testSession())
	assert.True(t, plan.Parallel)
	assert.Equal(t, []string{registry.MarketAnalyst, registry.NewsResearcher}, planNames(plan))
}

func TestSchedulerPushesForProposal(t *testing.T) {
	s := NewScheduler(registry.New())
	sess := testSession()
	sess.Round = 1
	plan := s.Next(sess)
	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, registry.MarketAnalyst, plan.Invocations[0].Participant.Name)
	assert.Contains(t, plan.Invocations[0].Instruction, "Handelsvorschlag")
}

func TestSchedulerRoutesObjectionsToProposer(t *testing.T) {
	s := NewScheduler(registry.New())
	sess := testSession()
	sess.Round = 2
	sess.SetProposal("LONG AAPL", nil, registry.MarketAnalyst)
	sess.RecordVote(registry.NewsResearcher, session.VoteDisagree)

	plan := s.Next(sess)
	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, registry.MarketAnalyst, plan.Invocations[0].Participant.Name)
	assert.Contains(t, plan.Invocations[0].Instruction, registry.NewsResearcher)
}

func TestSchedulerConfiguresChartBeforeVoting(t *testing.T) {
	s := NewScheduler(registry.New())
	sess := testSession()
	sess.Round = 1
	sess.SetProposal("LONG AAPL", nil, registry.MarketAnalyst)

	plan := s.Next(sess)
	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, registry.ChartConfigurator, plan.Invocations[0].Participant.Name)
}

func TestSchedulerSolicitsMissingVotes(t *testing.T) {
	s := NewScheduler(registry.New())
	sess := testSession()
	sess.Round = 2
	sess.SetProposal("LONG AAPL", nil, registry.MarketAnalyst)
	sess.Append(session.Message{Participant: registry.ChartConfigurator, Chart: &trade.ChartConfig{Symbol: "AAPL"}})
	sess.RecordVote(registry.MarketAnalyst, session.VoteAgree)

	plan := s.Next(sess)
	assert.True(t, plan.Parallel)
	assert.Equal(t, []string{registry.NewsResearcher, registry.IndicatorCoder}, planNames(plan))
	for _, inv := range plan.Invocations {
		assert.Contains(t, inv.Instruction, "[CONSENSUS: AGREE]")
	}
}

func TestSchedulerIndicatorRoute(t *testing.T) {
	s := NewScheduler(registry.New())
	sess := session.New("s", "Baue mir einen Indikator für AAPL", session.Limits{MaxTurns: 20, MaxStalls: 3}, session.DefaultContextLimits())
	sess.Round = 1

	plan := s.Next(sess)
	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, registry.IndicatorCoder, plan.Invocations[0].Participant.Name)

	sess.Append(session.Message{Participant: registry.IndicatorCoder, Content: "code"})
	plan = s.Next(sess)
	require.Len(t, plan.Invocations, 1)
	assert.Equal(t, registry.CodeExecutor, plan.Invocations[0].Participant.Name)

	sess.Append(session.Message{Participant: registry.CodeExecutor, Content: "ok"})
	plan = s.Next(sess)
	if len(plan.Invocations) == 1 {
		assert.NotEqual(t, registry.CodeExecutor, plan.Invocations[0].Participant.Name)
	}
}
