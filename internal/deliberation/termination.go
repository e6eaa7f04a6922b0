package deliberation

import (
	"fmt"

	"github.com/tradecouncil/orchestrator/internal/session"
	"github.com/tradecouncil/orchestrator/internal/trade"
)

// Outcome tags a terminal decision.
type Outcome string

const (
	OutcomeConsensus  Outcome = "consensus_reached"
	OutcomeTurnLimit  Outcome = "turn_limit_exceeded"
	OutcomeStallLimit Outcome = "stall_limit_exceeded"
	OutcomeHardError  Outcome = "hard_error"
)

// Decision is the single terminal verdict for a session. Report and Chart are
// filled during finalization from the folded transcript artifacts.
type Decision struct {
	Outcome  Outcome            `json:"outcome"`
	Reason   string             `json:"reason"`
	Proposal *session.Proposal  `json:"proposal,omitempty"`
	Report   string             `json:"report,omitempty"`
	Chart    *trade.ChartConfig `json:"chart,omitempty"`
}

// EvaluateTermination composes the per-round termination signals in fixed
// priority order: hard error, consensus, stall limit, turn limit. Returns nil
// when the deliberation should continue.
func EvaluateTermination(sess *session.Session, roundMessages []session.Message, consensus ConsensusResult) *Decision {
	for _, msg := range roundMessages {
		if msg.HardError {
			return &Decision{
				Outcome:  OutcomeHardError,
				Reason:   fmt.Sprintf("%s: %s", msg.Participant, msg.Error),
				Proposal: sess.Proposal,
			}
		}
	}
	if consensus.Reached {
		return &Decision{
			Outcome:  OutcomeConsensus,
			Reason:   fmt.Sprintf("%d of %d engaged voters agree", consensus.Agrees, consensus.Engaged),
			Proposal: sess.Proposal,
		}
	}
	if sess.StallCount >= sess.Limits.MaxStalls {
		return &Decision{
			Outcome:  OutcomeStallLimit,
			Reason:   fmt.Sprintf("%d consecutive rounds without progress", sess.StallCount),
			Proposal: sess.Proposal,
		}
	}
	if sess.Round >= sess.Limits.MaxTurns {
		return &Decision{
			Outcome:  OutcomeTurnLimit,
			Reason:   fmt.Sprintf("round limit of %d reached", sess.Limits.MaxTurns),
			Proposal: sess.Proposal,
		}
	}
	return nil
}
