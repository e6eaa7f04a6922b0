package deliberation

import (
	"regexp"
	"strings"

	"github.com/tradecouncil/orchestrator/internal/session"
)

// Vote markers come in the shapes the council historically produced: the
// canonical "[CONSENSUS: AGREE]" (or German "KONSENS"), the short bracket
// "[AGREE]", and a handful of prose declarations.
var (
	voteRe      = regexp.MustCompile(`(?i)\[\s*(?:CONSENSUS|KONSENS)\s*:\s*(AGREE|DISAGREE|ABSTAIN)\s*\]`)
	shortVoteRe = regexp.MustCompile(`(?i)\[\s*(AGREE|DISAGREE|ABSTAIN)\s*\]`)

	// Negations must be tried before the affirmative forms they contain.
	proseDisagreeRe = regexp.MustCompile(`(?i)\b(?:i\s+disagree|ich\s+stimme\s+nicht\s+zu|ich\s+widerspreche|nicht\s+einverstanden)\b`)
	proseAbstainRe  = regexp.MustCompile(`(?i)\b(?:i\s+abstain|ich\s+enthalte\s+mich|enthaltung)\b`)
	proseAgreeRe    = regexp.MustCompile(`(?i)\b(?:i\s+agree|ich\s+stimme\s+zu|einverstanden)\b`)
)

// ParseVote extracts a vote from participant output. Bracket markers win over
// prose; returns the empty vote when nothing matches.
func ParseVote(content string) session.Vote {
	if m := voteRe.FindStringSubmatch(content); m != nil {
		return voteFromWord(m[1])
	}
	if m := shortVoteRe.FindStringSubmatch(content); m != nil {
		return voteFromWord(m[1])
	}
	switch {
	case proseDisagreeRe.MatchString(content):
		return session.VoteDisagree
	case proseAbstainRe.MatchString(content):
		return session.VoteAbstain
	case proseAgreeRe.MatchString(content):
		return session.VoteAgree
	}
	return ""
}

func voteFromWord(w string) session.Vote {
	switch strings.ToUpper(w) {
	case "AGREE":
		return session.VoteAgree
	case "DISAGREE":
		return session.VoteDisagree
	default:
		return session.VoteAbstain
	}
}

// ConsensusResult is the outcome of evaluating votes on the active proposal.
type ConsensusResult struct {
	Reached bool `json:"reached"`
	Engaged int  `json:"engaged"`
	Agrees  int  `json:"agrees"`
}

// EvaluateConsensus decides whether the active proposal has a qualified
// majority. Only voters engaged on this proposal count; a lone voter cannot
// self-ratify. Abstentions engage a voter without counting toward agreement.
func EvaluateConsensus(sess *session.Session) ConsensusResult {
	res := ConsensusResult{}
	if sess.Proposal == nil {
		return res
	}
	for _, v := range sess.Votes {
		res.Engaged++
		if v == session.VoteAgree {
			res.Agrees++
		}
	}
	if res.Engaged < 2 {
		return res
	}
	// ceil(2/3 * engaged) without floats.
	needed := (2*res.Engaged + 2) / 3
	res.Reached = res.Agrees >= needed
	return res
}
