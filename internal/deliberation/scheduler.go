package deliberation

import (
	"regexp"
	"sort"
	"strings"

	"github.com/tradecouncil/orchestrator/internal/registry"
	"github.com/tradecouncil/orchestrator/internal/session"
)

// Invocation is one scheduled participant call within a round.
type Invocation struct {
	Participant registry.Participant
	Instruction string
}

// Plan is the scheduler's choice for one round. All invocations in a plan
// share the round number; independent ones may run concurrently.
type Plan struct {
	Invocations []Invocation
	Parallel    bool
}

// Scheduler decides which participants act next, driven by what the session
// still lacks: analysis, a proposal, a chart, votes, or objection handling.
type Scheduler struct {
	reg *registry.Registry
}

// NewScheduler creates a scheduler over the given registry.
func NewScheduler(reg *registry.Registry) *Scheduler {
	return &Scheduler{reg: reg}
}

var indicatorRe = regexp.MustCompile(`(?i)\b(indikator|indicator|berechne|custom\s+formel)\b`)

const voteInstruction = "Prüfe den aktuellen Vorschlag und stimme ab. Antworte mit [CONSENSUS: AGREE], [CONSENSUS: DISAGREE] oder [CONSENSUS: ABSTAIN] und begründe kurz."

// Next plans the upcoming round.
func (s *Scheduler) Next(sess *session.Session) Plan {
	// Opening round: technical analysis and news research are independent.
	if sess.Round == 0 {
		var invs []Invocation
		if p, err := s.reg.ByCapability(registry.CapTechnicalAnalysis); err == nil {
			invs = append(invs, Invocation{Participant: p, Instruction: "Analysiere die Marktlage und schlage ein konkretes Setup vor (Entry, Stop, Take Profit)."})
		}
		if p, err := s.reg.ByCapability(registry.CapNewsResearch); err == nil {
			invs = append(invs, Invocation{Participant: p, Instruction: "Recherchiere aktuelle Nachrichten und Stimmung zu den diskutierten Symbolen."})
		}
		return Plan{Invocations: invs, Parallel: true}
	}

	// A query asking for a custom indicator routes through the coder and,
	// once code exists, the sandboxed executor.
	if indicatorRe.MatchString(sess.Query) {
		if inv, ok := s.indicatorStep(sess); ok {
			return Plan{Invocations: []Invocation{inv}}
		}
	}

	// No proposal yet: push the proposer to commit to one.
	if sess.Proposal == nil {
		if p, err := s.reg.ByCapability(registry.CapTechnicalAnalysis); err == nil {
			return Plan{Invocations: []Invocation{{
				Participant: p,
				Instruction: "Fasse die bisherige Diskussion zu einem konkreten Handelsvorschlag zusammen (Entry, Stop, Take Profit).",
			}}}
		}
	}

	// Objections feed back to the proposer as refinement requests.
	if dissent := dissenters(sess); len(dissent) > 0 {
		if p, err := s.reg.ByName(sess.Proposal.ProposedBy); err == nil {
			return Plan{Invocations: []Invocation{{
				Participant: p,
				Instruction: "Es gibt Einwände von " + strings.Join(dissent, ", ") + ". Überarbeite den Vorschlag und adressiere die Kritikpunkte.",
			}}}
		}
	}

	// Chart parameters once a proposal is on the table.
	if sess.Proposal != nil && !hasChart(sess) {
		if p, err := s.reg.ByCapability(registry.CapChartConfig); err == nil {
			return Plan{Invocations: []Invocation{{
				Participant: p,
				Instruction: "Erstelle eine Chart-Konfiguration für den aktuellen Vorschlag.",
			}}}
		}
	}

	// Solicit votes from engaged-capable voters who have not voted on the
	// current proposal.
	if pending := s.unvoted(sess); len(pending) > 0 {
		invs := make([]Invocation, 0, len(pending))
		for _, p := range pending {
			invs = append(invs, Invocation{Participant: p, Instruction: voteInstruction})
		}
		return Plan{Invocations: invs, Parallel: true}
	}

	// Everyone voted, no consensus, no dissent to refine: ask the analyst to
	// strengthen the case.
	if p, err := s.reg.ByCapability(registry.CapTechnicalAnalysis); err == nil {
		return Plan{Invocations: []Invocation{{
			Participant: p,
			Instruction: "Vertiefe die Analyse mit zusätzlichen Indikatoren oder Zeitebenen.",
		}}}
	}
	return Plan{}
}

// indicatorStep returns the coder until code appears in the transcript, then
// the executor once.
func (s *Scheduler) indicatorStep(sess *session.Session) (Invocation, bool) {
	coded, executed := false, false
	for _, m := range sess.Transcript {
		switch m.Participant {
		case registry.IndicatorCoder:
			coded = true
		case registry.CodeExecutor:
			executed = true
		}
	}
	if !coded {
		if p, err := s.reg.ByCapability(registry.CapIndicatorCoding); err == nil {
			return Invocation{Participant: p, Instruction: "Schreibe den angefragten Indikator als ausführbaren Code."}, true
		}
	}
	if coded && !executed {
		if p, err := s.reg.ByCapability(registry.CapCodeExecution); err == nil {
			return Invocation{Participant: p, Instruction: "Führe den Indikator-Code aus und berichte das Ergebnis."}, true
		}
	}
	return Invocation{}, false
}

func (s *Scheduler) unvoted(sess *session.Session) []registry.Participant {
	if sess.Proposal == nil {
		return nil
	}
	var out []registry.Participant
	for _, p := range s.reg.Voters() {
		if _, voted := sess.Votes[p.Name]; !voted {
			out = append(out, p)
		}
	}
	return out
}

func dissenters(sess *session.Session) []string {
	if sess.Proposal == nil {
		return nil
	}
	var out []string
	for name, v := range sess.Votes {
		if v == session.VoteDisagree {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func hasChart(sess *session.Session) bool {
	for _, m := range sess.Transcript {
		if m.Chart != nil {
			return true
		}
	}
	return false
}
