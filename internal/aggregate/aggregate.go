package aggregate

import (
	"regexp"
	"strings"

	"github.com/tradecouncil/orchestrator/internal/registry"
	"github.com/tradecouncil/orchestrator/internal/session"
	"github.com/tradecouncil/orchestrator/internal/trade"
)

// Report acceptance policy. Short chatter is ignored to keep the displayed
// report from flickering; these thresholds are deliberately named so boundary
// behavior is testable.
const (
	// MinReportLength is the minimum content length for report candidacy.
	MinReportLength = 60
)

// structureRes are the structural markers (headings, lists) a report
// candidate must carry.
var structureRes = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^#{1,6}\s`),
	regexp.MustCompile(`(?m)^[-*]\s`),
	regexp.MustCompile(`(?m)^\d+\.\s`),
	regexp.MustCompile(`\*\*[^*]+\*\*`),
}

// reportTier ranks report sources. A higher tier is never displaced by a
// lower one.
type reportTier int

const (
	tierNone reportTier = iota
	tierOther
	tierOrchestrator
	tierWriter
)

type dedupeKey struct {
	round       int
	fingerprint uint64
}

// Artifacts is the derived display state reduced from a session's message
// stream. It is recomputable: folding the same message log from an empty
// value always yields the same result.
type Artifacts struct {
	Report string
	Trade  *trade.Recommendation
	Chart  *trade.ChartConfig

	reportTier reportTier
	seen       map[dedupeKey]struct{}
}

// New returns an empty artifact set.
func New() *Artifacts {
	return &Artifacts{seen: make(map[dedupeKey]struct{})}
}

// Apply folds one message into the artifact set. Duplicate messages (same
// round, participant and payload) are no-ops. Artifacts are never retracted;
// an aborted session keeps whatever was already accepted.
func (a *Artifacts) Apply(msg session.Message) {
	key := dedupeKey{round: msg.Round, fingerprint: msg.Fingerprint()}
	if _, dup := a.seen[key]; dup {
		return
	}
	a.seen[key] = struct{}{}

	a.applyReport(msg)

	if msg.Trade != nil {
		// Wholesale replacement, no field-level merge.
		rec := *msg.Trade
		a.Trade = &rec
		if a.Chart != nil && rec.Symbol != "" {
			a.Chart.Symbol = rec.Symbol
		}
	}
	if msg.Chart != nil {
		cfg := *msg.Chart
		if cfg.PriceLevels == nil && a.Trade != nil {
			cfg.PriceLevels = &trade.PriceLevels{
				Entries:     a.Trade.Entry.Levels(),
				StopLoss:    a.Trade.StopLoss,
				TakeProfits: []float64(a.Trade.TakeProfit),
			}
		}
		a.Chart = &cfg
	}
}

// applyReport implements the report precedence: the report writer wins
// outright, the orchestration role wins only if strictly longer than the held
// report, anyone else only fills an empty slot.
func (a *Artifacts) applyReport(msg session.Message) {
	if !ReportShaped(msg.Content) {
		return
	}
	switch sourceTier(msg.Participant) {
	case tierWriter:
		a.Report = msg.Content
		a.reportTier = tierWriter
	case tierOrchestrator:
		if a.reportTier == tierWriter {
			return
		}
		if a.Report == "" || len(msg.Content) > len(a.Report) {
			a.Report = msg.Content
			a.reportTier = tierOrchestrator
		}
	default:
		if a.reportTier == tierNone {
			a.Report = msg.Content
			a.reportTier = tierOther
		}
	}
}

// ReportShaped reports whether content qualifies as a report candidate:
// long enough and carrying at least one structural marker.
func ReportShaped(content string) bool {
	if len(strings.TrimSpace(content)) < MinReportLength {
		return false
	}
	for _, re := range structureRes {
		if re.MatchString(content) {
			return true
		}
	}
	return false
}

func sourceTier(participant string) reportTier {
	switch participant {
	case registry.ReportWriter:
		return tierWriter
	case registry.OrchestratorSource:
		return tierOrchestrator
	default:
		return tierOther
	}
}
