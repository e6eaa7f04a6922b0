package deliberation

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/aggregate"
	"github.com/tradecouncil/orchestrator/internal/config"
	"github.com/tradecouncil/orchestrator/internal/market"
	"github.com/tradecouncil/orchestrator/internal/metrics"
	"github.com/tradecouncil/orchestrator/internal/registry"
	"github.com/tradecouncil/orchestrator/internal/session"
	"github.com/tradecouncil/orchestrator/internal/streaming"
	"github.com/tradecouncil/orchestrator/internal/trade"
	"github.com/tradecouncil/orchestrator/internal/transcript"
)

// Invoker is the opaque reasoning backend. Implementations must honor the
// context deadline.
type Invoker interface {
	Invoke(ctx context.Context, participant registry.Participant, input string) (string, error)
}

// Orchestrator drives one deliberation loop per session. Loops for distinct
// sessions are independent; within a session, rounds are strictly sequential.
type Orchestrator struct {
	reg       *registry.Registry
	sessions  *session.Manager
	events    *streaming.Manager
	invoker   Invoker
	quoter    market.Quoter
	sink      transcript.Sink
	scheduler *Scheduler
	cfg       config.DeliberationConfig
	logger    *zap.Logger
}

// NewOrchestrator wires the deliberation loop to its collaborators.
func NewOrchestrator(
	reg *registry.Registry,
	sessions *session.Manager,
	events *streaming.Manager,
	invoker Invoker,
	quoter market.Quoter,
	sink transcript.Sink,
	cfg config.DeliberationConfig,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		reg:       reg,
		sessions:  sessions,
		events:    events,
		invoker:   invoker,
		quoter:    quoter,
		sink:      sink,
		scheduler: NewScheduler(reg),
		cfg:       cfg,
		logger:    logger,
	}
}

// Run handles one inbound query on a session, end to end. Every terminal
// outcome publishes exactly one query_complete or error event. Cancellation
// of ctx stops the loop cooperatively at the next round boundary.
func (o *Orchestrator) Run(ctx context.Context, sessionID, query string) {
	sess, existed := o.sessions.GetOrCreate(sessionID, query)
	if !sess.Acquire() {
		o.events.Publish(sess.ID, streaming.Event{
			Type:    streaming.TypeError,
			Content: "deliberation already in progress for this session",
		})
		return
	}
	defer sess.Release()

	resumed := false
	if existed {
		switch {
		case len(sess.PendingCandidates) > 0:
			query = o.resolveClarification(sess, query)
			resumed = true
		default:
			sess.Reset(query)
		}
	}

	metrics.SessionsStarted.Inc()
	started := time.Now()
	o.events.Publish(sess.ID, streaming.Event{Type: streaming.TypeQueryStart})
	o.logger.Info("query received",
		zap.String("session_id", sess.ID),
		zap.String("query", query))

	isPrice := market.IsPriceQuery(query)
	isAnalysis := market.IsAnalysisRequest(query)

	// A bare crypto ticker can refer to several markets; pause in INIT until
	// the caller picks one, unless the conversation already settled it.
	if len(sess.Symbols) == 0 {
		if candidates := market.MarketCandidates(query); len(candidates) > 0 {
			if known := firstActive(sess, candidates); known != "" {
				sess.Symbols = []string{known}
			} else {
				o.requestClarification(sess, candidates)
				return
			}
		}
	}
	if len(sess.Symbols) == 0 {
		sess.Symbols = market.ExtractSymbols(query)
	}
	if len(sess.Symbols) == 0 {
		if need, candidates := sess.Context.NeedsClarification(query); need {
			o.requestClarification(sess, candidates)
			return
		}
		sess.Symbols = sess.Context.LastSymbols(1)
	}
	sess.Context.AddUserTurn(query, sess.Symbols, isPrice, isAnalysis)

	// Fast path: simple lookups bypass the deliberation entirely. A terse
	// analysis ask with one instrument gets a market snapshot; anything
	// richer earns the full council.
	simple := isPrice || (isAnalysis && len(strings.Fields(query)) <= 3)
	if !resumed && simple && len(sess.Symbols) > 0 {
		o.quickPath(ctx, sess)
		metrics.SessionDuration.Observe(time.Since(started).Seconds())
		return
	}

	o.deliberate(ctx, sess, query, started)
}

func (o *Orchestrator) quickPath(ctx context.Context, sess *session.Session) {
	fctx, cancel := context.WithTimeout(ctx, o.cfg.FastPathTimeout)
	defer cancel()
	response := market.QuickResponse(fctx, o.quoter, sess.Symbols, o.logger)
	metrics.QuickResponses.Inc()
	o.events.Publish(sess.ID, streaming.Event{
		Type:    streaming.TypeQuickResponse,
		Content: response,
		Data:    map[string]any{"symbols": sess.Symbols},
	})
	sess.Context.AddAssistantTurn(response, sess.Symbols)
	o.events.Publish(sess.ID, streaming.Event{Type: streaming.TypeQueryComplete})
	metrics.SessionsCompleted.WithLabelValues("quick_response").Inc()
}

func (o *Orchestrator) deliberate(ctx context.Context, sess *session.Session, query string, started time.Time) {
	contextBlock := sess.Context.ForQuery()
	enriched := market.EnrichQuery(ctx, o.quoter, query, sess.Symbols, o.logger)
	if contextBlock != "" {
		enriched = contextBlock + "\n\n" + enriched
	}

	if err := sess.Transition(session.StatusPlanning); err != nil {
		o.abort(sess, started, err.Error())
		return
	}
	detector := NewStallDetector(sess)

	for {
		if ctx.Err() != nil {
			o.abort(sess, started, "caller disconnected")
			return
		}
		roundStart := time.Now()
		plan := o.scheduler.Next(sess)
		sess.Round++
		if len(plan.Invocations) == 0 {
			o.abort(sess, started, "no participant available for next step")
			return
		}
		if err := sess.Transition(session.StatusDelegating); err != nil {
			o.abort(sess, started, err.Error())
			return
		}
		roundMsgs := o.executeRound(ctx, sess, plan, enriched)
		if err := sess.Transition(session.StatusEvaluating); err != nil {
			o.abort(sess, started, err.Error())
			return
		}

		if detector.Classify(sess, roundMsgs) == Stall {
			sess.StallCount++
			metrics.StallsDetected.Inc()
		} else {
			sess.StallCount = 0
		}

		cons := EvaluateConsensus(sess)
		if sess.Proposal != nil {
			o.events.Publish(sess.ID, streaming.Event{
				Type:  streaming.TypeConsensusUpdate,
				Round: sess.Round,
				Data:  cons,
			})
		}

		metrics.RoundsExecuted.Inc()
		metrics.RoundDuration.Observe(time.Since(roundStart).Seconds())

		decision := EvaluateTermination(sess, roundMsgs, cons)
		if decision == nil {
			if err := sess.Transition(session.StatusPlanning); err != nil {
				o.abort(sess, started, err.Error())
				return
			}
			continue
		}
		o.logger.Info("deliberation terminal",
			zap.String("session_id", sess.ID),
			zap.String("outcome", string(decision.Outcome)),
			zap.Int("round", sess.Round))
		if decision.Outcome == OutcomeHardError {
			o.abort(sess, started, decision.Reason)
			return
		}
		if err := sess.Transition(session.StatusFinalizing); err != nil {
			o.abort(sess, started, err.Error())
			return
		}
		o.finalize(ctx, sess, decision, started)
		return
	}
}

// executeRound invokes the planned participants, concurrently when the plan
// allows it, then folds all results into the transcript sequentially so that
// sequence numbers stay gapless.
func (o *Orchestrator) executeRound(ctx context.Context, sess *session.Session, plan Plan, enriched string) []session.Message {
	type result struct {
		inv     Invocation
		content string
		err     error
	}
	results := make([]result, len(plan.Invocations))

	run := func(i int, inv Invocation) {
		o.events.Publish(sess.ID, streaming.Event{
			Type:  streaming.TypeAgentStatus,
			Agent: inv.Participant.Name,
			Round: sess.Round,
			Data:  map[string]any{"active": true},
		})
		ictx, cancel := context.WithTimeout(ctx, o.cfg.InvocationTimeout)
		defer cancel()
		start := time.Now()
		content, err := o.invoker.Invoke(ictx, inv.Participant, o.buildInput(sess, inv, enriched))
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.Invocations.WithLabelValues(inv.Participant.Name, status).Inc()
		metrics.InvocationDuration.WithLabelValues(inv.Participant.Name).Observe(time.Since(start).Seconds())
		o.events.Publish(sess.ID, streaming.Event{
			Type:  streaming.TypeAgentStatus,
			Agent: inv.Participant.Name,
			Round: sess.Round,
			Data:  map[string]any{"active": false},
		})
		results[i] = result{inv: inv, content: content, err: err}
	}

	if plan.Parallel && len(plan.Invocations) > 1 {
		var wg sync.WaitGroup
		for i, inv := range plan.Invocations {
			wg.Add(1)
			go func(i int, inv Invocation) {
				defer wg.Done()
				run(i, inv)
			}(i, inv)
		}
		wg.Wait()
	} else {
		for i, inv := range plan.Invocations {
			run(i, inv)
		}
	}

	msgs := make([]session.Message, 0, len(results))
	for _, r := range results {
		msgs = append(msgs, o.recordResult(ctx, sess, r.inv.Participant, r.content, r.err))
	}
	return msgs
}

// recordResult turns one invocation outcome into a transcript message and
// publishes the derived events.
func (o *Orchestrator) recordResult(ctx context.Context, sess *session.Session, p registry.Participant, content string, err error) session.Message {
	msg := session.Message{
		Round:       sess.Round,
		Participant: p.Name,
		Content:     content,
	}
	if err != nil {
		msg.Content = ""
		msg.Error = err.Error()
		// A sandbox failure leaves external state undefined and is terminal;
		// any other failure just informs the next plan.
		msg.HardError = p.CanExecuteCode
	} else {
		msg.Vote = ParseVote(content)
		msg.Trade, msg.Chart = trade.Parse(content, sess.Symbols)
	}
	msg = sess.Append(msg)
	o.sink.Append(ctx, msg)

	if msg.Error != "" {
		o.events.Publish(sess.ID, streaming.Event{
			Type:    streaming.TypeAgentMessage,
			Agent:   p.Name,
			Round:   msg.Round,
			Content: "Fehler: " + msg.Error,
		})
		return msg
	}

	o.events.Publish(sess.ID, streaming.Event{
		Type:    streaming.TypeAgentMessage,
		Agent:   p.Name,
		Round:   msg.Round,
		Content: msg.Content,
		Data:    map[string]any{"seq": msg.Seq},
	})

	if msg.Trade != nil {
		current := sess.Proposal
		if current == nil || current.Trade == nil || !msg.Trade.Equal(current.Trade) {
			prop := sess.SetProposal(summarizeTrade(msg.Trade), msg.Trade, p.Name)
			if prop.Version > 1 {
				metrics.ProposalsSuperseded.Inc()
			}
		}
		o.events.Publish(sess.ID, streaming.Event{
			Type:  streaming.TypeTradeRecommendation,
			Agent: p.Name,
			Round: msg.Round,
			Data:  msg.Trade,
		})
	}
	if msg.Chart != nil {
		o.events.Publish(sess.ID, streaming.Event{
			Type:  streaming.TypeChartConfig,
			Agent: p.Name,
			Round: msg.Round,
			Data:  msg.Chart,
		})
	}
	if msg.Vote != "" && p.CanVote && sess.Proposal != nil {
		sess.RecordVote(p.Name, msg.Vote)
	}
	return msg
}

// finalize invokes the report writer once with the full transcript and the
// decision, then closes the session. A writer failure here is hard-terminal
// since no artifact can be produced without it.
func (o *Orchestrator) finalize(ctx context.Context, sess *session.Session, decision *Decision, started time.Time) {
	writer, err := o.reg.ByCapability(registry.CapReportWriting)
	if err != nil {
		o.abort(sess, started, "no report writer registered")
		return
	}

	var b strings.Builder
	b.WriteString("Erstelle den finalen Bericht zur Diskussion.\n")
	b.WriteString("Abschlussgrund: " + decision.Reason + "\n")
	if decision.Proposal != nil {
		if pj, err := json.Marshal(decision.Proposal); err == nil {
			b.WriteString("Vorschlag: " + string(pj) + "\n")
		}
		if decision.Outcome != OutcomeConsensus {
			b.WriteString("Hinweis: kein Konsens erreicht, kennzeichne den Vorschlag als vorläufig.\n")
		}
	}
	b.WriteString("\nVerlauf:\n" + sess.TranscriptText())

	o.events.Publish(sess.ID, streaming.Event{
		Type:  streaming.TypeAgentStatus,
		Agent: writer.Name,
		Round: sess.Round,
		Data:  map[string]any{"active": true},
	})
	ictx, cancel := context.WithTimeout(ctx, o.cfg.InvocationTimeout)
	report, err := o.invoker.Invoke(ictx, writer, b.String())
	cancel()
	o.events.Publish(sess.ID, streaming.Event{
		Type:  streaming.TypeAgentStatus,
		Agent: writer.Name,
		Round: sess.Round,
		Data:  map[string]any{"active": false},
	})
	metrics.Invocations.WithLabelValues(writer.Name, statusLabel(err)).Inc()
	if err != nil {
		o.abort(sess, started, "final report failed: "+err.Error())
		return
	}

	msg := sess.Append(session.Message{
		Round:       sess.Round,
		Participant: writer.Name,
		Content:     report,
	})
	o.sink.Append(ctx, msg)
	o.events.Publish(sess.ID, streaming.Event{
		Type:    streaming.TypeAgentMessage,
		Agent:   writer.Name,
		Round:   msg.Round,
		Content: report,
		Data:    map[string]any{"seq": msg.Seq},
	})

	final := aggregate.New()
	for _, m := range sess.Transcript {
		final.Apply(m)
	}
	decision.Report = final.Report
	decision.Chart = final.Chart

	// Make sure the client has chart parameters for a ratified trade even if
	// no configurator ran.
	if sess.Proposal != nil && sess.Proposal.Trade != nil && decision.Chart == nil {
		decision.Chart = trade.DefaultChartConfig(sess.Proposal.Trade)
		o.events.Publish(sess.ID, streaming.Event{
			Type: streaming.TypeChartConfig,
			Data: decision.Chart,
		})
	}

	sess.Context.AddAssistantTurn(report, sess.Symbols)
	if err := sess.Transition(session.StatusComplete); err != nil {
		o.logger.Error("completion transition failed", zap.Error(err))
	}
	o.events.Publish(sess.ID, streaming.Event{
		Type: streaming.TypeQueryComplete,
		Data: decision,
	})
	metrics.SessionsCompleted.WithLabelValues(string(decision.Outcome)).Inc()
	metrics.SessionDuration.Observe(time.Since(started).Seconds())
}

func (o *Orchestrator) abort(sess *session.Session, started time.Time, reason string) {
	o.logger.Warn("deliberation aborted",
		zap.String("session_id", sess.ID),
		zap.String("reason", reason))
	if !sess.Status.Terminal() {
		_ = sess.Transition(session.StatusAborted)
	}
	o.events.Publish(sess.ID, streaming.Event{
		Type:    streaming.TypeError,
		Content: reason,
	})
	metrics.SessionsCompleted.WithLabelValues(string(OutcomeHardError)).Inc()
	metrics.SessionDuration.Observe(time.Since(started).Seconds())
}

func (o *Orchestrator) requestClarification(sess *session.Session, candidates []string) {
	sess.PendingCandidates = candidates
	metrics.Clarifications.Inc()
	o.events.Publish(sess.ID, streaming.Event{
		Type:    streaming.TypeClarificationNeeded,
		Content: "Welches Symbol meinst du? " + strings.Join(candidates, ", "),
		Data:    map[string]any{"candidates": candidates},
	})
}

// firstActive returns the first candidate already present in the session's
// active symbols.
func firstActive(sess *session.Session, candidates []string) string {
	for _, cand := range candidates {
		for _, active := range sess.Context.ActiveSymbols {
			if cand == active {
				return cand
			}
		}
	}
	return ""
}

// resolveClarification matches a follow-up query against the candidates the
// session paused on. The chosen symbol seeds the restarted deliberation.
func (o *Orchestrator) resolveClarification(sess *session.Session, query string) string {
	upper := strings.ToUpper(query)
	var chosen string
	for _, cand := range sess.PendingCandidates {
		if strings.Contains(upper, strings.ToUpper(cand)) {
			chosen = cand
			break
		}
	}
	sess.Reset(query)
	if chosen != "" {
		sess.Symbols = []string{chosen}
	}
	return query
}

func (o *Orchestrator) buildInput(sess *session.Session, inv Invocation, enriched string) string {
	var b strings.Builder
	b.WriteString(inv.Instruction)
	b.WriteString("\n\n")
	b.WriteString(enriched)
	if sess.Proposal != nil {
		if pj, err := json.Marshal(sess.Proposal); err == nil {
			b.WriteString("\n\nAktueller Vorschlag: " + string(pj))
		}
	}
	if history := sess.TranscriptText(); history != "" {
		b.WriteString("\n\nBisheriger Verlauf:\n" + history)
	}
	return b.String()
}

func summarizeTrade(rec *trade.Recommendation) string {
	return rec.Direction + " " + rec.Symbol
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
