package trade

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// maxScaleSpread rejects level sets whose largest value exceeds the smallest
// by more than this factor; such sets are almost always a percentage or a
// ratio misread as a price.
const maxScaleSpread = 50.0

const numberPattern = `\d+[\.,]?\d*`

var (
	jsonBlockRe  = regexp.MustCompile(`(?s)\{.*\}\s*$`)
	entryRe      = regexp.MustCompile(`(?:entry|einstieg)[^\d]*(` + numberPattern + `(?:\s*-\s*` + numberPattern + `)?)`)
	stopRe       = regexp.MustCompile(`stop[^\d]*(` + numberPattern + `)`)
	tpNumberedRe = regexp.MustCompile(`tp\d?[^\d]*(` + numberPattern + `)`)
	tpPlainRe    = regexp.MustCompile(`take\s*profit[^\d]*(` + numberPattern + `)`)
)

// Parse extracts a trade recommendation and chart config from participant
// text. It tries a trailing JSON block first and falls back to regex
// heuristics over the prose. Returns nils when no complete setup (entry +
// stop + take profit) is present.
func Parse(content string, symbols []string) (*Recommendation, *ChartConfig) {
	if rec, chart := parseJSONBlock(content, symbols); rec != nil || chart != nil {
		return rec, chart
	}
	return parseHeuristic(content, symbols)
}

// jsonPayload mirrors the structured block participants are prompted to emit.
type jsonPayload struct {
	TradeRecommendation *struct {
		Symbol      string          `json:"symbol"`
		Direction   string          `json:"direction"`
		Entry       *Entry          `json:"entry"`
		StopLoss    *float64        `json:"stopLoss"`
		TakeProfit  json.RawMessage `json:"takeProfit"`
		TakeProfits json.RawMessage `json:"takeProfits"`
		RiskReward  string          `json:"riskReward"`
		Confidence  string          `json:"confidence"`
		Validity    string          `json:"validity"`
		Reasoning   string          `json:"reasoning"`
	} `json:"trade_recommendation"`
	ChartConfig *ChartConfig `json:"chart_config"`
}

func parseJSONBlock(content string, symbols []string) (*Recommendation, *ChartConfig) {
	block := jsonBlockRe.FindString(content)
	if block == "" {
		return nil, nil
	}
	var payload jsonPayload
	if err := json.Unmarshal([]byte(block), &payload); err != nil {
		return nil, nil
	}
	if payload.TradeRecommendation == nil {
		// A standalone chart block is still useful.
		if chart := payload.ChartConfig; chart != nil {
			if chart.Symbol == "" && len(symbols) > 0 {
				chart.Symbol = symbols[0]
			}
			return nil, chart
		}
		return nil, nil
	}
	tr := payload.TradeRecommendation

	var tps TakeProfits
	for _, raw := range []json.RawMessage{tr.TakeProfit, tr.TakeProfits} {
		if len(raw) == 0 || tps != nil {
			continue
		}
		var parsed TakeProfits
		if err := json.Unmarshal(raw, &parsed); err == nil && len(parsed) > 0 {
			tps = parsed
		}
	}

	if tr.Entry == nil || tr.StopLoss == nil || len(tps) == 0 {
		// Incomplete structured block; the prose may still carry the levels.
		return nil, nil
	}

	rec := &Recommendation{
		Symbol:     tr.Symbol,
		Direction:  strings.ToUpper(tr.Direction),
		Entry:      tr.Entry,
		StopLoss:   *tr.StopLoss,
		TakeProfit: tps,
		RiskReward: tr.RiskReward,
		Confidence: tr.Confidence,
		Validity:   tr.Validity,
		Reasoning:  tr.Reasoning,
	}
	if rec.Symbol == "" && len(symbols) > 0 {
		rec.Symbol = symbols[0]
	}
	if rec.Direction == "" {
		rec.Direction = DirectionLong
	}
	if rec.RiskReward == "" {
		rec.RiskReward = riskReward(rec.Direction, rec.Entry, rec.StopLoss, tps)
	}
	if !plausibleScale(rec) {
		return nil, nil
	}

	chart := payload.ChartConfig
	if chart == nil {
		chart = DefaultChartConfig(rec)
	} else if chart.Symbol == "" {
		chart.Symbol = rec.Symbol
	}
	return rec, chart
}

func parseHeuristic(content string, symbols []string) (*Recommendation, *ChartConfig) {
	text := strings.ToLower(content)

	direction := detectDirection(text)

	var entry *Entry
	if m := entryRe.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if strings.Contains(raw, "-") {
			parts := strings.SplitN(raw, "-", 2)
			lo, okLo := toFloat(parts[0])
			hi, okHi := toFloat(parts[1])
			if okLo && okHi {
				entry = RangeEntry(lo, hi)
			}
		} else if v, ok := toFloat(raw); ok {
			entry = PointEntry(v)
		}
	}

	var stop float64
	haveStop := false
	if m := stopRe.FindStringSubmatch(text); m != nil {
		if v, ok := toFloat(m[1]); ok {
			stop, haveStop = v, true
		}
	}

	var tps TakeProfits
	for _, m := range tpNumberedRe.FindAllStringSubmatch(text, -1) {
		if v, ok := toFloat(m[1]); ok {
			tps = append(tps, v)
		}
	}
	if len(tps) == 0 {
		if m := tpPlainRe.FindStringSubmatch(text); m != nil {
			if v, ok := toFloat(m[1]); ok {
				tps = append(tps, v)
			}
		}
	}

	if entry == nil || !haveStop || len(tps) == 0 {
		return nil, nil
	}

	rec := &Recommendation{
		Direction:  direction,
		Entry:      entry,
		StopLoss:   stop,
		TakeProfit: tps,
		RiskReward: riskReward(direction, entry, stop, tps),
	}
	if len(symbols) > 0 {
		rec.Symbol = symbols[0]
	}
	if !plausibleScale(rec) {
		return nil, nil
	}
	return rec, DefaultChartConfig(rec)
}

func detectDirection(text string) string {
	hasLong := strings.Contains(text, "long")
	hasShort := strings.Contains(text, "short")
	switch {
	case hasShort && !hasLong:
		return DirectionShort
	case hasLong && !hasShort:
		return DirectionLong
	case hasLong && hasShort:
		if strings.Index(text, "long") < strings.Index(text, "short") {
			return DirectionLong
		}
		return DirectionShort
	default:
		return DirectionLong
	}
}

// toFloat handles German decimal commas ("1,5" -> 1.5).
func toFloat(s string) (float64, bool) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), " ", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	if cleaned == "" {
		return 0, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// plausibleScale rejects setups with non-positive levels or wildly
// inconsistent magnitudes.
func plausibleScale(rec *Recommendation) bool {
	values := append([]float64{}, rec.Entry.Levels()...)
	values = append(values, rec.StopLoss)
	values = append(values, rec.TakeProfit...)

	min, max := values[0], values[0]
	for _, v := range values {
		if v <= 0 {
			return false
		}
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return max/min <= maxScaleSpread
}

// riskReward computes the reward-to-risk ratio against the first take profit,
// using the entry midpoint for zones. Returns "n/a" when the geometry makes no
// sense for the direction.
func riskReward(direction string, entry *Entry, stop float64, tps TakeProfits) string {
	if entry == nil || len(tps) == 0 {
		return "n/a"
	}
	entryMid := decimal.NewFromFloat(entry.Mid())
	stopD := decimal.NewFromFloat(stop)
	tpD := decimal.NewFromFloat(tps[0])

	var risk, reward decimal.Decimal
	if direction == DirectionShort {
		risk = stopD.Sub(entryMid)
		reward = entryMid.Sub(tpD)
	} else {
		risk = entryMid.Sub(stopD)
		reward = tpD.Sub(entryMid)
	}
	if risk.Sign() <= 0 || reward.Sign() <= 0 {
		return "n/a"
	}
	ratio := reward.Div(risk).Round(1)
	return ratio.String() + ":1"
}
