package trade

import (
	"encoding/json"
	"fmt"
)

// Direction of a recommended position.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Entry is an entry price, either a single level (Min == Max) or a zone.
type Entry struct {
	Min float64
	Max float64
}

// PointEntry returns an Entry at a single price level.
func PointEntry(price float64) *Entry { return &Entry{Min: price, Max: price} }

// RangeEntry returns an Entry spanning a zone, normalizing the bounds.
func RangeEntry(a, b float64) *Entry {
	if a > b {
		a, b = b, a
	}
	return &Entry{Min: a, Max: b}
}

// IsRange reports whether the entry spans a zone.
func (e *Entry) IsRange() bool { return e != nil && e.Min != e.Max }

// Mid returns the midpoint of the entry zone (the level itself for points).
func (e *Entry) Mid() float64 { return (e.Min + e.Max) / 2 }

// Levels returns the entry as a flat list of price levels.
func (e *Entry) Levels() []float64 {
	if e == nil {
		return nil
	}
	if e.IsRange() {
		return []float64{e.Min, e.Max}
	}
	return []float64{e.Min}
}

// MarshalJSON emits a bare number for point entries and {min,max} for zones.
func (e Entry) MarshalJSON() ([]byte, error) {
	if e.Min == e.Max {
		return json.Marshal(e.Min)
	}
	return json.Marshal(map[string]float64{"min": e.Min, "max": e.Max})
}

// UnmarshalJSON accepts a number, a two-element array, or a {min,max} object.
func (e *Entry) UnmarshalJSON(data []byte) error {
	var point float64
	if err := json.Unmarshal(data, &point); err == nil {
		e.Min, e.Max = point, point
		return nil
	}
	var arr []float64
	if err := json.Unmarshal(data, &arr); err == nil && len(arr) >= 2 {
		*e = *RangeEntry(arr[0], arr[1])
		return nil
	}
	var obj struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	}
	if err := json.Unmarshal(data, &obj); err == nil && (obj.Min != 0 || obj.Max != 0) {
		*e = *RangeEntry(obj.Min, obj.Max)
		return nil
	}
	return fmt.Errorf("entry: unsupported shape %s", string(data))
}

// TakeProfits is a list of take-profit levels; a single level marshals as a
// bare number to match the wire format.
type TakeProfits []float64

func (t TakeProfits) MarshalJSON() ([]byte, error) {
	if len(t) == 1 {
		return json.Marshal(t[0])
	}
	return json.Marshal([]float64(t))
}

func (t *TakeProfits) UnmarshalJSON(data []byte) error {
	var single float64
	if err := json.Unmarshal(data, &single); err == nil {
		*t = TakeProfits{single}
		return nil
	}
	var list []float64
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("takeProfit: unsupported shape %s", string(data))
	}
	*t = TakeProfits(list)
	return nil
}

// Recommendation is a structured trade recommendation extracted from a
// participant's output.
type Recommendation struct {
	Symbol     string      `json:"symbol"`
	Direction  string      `json:"direction"`
	Entry      *Entry      `json:"entry"`
	StopLoss   float64     `json:"stopLoss"`
	TakeProfit TakeProfits `json:"takeProfit"`
	RiskReward string      `json:"riskReward"`
	Confidence string      `json:"confidence,omitempty"`
	Validity   string      `json:"validity,omitempty"`
	Reasoning  string      `json:"reasoning,omitempty"`
}

// Equal reports whether two recommendations describe the same trade setup.
func (r *Recommendation) Equal(o *Recommendation) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.Symbol != o.Symbol || r.Direction != o.Direction || r.StopLoss != o.StopLoss {
		return false
	}
	if (r.Entry == nil) != (o.Entry == nil) {
		return false
	}
	if r.Entry != nil && (r.Entry.Min != o.Entry.Min || r.Entry.Max != o.Entry.Max) {
		return false
	}
	if len(r.TakeProfit) != len(o.TakeProfit) {
		return false
	}
	for i := range r.TakeProfit {
		if r.TakeProfit[i] != o.TakeProfit[i] {
			return false
		}
	}
	return true
}

// PriceLevels are the chart overlay levels derived from a recommendation.
type PriceLevels struct {
	Entries     []float64 `json:"entries,omitempty"`
	StopLoss    float64   `json:"stopLoss,omitempty"`
	TakeProfits []float64 `json:"takeProfits,omitempty"`
}

// ChartConfig configures the client chart widget.
type ChartConfig struct {
	Symbol      string       `json:"symbol"`
	Interval    string       `json:"interval,omitempty"`
	Indicators  []string     `json:"indicators,omitempty"`
	Theme       string       `json:"theme,omitempty"`
	PriceLevels *PriceLevels `json:"priceLevels,omitempty"`
}

// DefaultChartConfig synthesizes a chart config from a recommendation when the
// participant did not provide one explicitly.
func DefaultChartConfig(rec *Recommendation) *ChartConfig {
	if rec == nil {
		return nil
	}
	return &ChartConfig{
		Symbol:     rec.Symbol,
		Interval:   "D",
		Indicators: []string{"EMA50", "EMA200", "RSI"},
		Theme:      "dark",
		PriceLevels: &PriceLevels{
			Entries:     rec.Entry.Levels(),
			StopLoss:    rec.StopLoss,
			TakeProfits: []float64(rec.TakeProfit),
		},
	}
}
