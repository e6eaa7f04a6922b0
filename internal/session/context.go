package session

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// ContextLimits bound the per-session conversation memory.
type ContextLimits struct {
	MaxRecentTurns   int
	MaxActiveSymbols int
	MaxSummaryLength int
}

// DefaultContextLimits returns the standard conversation memory bounds.
func DefaultContextLimits() ContextLimits {
	return ContextLimits{
		MaxRecentTurns:   5,
		MaxActiveSymbols: 5,
		MaxSummaryLength: 500,
	}
}

// Turn is a single compressed conversation turn.
type Turn struct {
	Role         string // "user" or "assistant"
	Content      string
	Symbols      []string
	Timestamp    time.Time
	IsPriceQuery bool
	IsAnalysis   bool
}

// Context is the token-efficient conversation memory carried across queries
// on the same session id. Full messages are never retained; turns are
// compressed and old turns collapse into a running summary.
type Context struct {
	ActiveSymbols []string
	RecentTurns   []Turn
	Summary       string

	limits ContextLimits
}

// NewContext creates an empty conversation context.
func NewContext(limits ContextLimits) *Context {
	if limits.MaxRecentTurns <= 0 {
		limits = DefaultContextLimits()
	}
	return &Context{limits: limits}
}

// markdownRes strip headings and emphasis during turn compression.
var (
	headingRe  = regexp.MustCompile(`#{1,6}\s+`)
	emphasisRe = regexp.MustCompile(`\*{1,2}([^*]+)\*{1,2}`)
)

// referencePatterns suggest the query points back at earlier context
// ("mache mir hierzu eine Analyse").
var referencePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bhierzu\b`),
	regexp.MustCompile(`\bdazu\b`),
	regexp.MustCompile(`\bdavon\b`),
	regexp.MustCompile(`\bhiervon\b`),
	regexp.MustCompile(`\bdiese[rsmn]?\b`),
	regexp.MustCompile(`\bbeide[rsmn]?\b`),
	regexp.MustCompile(`\ball(?:e[rsmn]?)?\b`),
	regexp.MustCompile(`^\.{2,}und\b`),
}

// AddUserTurn records a user query and promotes its symbols to the front of
// the active set.
func (c *Context) AddUserTurn(content string, symbols []string, isPriceQuery, isAnalysis bool) {
	c.addTurn(Turn{
		Role:         "user",
		Content:      c.compress(content),
		Symbols:      symbols,
		Timestamp:    time.Now(),
		IsPriceQuery: isPriceQuery,
		IsAnalysis:   isAnalysis,
	})
	for i := len(symbols) - 1; i >= 0; i-- {
		c.promoteSymbol(symbols[i])
	}
}

// AddAssistantTurn records a system response.
func (c *Context) AddAssistantTurn(content string, symbols []string) {
	c.addTurn(Turn{
		Role:      "assistant",
		Content:   c.compress(content),
		Symbols:   symbols,
		Timestamp: time.Now(),
	})
}

func (c *Context) promoteSymbol(symbol string) {
	filtered := c.ActiveSymbols[:0]
	for _, s := range c.ActiveSymbols {
		if s != symbol {
			filtered = append(filtered, s)
		}
	}
	c.ActiveSymbols = append([]string{symbol}, filtered...)
	if len(c.ActiveSymbols) > c.limits.MaxActiveSymbols {
		c.ActiveSymbols = c.ActiveSymbols[:c.limits.MaxActiveSymbols]
	}
}

func (c *Context) addTurn(turn Turn) {
	c.RecentTurns = append(c.RecentTurns, turn)
	for len(c.RecentTurns) > c.limits.MaxRecentTurns {
		oldest := c.RecentTurns[0]
		c.RecentTurns = c.RecentTurns[1:]
		c.foldIntoSummary(oldest)
	}
}

func (c *Context) compress(content string) string {
	content = headingRe.ReplaceAllString(content, "")
	content = emphasisRe.ReplaceAllString(content, "$1")
	if len(content) > 200 {
		content = content[:200] + "..."
	}
	return strings.TrimSpace(content)
}

func (c *Context) foldIntoSummary(turn Turn) {
	if len(turn.Symbols) == 0 {
		return
	}
	symbolStr := strings.Join(turn.Symbols, ", ")
	var entry string
	switch {
	case turn.Role == "user" && turn.IsPriceQuery:
		entry = "Preisabfrage: " + symbolStr
	case turn.Role == "user" && turn.IsAnalysis:
		entry = "Analyse angefragt: " + symbolStr
	case turn.Role == "user":
		entry = "Diskutiert: " + symbolStr
	default:
		entry = "Info zu: " + symbolStr
	}
	if c.Summary != "" {
		c.Summary += "; " + entry
	} else {
		c.Summary = entry
	}
	if len(c.Summary) > c.limits.MaxSummaryLength {
		c.Summary = "..." + c.Summary[len(c.Summary)-(c.limits.MaxSummaryLength-3):]
	}
}

// ForQuery renders the compact context block prepended to a follow-up query.
func (c *Context) ForQuery() string {
	if len(c.RecentTurns) == 0 && c.Summary == "" {
		return ""
	}
	var parts []string
	if c.Summary != "" {
		parts = append(parts, "[Vorherige Diskussion: "+c.Summary+"]")
	}
	if len(c.ActiveSymbols) > 0 {
		parts = append(parts, "[Aktive Symbole: "+strings.Join(c.ActiveSymbols, ", ")+"]")
	}
	if len(c.RecentTurns) > 0 {
		start := len(c.RecentTurns) - 3
		if start < 0 {
			start = 0
		}
		var lines []string
		for _, turn := range c.RecentTurns[start:] {
			prefix := "U"
			if turn.Role == "assistant" {
				prefix = "A"
			}
			content := turn.Content
			if len(content) > 80 {
				content = content[:80] + "..."
			}
			lines = append(lines, fmt.Sprintf("%s: %s", prefix, content))
		}
		parts = append(parts, "[Letzte Nachrichten:\n"+strings.Join(lines, "\n")+"]")
	}
	return strings.Join(parts, "\n")
}

// LastSymbols returns the most recently discussed symbols.
func (c *Context) LastSymbols(count int) []string {
	if count > len(c.ActiveSymbols) {
		count = len(c.ActiveSymbols)
	}
	return c.ActiveSymbols[:count]
}

// NeedsClarification reports whether the query references prior context
// ambiguously (a back-reference word with several candidate symbols in
// play) and returns the candidates to offer.
func (c *Context) NeedsClarification(query string) (bool, []string) {
	lower := strings.ToLower(query)
	referenced := false
	for _, re := range referencePatterns {
		if re.MatchString(lower) {
			referenced = true
			break
		}
	}
	if !referenced {
		return false, nil
	}
	if len(c.ActiveSymbols) > 1 {
		candidates := c.ActiveSymbols
		if len(candidates) > 3 {
			candidates = candidates[:3]
		}
		return true, candidates
	}
	return false, nil
}
