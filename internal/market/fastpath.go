package market

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// pricePatterns detect simple price/quote questions (German and English) that
// can be answered from a quote lookup without convening the council.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`welchen?\s+preis`),
	regexp.MustCompile(`was\s+kostet`),
	regexp.MustCompile(`aktueller?\s+kurs`),
	regexp.MustCompile(`aktueller?\s+preis`),
	regexp.MustCompile(`kurs\s+von`),
	regexp.MustCompile(`preis\s+von`),
	regexp.MustCompile(`^\.{2,}und\s+\w+\??$`), // "..und MSFT?"
	regexp.MustCompile(`^und\s+\w+\??$`),
	regexp.MustCompile(`^\w{2,5}\s+kurs\??$`),
	regexp.MustCompile(`^\w{2,5}\s+preis\??$`),
	regexp.MustCompile(`wie\s+steht\s+\w+`),
	regexp.MustCompile(`wie\s+ist\s+der\s+kurs`),
	regexp.MustCompile(`current\s+price`),
	regexp.MustCompile(`price\s+of\s+\w+`),
}

var analysisPatterns = []*regexp.Regexp{
	regexp.MustCompile(`analy[sz]`),
	regexp.MustCompile(`bewert`),
	regexp.MustCompile(`einsch[äa]tz`),
	regexp.MustCompile(`empfehl`),
	regexp.MustCompile(`trade\s*idea`),
	regexp.MustCompile(`handels.*empfehlung`),
	regexp.MustCompile(`was\s+denkst\s+du`),
	regexp.MustCompile(`wie\s+siehst\s+du`),
}

// IsPriceQuery reports whether the query is a simple quote request.
func IsPriceQuery(query string) bool {
	lower := strings.ToLower(strings.TrimSpace(query))
	for _, re := range pricePatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsAnalysisRequest reports whether the query asks for a full analysis.
func IsAnalysisRequest(query string) bool {
	lower := strings.ToLower(query)
	for _, re := range analysisPatterns {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// QuickResponse answers a price query directly from the quoter, one line per
// symbol. Failures per symbol degrade to an unavailable line instead of
// failing the whole response.
func QuickResponse(ctx context.Context, quoter Quoter, symbols []string, logger *zap.Logger) string {
	var lines []string
	for _, symbol := range symbols {
		q, err := quoter.Quote(ctx, symbol)
		if err != nil {
			logger.Warn("quick quote failed", zap.String("symbol", symbol), zap.Error(err))
			lines = append(lines, fmt.Sprintf("%s: Daten nicht verfügbar", symbol))
			continue
		}
		line := fmt.Sprintf("**%s**: $%s", symbol, q.Price.StringFixed(2))
		if !q.ChangePct.IsZero() {
			sign := ""
			if q.ChangePct.Sign() > 0 {
				sign = "+"
			}
			line += fmt.Sprintf(" (%s%s%%)", sign, q.ChangePct.StringFixed(2))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// EnrichQuery prepends a live market data block to the query so participants
// reason over current prices instead of stale training data.
func EnrichQuery(ctx context.Context, quoter Quoter, query string, symbols []string, logger *zap.Logger) string {
	if len(symbols) == 0 {
		return query
	}

	var b strings.Builder
	b.WriteString("=== LIVE MARKET DATA (fetched just now) ===\n")
	for _, symbol := range symbols {
		q, err := quoter.Quote(ctx, symbol)
		if err != nil {
			logger.Warn("market enrichment failed", zap.String("symbol", symbol), zap.Error(err))
			fmt.Fprintf(&b, "%s: data unavailable\n", symbol)
			continue
		}
		fmt.Fprintf(&b, "%s (%s)\n", symbol, strings.ToUpper(q.AssetType))
		fmt.Fprintf(&b, "  Current Price: $%s\n", q.Price.StringFixed(2))
		fmt.Fprintf(&b, "  24h Change: %s%%\n", q.ChangePct.StringFixed(2))
		fmt.Fprintf(&b, "  24h High/Low: $%s / $%s\n", q.High24h.StringFixed(2), q.Low24h.StringFixed(2))
		if q.Volume > 0 {
			fmt.Fprintf(&b, "  24h Volume: %d\n", q.Volume)
		}
	}
	b.WriteString("=== END MARKET DATA ===\n\n")
	b.WriteString("User Query: ")
	b.WriteString(query)
	return b.String()
}
