package market

import (
	"regexp"
	"strings"
)

// maxSymbolsPerQuery caps how many instruments one query may reference.
const maxSymbolsPerQuery = 3

// companyName maps a company name appearing in a query to its ticker.
// Multi-word names are matched as substrings, single words on word boundaries.
type companyName struct {
	term      string
	ticker    string
	wordMatch bool
}

var companyNames = []companyName{
	// Multi-word names, substring match
	{"NOVO NORDISK", "NVO", false},
	{"MORGAN STANLEY", "MS", false},
	{"DEUTSCHE BANK", "DBK.DE", false},
	{"CREDIT SUISSE", "CS", false},
	{"RIO TINTO", "RIO.L", false},
	// US companies
	{"APPLE", "AAPL", true},
	{"MICROSOFT", "MSFT", true},
	{"GOOGLE", "GOOGL", true},
	{"ALPHABET", "GOOGL", true},
	{"AMAZON", "AMZN", true},
	{"TESLA", "TSLA", true},
	{"NVIDIA", "NVDA", true},
	{"FACEBOOK", "META", true},
	{"NETFLIX", "NFLX", true},
	{"INTEL", "INTC", true},
	{"SALESFORCE", "CRM", true},
	{"ORACLE", "ORCL", true},
	{"PAYPAL", "PYPL", true},
	{"COINBASE", "COIN", true},
	{"DISNEY", "DIS", true},
	{"SHOPIFY", "SHOP", true},
	{"BOEING", "BA", true},
	{"JPMORGAN", "JPM", true},
	{"GOLDMAN", "GS", true},
	{"VISA", "V", true},
	{"MASTERCARD", "MA", true},
	{"WALMART", "WMT", true},
	{"EXXON", "XOM", true},
	{"CHEVRON", "CVX", true},
	// European companies (exchange-suffixed tickers)
	{"SIEMENS", "SIE.DE", true},
	{"VOLKSWAGEN", "VOW3.DE", true},
	{"MERCEDES", "MBG.DE", true},
	{"DAIMLER", "MBG.DE", true},
	{"BAYER", "BAYN.DE", true},
	{"BASF", "BAS.DE", true},
	{"ALLIANZ", "ALV.DE", true},
	{"ADIDAS", "ADS.DE", true},
	{"LVMH", "MC.PA", true},
	{"AIRBUS", "AIR.PA", true},
	{"SANOFI", "SAN.PA", true},
	{"SHELL", "SHEL.L", true},
	{"ASTRAZENECA", "AZN.L", true},
	{"UNILEVER", "ULVR.L", true},
	{"GLENCORE", "GLEN.L", true},
	{"NESTLE", "NESN.SW", true},
	{"NOVARTIS", "NOVN.SW", true},
	{"ROCHE", "ROG.SW", true},
	{"ASML", "ASML", true},
	{"PHILIPS", "PHG", true},
	{"TOTALENERGIES", "TTE.PA", true},
	// Crypto names
	{"BITCOIN", "BTC/USDT", true},
	{"ETHEREUM", "ETH/USDT", true},
	{"SOLANA", "SOL/USDT", true},
	{"RIPPLE", "XRP/USDT", true},
	{"CARDANO", "ADA/USDT", true},
	{"DOGECOIN", "DOGE/USDT", true},
	{"AVALANCHE", "AVAX/USDT", true},
	{"POLKADOT", "DOT/USDT", true},
	{"POLYGON", "MATIC/USDT", true},
	{"CHAINLINK", "LINK/USDT", true},
	{"COSMOS", "ATOM/USDT", true},
	{"LITECOIN", "LTC/USDT", true},
	{"UNISWAP", "UNI/USDT", true},
	{"ARBITRUM", "ARB/USDT", true},
	{"OPTIMISM", "OP/USDT", true},
}

var stockTickers = map[string]struct{}{
	"AAPL": {}, "MSFT": {}, "GOOGL": {}, "GOOG": {}, "AMZN": {}, "TSLA": {},
	"NVDA": {}, "META": {}, "NFLX": {}, "AMD": {}, "INTC": {}, "CRM": {},
	"ORCL": {}, "IBM": {}, "PYPL": {}, "COIN": {}, "DIS": {}, "UBER": {},
	"LYFT": {}, "SNAP": {}, "SPOT": {}, "ZM": {}, "SHOP": {}, "BA": {},
	"JPM": {}, "GS": {}, "WMT": {}, "PG": {}, "JNJ": {}, "XOM": {}, "CVX": {},
	// ADRs and internationals on US exchanges
	"NVO": {}, "SAP": {}, "AZN": {}, "CS": {}, "ASML": {}, "PHG": {},
}

var euStockTickers = map[string]string{
	"SIE": "SIE.DE", "VOW3": "VOW3.DE", "BMW": "BMW.DE", "MBG": "MBG.DE",
	"BAYN": "BAYN.DE", "BAS": "BAS.DE", "ALV": "ALV.DE", "DBK": "DBK.DE",
	"ADS": "ADS.DE", "MC": "MC.PA", "OR": "OR.PA", "TTE": "TTE.PA",
	"AIR": "AIR.PA", "SAN": "SAN.PA", "RMS": "RMS.PA", "SHEL": "SHEL.L",
	"BP": "BP.L", "HSBA": "HSBA.L", "ULVR": "ULVR.L", "DGE": "DGE.L",
	"GLEN": "GLEN.L", "RIO": "RIO.L", "NESN": "NESN.SW", "NOVN": "NOVN.SW",
	"ROG": "ROG.SW", "UBSG": "UBSG.SW",
}

var cryptoTickers = map[string]string{
	"BTC": "BTC/USDT", "ETH": "ETH/USDT", "SOL": "SOL/USDT", "XRP": "XRP/USDT",
	"ADA": "ADA/USDT", "DOGE": "DOGE/USDT", "AVAX": "AVAX/USDT", "DOT": "DOT/USDT",
	"MATIC": "MATIC/USDT", "LINK": "LINK/USDT", "ATOM": "ATOM/USDT", "LTC": "LTC/USDT",
	"UNI": "UNI/USDT", "AAVE": "AAVE/USDT", "ARB": "ARB/USDT", "OP": "OP/USDT",
}

// commonWords are uppercase tokens that look like tickers but never are
// (German and English query vocabulary).
var commonWords = map[string]struct{}{
	"THE": {}, "AND": {}, "FOR": {}, "BUY": {}, "SELL": {}, "USD": {}, "EUR": {},
	"USDT": {}, "WAS": {}, "VON": {}, "DER": {}, "DIE": {}, "DAS": {}, "MIT": {},
	"ENDE": {}, "TAG": {}, "KURS": {}, "EINE": {}, "EINEN": {}, "EINEM": {},
	"MACHE": {}, "BITTE": {}, "ZEIGE": {}, "AKTIE": {}, "CHART": {}, "PREIS": {},
	"NEWS": {}, "LONG": {}, "SHORT": {}, "STOP": {}, "TAKE": {}, "ABOUT": {},
	"WHAT": {}, "HOW": {}, "CAN": {}, "GIVE": {}, "SHOW": {}, "TELL": {},
	"MAKE": {}, "PLEASE": {}, "HELP": {}, "FROM": {}, "WITH": {}, "THIS": {},
	"THAT": {}, "HAVE": {}, "WILL": {},
}

var (
	cryptoPairRe = regexp.MustCompile(`\b([A-Z]{2,5})/([A-Z]{3,4})\b`)
	tickerRe     = regexp.MustCompile(`\b([A-Z]{2,5})\b`)
)

// ExtractSymbols finds the instruments a free-form query refers to: explicit
// crypto pairs first, then company names, then standalone tickers. At most
// maxSymbolsPerQuery symbols are returned, in discovery order.
func ExtractSymbols(query string) []string {
	upper := strings.ToUpper(query)
	var symbols []string
	add := func(s string) {
		for _, existing := range symbols {
			if existing == s {
				return
			}
		}
		symbols = append(symbols, s)
	}

	for _, m := range cryptoPairRe.FindAllStringSubmatch(upper, -1) {
		add(m[1] + "/" + m[2])
	}

	for _, cn := range companyNames {
		if cn.wordMatch {
			if matchWord(upper, cn.term) {
				add(cn.ticker)
			}
		} else if strings.Contains(upper, cn.term) {
			add(cn.ticker)
		}
	}

	for _, m := range tickerRe.FindAllStringSubmatch(upper, -1) {
		token := m[1]
		if _, skip := commonWords[token]; skip {
			continue
		}
		if _, ok := stockTickers[token]; ok {
			add(token)
		} else if full, ok := euStockTickers[token]; ok {
			add(full)
		} else if full, ok := cryptoTickers[token]; ok {
			add(full)
		}
	}

	if len(symbols) > maxSymbolsPerQuery {
		symbols = symbols[:maxSymbolsPerQuery]
	}
	return symbols
}

func matchWord(haystack, word string) bool {
	re, ok := wordRes[word]
	if !ok {
		return strings.Contains(haystack, word)
	}
	return re.MatchString(haystack)
}

// wordRes precompiles the word-boundary matchers for single-word company names.
var wordRes = func() map[string]*regexp.Regexp {
	out := make(map[string]*regexp.Regexp)
	for _, cn := range companyNames {
		if cn.wordMatch {
			out[cn.term] = regexp.MustCompile(`\b` + regexp.QuoteMeta(cn.term) + `\b`)
		}
	}
	return out
}()

// IsCrypto reports whether a resolved symbol names a crypto pair.
func IsCrypto(symbol string) bool {
	return strings.Contains(symbol, "/")
}

// cryptoMarkets lists the venues a bare crypto ticker may trade on. A query
// naming the ticker without an explicit pair is ambiguous between them.
var cryptoMarkets = map[string][]string{
	"BTC":  {"BTC/USDT", "BTC/USD"},
	"ETH":  {"ETH/USDT", "ETH/USD"},
	"SOL":  {"SOL/USDT", "SOL/USD"},
	"XRP":  {"XRP/USDT", "XRP/USD"},
	"ADA":  {"ADA/USDT", "ADA/USD"},
	"DOGE": {"DOGE/USDT", "DOGE/USD"},
	"LTC":  {"LTC/USDT", "LTC/USD"},
	"DOT":  {"DOT/USDT", "DOT/USD"},
	"AVAX": {"AVAX/USDT", "AVAX/USD"},
	"LINK": {"LINK/USDT", "LINK/USD"},
}

// MarketCandidates returns the candidate markets for a bare crypto ticker in
// the query, or nil when the query is unambiguous (explicit pair, full name,
// or no crypto ticker at all).
func MarketCandidates(query string) []string {
	upper := strings.ToUpper(query)
	if cryptoPairRe.MatchString(upper) {
		return nil
	}
	for _, cn := range companyNames {
		if IsCrypto(cn.ticker) && matchWord(upper, cn.term) {
			// A full name resolves to its default pair.
			return nil
		}
	}
	for _, m := range tickerRe.FindAllStringSubmatch(upper, -1) {
		if _, skip := commonWords[m[1]]; skip {
			continue
		}
		if markets, ok := cryptoMarkets[m[1]]; ok {
			return markets
		}
	}
	return nil
}
