// Package fare pulls a best-effort minimum price out of provider fare
// pages. The underlying markup is not contractually stable, so this is a
// chain of independent strategies tried in order, first success wins,
// and "no price found" is a normal outcome rather than an error.
package fare

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Result is the outcome of one extraction attempt. When Blocked is set
// the page matched an anti-bot marker and no price was attempted, since
// any numbers found on a challenge page would be unreliable.
type Result struct {
	Blocked  bool
	OK       bool
	Currency string
	Value    float64
	Note     string
}

// blockedMarkers are fragments that identify bot-challenge and
// access-denied interstitials.
var blockedMarkers = []string{
	"captcha",
	"datadome",
	"akamai",
	"cloudflare",
	"access denied",
	"security check",
	"are you a robot",
	"verify you are human",
}

// Keys whose numeric values are price candidates inside embedded JSON
// state blobs.
var priceKeys = map[string]struct{}{
	"price":       {},
	"amount":      {},
	"lowestprice": {},
	"minprice":    {},
	"fromprice":   {},
}

// symbolCurrencies maps display symbols to ISO codes. Order matters:
// longer symbols first so "US$" wins over a bare "$".
var symbolCurrencies = []struct {
	Symbol string
	Code   string
}{
	{"US$", "USD"},
	{"S$", "SGD"},
	{"HK$", "HKD"},
	{"NT$", "TWD"},
	{"RM", "MYR"},
	{"Rp", "IDR"},
	{"฿", "THB"},
	{"₱", "PHP"},
	{"₫", "VND"},
	{"¥", "JPY"},
	{"€", "EUR"},
	{"£", "GBP"},
}

var (
	jsonPricePattern = regexp.MustCompile(`"(?:price|amount|lowestPrice|minPrice|fromPrice)"\s*:\s*"?([0-9]+(?:\.[0-9]+)?)"?`)
	jsonCurrencyRe   = regexp.MustCompile(`"currency(?:Code)?"\s*:\s*"([A-Z]{3})"`)
	codeAmountRe     = regexp.MustCompile(`\b([A-Z]{3})\s*([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]+)?)\b`)
	bareDollarRe     = regexp.MustCompile(`\$\s*([0-9]{1,3}(?:,[0-9]{3})*(?:\.[0-9]+)?)`)
	amountGroupRe    = `\s*([0-9][0-9,]*(?:\.[0-9]+)?)`
)

// Extract runs the strategy chain over a captured fare page:
//
//  1. bot-challenge short circuit
//  2. embedded JSON state blobs (minimum positive price-key candidate)
//  3. "from <symbol><amount>" in the page title
//  4. bare ISO-code-plus-number anywhere
//  5. symbol-plus-number anywhere (an ambiguous "$" yields a value with
//     no currency)
func Extract(html []byte) Result {
	text := string(html)
	lower := strings.ToLower(text)

	for _, marker := range blockedMarkers {
		if strings.Contains(lower, marker) {
			return Result{Blocked: true, Note: "blocked:" + marker}
		}
	}

	doc, docErr := goquery.NewDocumentFromReader(bytes.NewReader(html))

	if result, ok := fromJSONState(doc, text); ok {
		return result
	}
	if doc != nil && docErr == nil {
		if result, ok := fromTitle(doc.Find("title").First().Text()); ok {
			return result
		}
	}
	if result, ok := fromCodeAmount(text); ok {
		return result
	}
	if result, ok := fromSymbolAmount(text); ok {
		return result
	}

	return Result{Note: "no_price_found"}
}

// fromJSONState searches embedded script blocks for JSON state and walks
// it for price-ish numeric fields and a currency sibling. Script blocks
// that are not valid standalone JSON fall back to regex scanning of the
// raw page, which catches blobs wrapped in assignments.
func fromJSONState(doc *goquery.Document, text string) (Result, bool) {
	var prices []float64
	currency := ""

	if doc != nil {
		doc.Find("script").Each(func(_ int, script *goquery.Selection) {
			raw := strings.TrimSpace(script.Text())
			if raw == "" || (!strings.HasPrefix(raw, "{") && !strings.HasPrefix(raw, "[")) {
				return
			}
			var state any
			if err := json.Unmarshal([]byte(raw), &state); err != nil {
				return
			}
			walkState(state, &prices, &currency)
		})
	}

	if len(prices) == 0 {
		for _, match := range jsonPricePattern.FindAllStringSubmatch(text, -1) {
			if v, err := strconv.ParseFloat(match[1], 64); err == nil && v > 0 {
				prices = append(prices, v)
			}
		}
	}
	if currency == "" {
		if match := jsonCurrencyRe.FindStringSubmatch(text); match != nil {
			currency = match[1]
		}
	}

	if len(prices) == 0 {
		return Result{}, false
	}

	best := prices[0]
	for _, v := range prices[1:] {
		if v < best {
			best = v
		}
	}
	return Result{OK: true, Currency: currency, Value: best, Note: "json_state"}, true
}

// walkState recursively collects positive numbers under price-ish keys
// and the first ISO currency string.
func walkState(value any, prices *[]float64, currency *string) {
	switch v := value.(type) {
	case map[string]any:
		for key, child := range v {
			lk := strings.ToLower(key)
			switch c := child.(type) {
			case float64:
				if _, ok := priceKeys[lk]; ok && c > 0 {
					*prices = append(*prices, c)
				}
			case string:
				if (lk == "currency" || lk == "currencycode") && *currency == "" && isISOCurrency(c) {
					*currency = c
				}
			}
			walkState(child, prices, currency)
		}
	case []any:
		for _, child := range v {
			walkState(child, prices, currency)
		}
	}
}

func isISOCurrency(s string) bool {
	if len(s) != 3 {
		return false
	}
	for _, r := range s {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// fromTitle matches "from US$77" style teaser prices in the page title.
func fromTitle(title string) (Result, bool) {
	title = strings.TrimSpace(title)
	if title == "" {
		return Result{}, false
	}
	for _, sc := range symbolCurrencies {
		re := regexp.MustCompile(`(?i)\bfrom\s+` + regexp.QuoteMeta(sc.Symbol) + amountGroupRe)
		if match := re.FindStringSubmatch(title); match != nil {
			if v, ok := parseAmount(match[1]); ok {
				return Result{OK: true, Currency: sc.Code, Value: v, Note: "title_from_price"}, true
			}
		}
	}
	return Result{}, false
}

// fromCodeAmount matches explicit three-letter currency codes followed by
// a number, e.g. "SGD 123".
func fromCodeAmount(text string) (Result, bool) {
	if match := codeAmountRe.FindStringSubmatch(text); match != nil {
		if v, ok := parseAmount(match[2]); ok {
			return Result{OK: true, Currency: match[1], Value: v, Note: "currency_code"}, true
		}
	}
	return Result{}, false
}

// fromSymbolAmount matches currency symbols anywhere in the page. A bare
// dollar sign is ambiguous across USD/SGD/HKD and yields no currency.
func fromSymbolAmount(text string) (Result, bool) {
	for _, sc := range symbolCurrencies {
		re := regexp.MustCompile(regexp.QuoteMeta(sc.Symbol) + amountGroupRe)
		if match := re.FindStringSubmatch(text); match != nil {
			if v, ok := parseAmount(match[1]); ok {
				return Result{OK: true, Currency: sc.Code, Value: v, Note: "currency_symbol"}, true
			}
		}
	}
	if match := bareDollarRe.FindStringSubmatch(text); match != nil {
		if v, ok := parseAmount(match[1]); ok {
			return Result{OK: true, Value: v, Note: "ambiguous_dollar"}, true
		}
	}
	return Result{}, false
}

func parseAmount(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil && v > 0
}
