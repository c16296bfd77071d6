package parser

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var (
	merchantSuffixRE = regexp.MustCompile(`\b(inc|llc|ltd|limited|corp|corporation|co|gmbh|plc|sarl|bv|pty)\b\.?`)
	nonAlnumRE       = regexp.MustCompile(`[^a-z0-9 ]+`)
	multiSpaceRE     = regexp.MustCompile(`\s+`)
)

// NormalizeMerchant lowercases a merchant name, folds it to ASCII and strips
// punctuation and corporate suffixes. "Amazon.com, Inc." becomes "amazon com".
func NormalizeMerchant(name string) string {
	var sb strings.Builder
	for _, r := range norm.NFKD.String(name) {
		if r > unicode.MaxASCII {
			continue
		}
		sb.WriteRune(unicode.ToLower(r))
	}
	s := nonAlnumRE.ReplaceAllString(sb.String(), " ")
	s = merchantSuffixRE.ReplaceAllString(s, " ")
	return strings.TrimSpace(multiSpaceRE.ReplaceAllString(s, " "))
}

var invalidMerchants = map[string]bool{
	"customer":      true,
	"customers":     true,
	"receipt":       true,
	"order":         true,
	"your order":    true,
	"your":          true,
	"you":           true,
	"us":            true,
	"thank you":     true,
	"thanks":        true,
	"noreply":       true,
	"no reply":      true,
	"do not reply":  true,
	"info":          true,
	"support":       true,
	"team":          true,
	"store":         true,
	"shop":          true,
	"payment":       true,
	"billing":       true,
	"notifications": true,
	"orders":        true,
	"sales":         true,
}

// IsValidMerchant rejects strings that are clearly not a merchant name: generic words,
// email addresses, bare numbers and over-long fragments.
func IsValidMerchant(name string) bool {
	name = strings.TrimSpace(name)
	if len(name) < 2 || len(name) > 60 {
		return false
	}
	if strings.Contains(name, "@") || strings.Contains(name, "://") {
		return false
	}
	hasLetter := false
	for _, r := range name {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		return false
	}
	normalized := NormalizeMerchant(name)
	if normalized == "" || invalidMerchants[normalized] {
		return false
	}
	return len(strings.Fields(name)) <= 6
}

// domainDisplayNames maps sender domains to merchant display names.
var domainDisplayNames = map[string]string{
	"amazon.com":           "Amazon",
	"apple.com":            "Apple",
	"uber.com":             "Uber",
	"paypal.com":           "PayPal",
	"starbucks.com":        "Starbucks",
	"doordash.com":         "DoorDash",
	"grubhub.com":          "Grubhub",
	"instacart.com":        "Instacart",
	"lyft.com":             "Lyft",
	"target.com":           "Target",
	"walmart.com":          "Walmart",
	"costco.com":           "Costco",
	"bestbuy.com":          "Best Buy",
	"homedepot.com":        "The Home Depot",
	"lowes.com":            "Lowe's",
	"ebay.com":             "eBay",
	"etsy.com":             "Etsy",
	"netflix.com":          "Netflix",
	"spotify.com":          "Spotify",
	"steampowered.com":     "Steam",
	"google.com":           "Google",
	"microsoft.com":        "Microsoft",
	"airbnb.com":           "Airbnb",
	"booking.com":          "Booking.com",
	"chewy.com":            "Chewy",
	"wayfair.com":          "Wayfair",
	"squareup.com":         "Square",
	"shopify.com":          "Shopify",
	"stripe.com":           "Stripe",
	"venmo.com":            "Venmo",
	"hulu.com":             "Hulu",
	"disneyplus.com":       "Disney+",
	"playstation.com":      "PlayStation",
	"nintendo.com":         "Nintendo",
	"digitalocean.com":     "DigitalOcean",
	"github.com":           "GitHub",
	"zappos.com":           "Zappos",
	"nordstrom.com":        "Nordstrom",
	"rei.com":              "REI",
	"wholefoodsmarket.com": "Whole Foods Market",
}

// DisplayNameForDomain resolves a sender domain, or any parent of it, to a merchant name.
func DisplayNameForDomain(domain string) (string, bool) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	for domain != "" {
		if name, ok := domainDisplayNames[domain]; ok {
			return name, true
		}
		i := strings.Index(domain, ".")
		if i < 0 {
			break
		}
		domain = domain[i+1:]
	}
	return "", false
}
