package attribution

import (
	"net/url"
	"strings"
)

// Channel labels
const (
	ChannelPaid           = "paid"
	ChannelEmail          = "email"
	ChannelPaidSocial     = "paid_social"
	ChannelOrganicSearch  = "organic_search"
	ChannelReferralSearch = "referral_search"
	ChannelReferral       = "referral"
	ChannelDirect         = "direct"
)

var searchEngines = []string{
	"google",
	"bing",
	"yahoo",
	"duckduckgo",
	"baidu",
	"yandex",
	"ecosia",
}

var socialPlatforms = []string{
	"facebook",
	"instagram",
	"twitter",
	"tiktok",
	"pinterest",
	"linkedin",
	"snapchat",
	"youtube",
	"reddit",
}

// InferChannel derives a normalized channel label from UTM and referrer
// data. It is pure and total: identical inputs always yield identical
// output, no I/O, no panics. The result is stored as a snapshot in
// attribution events and never recomputed retroactively, so the
// precedence order below must stay stable.
func InferChannel(utmSource, utmMedium, referrer, sourceName string) string {
	source := strings.ToLower(strings.TrimSpace(utmSource))
	medium := strings.ToLower(strings.TrimSpace(utmMedium))
	referrer = strings.TrimSpace(referrer)

	// 1. Paid medium markers win over everything else.
	if strings.Contains(medium, "cpc") || strings.Contains(medium, "paid") || strings.Contains(medium, "ppc") {
		return ChannelPaid
	}

	// 2. Email medium.
	if strings.Contains(medium, "email") {
		return ChannelEmail
	}

	// 3. Social medium or a known social platform source.
	if strings.Contains(medium, "social") || matchesAny(source, socialPlatforms) {
		return ChannelPaidSocial
	}

	// 4. Known search engine source with organic medium.
	if matchesAny(source, searchEngines) && medium == "organic" {
		return ChannelOrganicSearch
	}

	// 5/6. Referrer-based classification.
	if referrer != "" {
		host := referrerHost(referrer)
		if matchesAny(host, searchEngines) {
			return ChannelReferralSearch
		}
		return ChannelReferral
	}

	// 7. Upstream-provided source name taken literally.
	if name := strings.TrimSpace(sourceName); name != "" {
		return name
	}

	// 8. Nothing to go on.
	return ChannelDirect
}

func matchesAny(value string, names []string) bool {
	if value == "" {
		return false
	}
	for _, name := range names {
		if strings.Contains(value, name) {
			return true
		}
	}
	return false
}

// referrerHost extracts a lowercase host from a referrer value that may
// or may not carry a scheme. Unparseable values fall back to the raw
// string so classification stays total.
func referrerHost(referrer string) string {
	raw := referrer
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return strings.ToLower(referrer)
	}
	host := strings.ToLower(parsed.Hostname())
	return strings.TrimPrefix(host, "www.")
}
