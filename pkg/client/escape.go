package client

import (
	"net/url"
	"strings"
)

// escapeURL percent-encodes each key and value of the query part of raw.
// The query encoder emits reserved characters (space, quote, parentheses)
// verbatim, so they are escaped here before the request goes on the wire.
// Pairs are split on '&' and the first '='; values containing '&' are not
// representable.
func escapeURL(raw string) string {
	base, rawQuery, ok := strings.Cut(raw, "?")
	if !ok || rawQuery == "" {
		return raw
	}

	pairs := strings.Split(rawQuery, "&")
	for i, pair := range pairs {
		key, value, hasValue := strings.Cut(pair, "=")
		if hasValue {
			pairs[i] = escapeComponent(key) + "=" + escapeComponent(value)
		} else {
			pairs[i] = escapeComponent(key)
		}
	}

	return base + "?" + strings.Join(pairs, "&")
}

func escapeComponent(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
