package minecraft

import (
	"regexp"
	"strings"
)

var (
	listSep      = regexp.MustCompile(`,\s+`)
	whitelistSep = regexp.MustCompile(`,?\s+`)
)

// ParseListing extracts the comma separated names that follow the first colon of a query reply.
//
//	"There are 2 of a max of 20 players online: Alice, Bob"  → ["Alice" "Bob"]
//	"There are 0 of a max of 20 players online: "            → []
//	"There are no banned players"                            → []
//
// A reply without a colon is a sentence rather than a listing, so it yields an empty slice. The
// result is never nil.
func ParseListing(reply string) []string {
	return parse(reply, listSep)
}

// ParseWhitelist is [ParseListing] for "whitelist list" replies, whose names may be separated by
// whitespace alone.
func ParseWhitelist(reply string) []string {
	return parse(reply, whitelistSep)
}

func parse(reply string, sep *regexp.Regexp) []string {
	_, after, ok := strings.Cut(reply, ":")
	if !ok {
		return []string{}
	}
	after = strings.TrimSpace(after)
	if after == "" {
		return []string{}
	}
	return sep.Split(after, -1)
}
