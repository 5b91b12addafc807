package middleware

import (
	"net/http"
	"strings"
)

// BookmarkHeader carries causal-consistency bookmarks in both directions.
const BookmarkHeader = "X-Neo4j-Bookmark"

// RequestBookmarks collects bookmarks from every BookmarkHeader value;
// each value may hold a comma-separated list.
func RequestBookmarks(h http.Header) []string {
	var out []string
	seen := map[string]bool{}
	for _, value := range h.Values(BookmarkHeader) {
		for _, bookmark := range strings.Split(value, ",") {
			bookmark = strings.TrimSpace(bookmark)
			if bookmark == "" || seen[bookmark] {
				continue
			}
			seen[bookmark] = true
			out = append(out, bookmark)
		}
	}
	return out
}
