package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Key builds a deterministic cache key from the request path, the resolved
// date and the query parameters sorted by name.
func Key(path, date string, query url.Values) string {
	names := make([]string, 0, len(query))
	for name := range query {
		if name == "date" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		values := append([]string(nil), query[name]...)
		sort.Strings(values)
		for _, value := range values {
			parts = append(parts, name+"="+strings.TrimSpace(value))
		}
	}
	return path + "|" + date + "|" + strings.Join(parts, "&")
}
