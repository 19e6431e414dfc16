package fetch

import (
	"net/url"
	"strings"
)

// Resource identifies a remote JSON payload. Its Key is also the cache key.
type Resource struct {
	URL   string
	Query url.Values
}

func NewResource(base string, path string, query url.Values) Resource {
	return Resource{
		URL:   strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/"),
		Query: query,
	}
}

// Key is the URL plus the query encoded in sorted key order, so logically
// equal resources share a cache entry.
func (r Resource) Key() string {
	if len(r.Query) == 0 {
		return r.URL
	}
	q := url.Values{}
	for k, vs := range r.Query {
		for _, v := range vs {
			if v != "" {
				q.Add(k, v)
			}
		}
	}
	if len(q) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + q.Encode()
}

func (r Resource) String() string { return r.Key() }
