package imaging

import (
	"net/url"
	"strings"
)

// URLPaths recovers storage paths from download URLs for one namespace.
//
// Bucket names the object store bucket. Path-style S3 URLs carry it as a
// leading path segment, which is skipped so that a bucket sharing the
// namespace name is not mistaken for the namespace.
type URLPaths struct {
	namespace string
	ns        []string
	bucket    string
}

// NewURLPaths returns an extractor for namespace. bucket may be empty when
// URLs never carry it in the path.
func NewURLPaths(namespace, bucket string) URLPaths {
	return URLPaths{
		namespace: strings.Trim(namespace, "/"),
		ns:        splitSegments(strings.ToLower(namespace)),
		bucket:    strings.ToLower(strings.Trim(bucket, "/")),
	}
}

// Namespace returns the namespace the extractor searches for.
func (p URLPaths) Namespace() string {
	return p.namespace
}

// Extract parses and percent-decodes rawURL, then returns
// "<namespace>/<rest>" lowercased.
//
// For Firebase-style URLs only the part after the "/o/" segment is searched.
// For path-style URLs a bucket segment directly followed by the namespace is
// skipped, unless the bucket is already in the host (virtual-hosted style).
// ok is false when the URL is empty, malformed, lacks the namespace or has
// nothing after it.
func (p URLPaths) Extract(rawURL string) (string, bool) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" || len(p.ns) == 0 {
		return "", false
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}

	// u.Path is already decoded; an escaped "/" becomes a separator.
	segments := splitSegments(strings.ToLower(u.Path))
	if i := indexSegment(segments, "o"); i >= 0 && indexRun(segments[i+1:], p.ns) >= 0 {
		segments = segments[i+1:]
	} else if p.bucket != "" && !strings.HasPrefix(strings.ToLower(u.Hostname()), p.bucket+".") {
		if i := p.bucketSegment(segments); i >= 0 {
			segments = segments[i+1:]
		}
	}

	start := indexRun(segments, p.ns)
	if start < 0 || start+len(p.ns) >= len(segments) {
		return "", false
	}
	return strings.Join(segments[start:], "/"), true
}

// bucketSegment returns the index of the first bucket segment that is
// immediately followed by the namespace, or -1.
func (p URLPaths) bucketSegment(segments []string) int {
	for i, s := range segments {
		if s == p.bucket && indexRun(segments[i+1:], p.ns) == 0 {
			return i
		}
	}
	return -1
}

// ExtractPath recovers the storage path embedded in a download URL when the
// bucket is not known. See URLPaths.Extract.
func ExtractPath(rawURL, namespace string) (string, bool) {
	return NewURLPaths(namespace, "").Extract(rawURL)
}

// MatchName returns the record name an object path claims: the path without
// the namespace prefix and without a trailing ".png" (case-insensitive).
func MatchName(objectPath, namespace string) string {
	name := strings.Trim(objectPath, "/")
	prefix := strings.Trim(namespace, "/") + "/"
	if prefix != "/" && len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix) {
		name = name[len(prefix):]
	}
	if len(name) >= 4 && strings.EqualFold(name[len(name)-4:], ".png") {
		name = name[:len(name)-4]
	}
	return name
}

// ObjectKey lowercases a storage path for comparison with extracted paths.
func ObjectKey(path string) string {
	return strings.Join(splitSegments(strings.ToLower(path)), "/")
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func indexSegment(segments []string, want string) int {
	for i, s := range segments {
		if s == want {
			return i
		}
	}
	return -1
}

func indexRun(segments, run []string) int {
outer:
	for i := 0; i+len(run) <= len(segments); i++ {
		for j, s := range run {
			if segments[i+j] != s {
				continue outer
			}
		}
		return i
	}
	return -1
}
