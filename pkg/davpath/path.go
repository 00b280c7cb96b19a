// Package davpath implements the normalized path model used to address
// nodes in the WebDAV namespace.
//
// A Path is constructed once per request from the raw request target and
// is immutable afterwards, with one exception: AddSlash may toggle the
// collection marker after a successful collection-creating operation so
// that response headers render with the protocol-correct trailing slash.
package davpath

import (
	"errors"
	"net/url"
	"strings"
)

// ErrMalformedPath is returned for request targets that cannot be turned
// into a normalized path: bad percent-encoding, embedded NUL bytes, or
// dot-dot sequences that escape the namespace root.
//
// Protocol handlers map this to 400 Bad Request before touching storage.
var ErrMalformedPath = errors.New("malformed path")

// Path is a normalized, percent-decoded path inside the DAV namespace.
//
// Invariants:
//   - segments contains no empty entries ("" is represented by an empty
//     slice, i.e. the root collection)
//   - percent-decoding has been applied exactly once, at parse time
//   - collection records trailing-slash intent from the request target;
//     a path rendered as a URL carries a trailing slash iff collection
//     is set
type Path struct {
	segments   []string
	collection bool
	prefix     string
}

// Parse normalizes a raw request target into a Path.
//
// Normalization collapses duplicate separators and "." segments, resolves
// ".." against preceding segments, and percent-decodes each segment once.
// A ".." that would climb above the root makes the whole target malformed
// rather than silently clamping to the root.
//
// The query string, if any, is ignored: WebDAV methods address resources
// by path only.
func Parse(rawTarget string) (*Path, error) {
	return ParseWithPrefix(rawTarget, "")
}

// ParseWithPrefix parses a raw request target that is expected to start
// with the given routing prefix (e.g. "/dav"). The prefix is stripped
// before normalization and re-applied by URL(). A target outside the
// prefix is malformed.
func ParseWithPrefix(rawTarget, prefix string) (*Path, error) {
	if i := strings.IndexByte(rawTarget, '?'); i >= 0 {
		rawTarget = rawTarget[:i]
	}
	if rawTarget == "" || rawTarget[0] != '/' {
		return nil, ErrMalformedPath
	}
	if prefix != "" {
		trimmed := strings.TrimSuffix(prefix, "/")
		if !strings.HasPrefix(rawTarget, trimmed) {
			return nil, ErrMalformedPath
		}
		rawTarget = rawTarget[len(trimmed):]
		if rawTarget == "" {
			rawTarget = "/"
		}
		if rawTarget[0] != '/' {
			return nil, ErrMalformedPath
		}
		prefix = trimmed
	}

	collection := strings.HasSuffix(rawTarget, "/")

	var segments []string
	for _, raw := range strings.Split(rawTarget, "/") {
		switch raw {
		case "", ".":
			// duplicate separator or current-dir marker: skip
			continue
		case "..":
			if len(segments) == 0 {
				return nil, ErrMalformedPath
			}
			segments = segments[:len(segments)-1]
		default:
			seg, err := url.PathUnescape(raw)
			if err != nil {
				return nil, ErrMalformedPath
			}
			if strings.ContainsAny(seg, "/\x00") {
				return nil, ErrMalformedPath
			}
			segments = append(segments, seg)
		}
	}

	if len(segments) == 0 {
		// the root is always a collection
		collection = true
	}

	return &Path{segments: segments, collection: collection, prefix: prefix}, nil
}

// IsCollection reports whether the request addressed this path as a
// collection (trailing separator, or the namespace root).
func (p *Path) IsCollection() bool {
	return p.collection
}

// IsRoot reports whether this is the namespace root.
func (p *Path) IsRoot() bool {
	return len(p.segments) == 0
}

// AddSlash forces the collection marker. Used after a successful MKCOL so
// the Content-Location header is rendered with a trailing slash even when
// the client omitted it.
func (p *Path) AddSlash() {
	p.collection = true
}

// Segments returns the normalized, decoded path segments. The returned
// slice must not be mutated.
func (p *Path) Segments() []string {
	return p.segments
}

// Name returns the final path segment, or "" for the root.
func (p *Path) Name() string {
	if len(p.segments) == 0 {
		return ""
	}
	return p.segments[len(p.segments)-1]
}

// Parent returns the parent collection of this path. The parent of the
// root is the root itself.
func (p *Path) Parent() *Path {
	if len(p.segments) == 0 {
		return &Path{collection: true, prefix: p.prefix}
	}
	parent := &Path{
		segments:   p.segments[:len(p.segments)-1],
		collection: true,
		prefix:     p.prefix,
	}
	return parent
}

// Child returns the path of a direct child of this collection. The name
// must be a single decoded segment.
func (p *Path) Child(name string, collection bool) *Path {
	segs := make([]string, len(p.segments)+1)
	copy(segs, p.segments)
	segs[len(p.segments)] = name
	return &Path{segments: segs, collection: collection, prefix: p.prefix}
}

// IsAncestorOf reports whether p is a strict ancestor of other.
func (p *Path) IsAncestorOf(other *Path) bool {
	if len(p.segments) >= len(other.segments) {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// Equal reports whether two paths address the same node. Collection
// intent is ignored: "/a" and "/a/" are the same node.
func (p *Path) Equal(other *Path) bool {
	if len(p.segments) != len(other.segments) {
		return false
	}
	for i, seg := range p.segments {
		if other.segments[i] != seg {
			return false
		}
	}
	return true
}

// String renders the decoded path without the routing prefix. The root
// renders as "/". A collection path carries a trailing slash.
func (p *Path) String() string {
	if len(p.segments) == 0 {
		return "/"
	}
	s := "/" + strings.Join(p.segments, "/")
	if p.collection {
		s += "/"
	}
	return s
}

// URL renders the path as a percent-encoded request target, including the
// routing prefix. Round-trip property: ParseWithPrefix(p.URL(), prefix)
// yields a path equal to p, with collection intent preserved.
func (p *Path) URL() string {
	if len(p.segments) == 0 {
		return p.prefix + "/"
	}
	var b strings.Builder
	b.WriteString(p.prefix)
	for _, seg := range p.segments {
		b.WriteByte('/')
		b.WriteString(EscapeSegment(seg))
	}
	if p.collection {
		b.WriteByte('/')
	}
	return b.String()
}

// EscapeSegment percent-encodes one path segment. url.PathEscape keeps
// sub-delims that are legal inside a segment but always encodes "/".
func EscapeSegment(seg string) string {
	return url.PathEscape(seg)
}
