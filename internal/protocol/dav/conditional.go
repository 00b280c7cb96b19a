package dav

import (
	"net/http"
	"strings"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// Condition is one assertion inside a conjunction: either possession of a
// state (lock) token or an entity-tag match, optionally negated.
type Condition struct {
	Not   bool
	Token string
	ETag  string
}

// ConditionList is one conjunction of the If header, optionally scoped to
// a resource other than the request target (the bracketed-URL form).
type ConditionList struct {
	// ResourceTag is the raw Coded-URL the list is scoped to; empty for
	// untagged lists, which apply to the request target
	ResourceTag string

	Conditions []Condition
}

// ConditionSet is the parsed If header: a disjunction of conjunctions.
// The request may proceed when any single list is fully satisfied.
type ConditionSet []ConditionList

// MetadataFetcher resolves current metadata for a path; nil means the
// resource does not exist. The evaluator uses it for lists tagged with a
// URL other than the request target.
type MetadataFetcher func(path *davpath.Path) *storage.Metadata

// TokenValidator confirms a presented token is a live lease bound to the
// path in scope. Backed by the lock registry; a nil validator treats
// every token assertion as false.
type TokenValidator func(path *davpath.Path, token string) bool

// ParseIfHeader parses the If header into a ConditionSet. An absent
// header yields an empty set, which always evaluates to proceed.
//
// Grammar (RFC 4918 10.4):
//
//	If = ( 1*No-tag-list | 1*Tagged-list )
//	No-tag-list = List
//	Tagged-list = Resource-Tag 1*List
//	List = "(" 1*Condition ")"
//	Condition = ["Not"] ( Coded-URL | "[" entity-tag "]" )
func ParseIfHeader(h http.Header) (ConditionSet, error) {
	raw := strings.TrimSpace(h.Get("If"))
	if raw == "" {
		return nil, nil
	}

	var set ConditionSet
	var resourceTag string
	pos := 0

	skipSpace := func() {
		for pos < len(raw) && (raw[pos] == ' ' || raw[pos] == '\t') {
			pos++
		}
	}

	readUntil := func(end byte) (string, bool) {
		start := pos
		for pos < len(raw) {
			if raw[pos] == end {
				s := raw[start:pos]
				pos++
				return s, true
			}
			pos++
		}
		return "", false
	}

	for {
		skipSpace()
		if pos >= len(raw) {
			break
		}
		switch raw[pos] {
		case '<':
			// a Resource-Tag scopes every list up to the next tag
			pos++
			tag, ok := readUntil('>')
			if !ok {
				return nil, ErrBadHeader
			}
			resourceTag = tag
		case '(':
			pos++
			list := ConditionList{ResourceTag: resourceTag}
			for {
				skipSpace()
				if pos >= len(raw) {
					return nil, ErrBadHeader
				}
				if raw[pos] == ')' {
					pos++
					break
				}
				var cond Condition
				if strings.HasPrefix(raw[pos:], "Not") {
					cond.Not = true
					pos += len("Not")
					skipSpace()
					if pos >= len(raw) {
						return nil, ErrBadHeader
					}
				}
				switch raw[pos] {
				case '<':
					pos++
					token, ok := readUntil('>')
					if !ok {
						return nil, ErrBadHeader
					}
					cond.Token = token
				case '[':
					pos++
					etag, ok := readUntil(']')
					if !ok {
						return nil, ErrBadHeader
					}
					cond.ETag = etag
				default:
					return nil, ErrBadHeader
				}
				list.Conditions = append(list.Conditions, cond)
			}
			if len(list.Conditions) == 0 {
				return nil, ErrBadHeader
			}
			set = append(set, list)
		default:
			return nil, ErrBadHeader
		}
	}

	if len(set) == 0 {
		return nil, ErrBadHeader
	}
	return set, nil
}

// Tokens returns every state token submitted anywhere in the set. Per
// RFC 4918 10.4.1 a token named in the If header is submitted to the
// request as a whole, so the lock check receives all of them, not just
// the ones in the list that happened to match.
func (s ConditionSet) Tokens() []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, list := range s {
		for _, c := range list.Conditions {
			if c.Token != "" && !seen[c.Token] {
				seen[c.Token] = true
				tokens = append(tokens, c.Token)
			}
		}
	}
	return tokens
}

// etagMatch compares entity tags, tolerating weak markers and quoting
// differences between client and backend.
func etagMatch(a, b string) bool {
	trim := func(s string) string {
		s = strings.TrimPrefix(s, "W/")
		return strings.Trim(s, `"`)
	}
	return trim(a) == trim(b)
}

// resourcePath resolves a Resource-Tag Coded-URL to a namespace path.
func resourcePath(tag, prefix string) (*davpath.Path, error) {
	target := tag
	if i := strings.Index(tag, "://"); i >= 0 {
		rest := tag[i+len("://"):]
		if j := strings.IndexByte(rest, '/'); j >= 0 {
			target = rest[j:]
		} else {
			target = "/"
		}
	}
	return davpath.ParseWithPrefix(target, prefix)
}

// Evaluate decides whether the request may proceed.
//
// The set is a disjunction: the request proceeds if any one list holds in
// full against current state. ETag assertions check the freshly fetched
// metadata of the list's resource (absence of metadata fails every
// positive ETag assertion); token assertions ask the registry whether the
// token is live and bound to the resource in scope.
//
// Evaluate is pure apart from read-throughs to fetch and valid. It
// returns the submitted tokens either way, so a failed evaluation still
// lets the caller report which tokens were presented.
func (s ConditionSet) Evaluate(
	target *davpath.Path,
	meta *storage.Metadata,
	prefix string,
	fetch MetadataFetcher,
	valid TokenValidator,
) (tokens []string, ok bool) {
	tokens = s.Tokens()
	if len(s) == 0 {
		return tokens, true
	}

	for _, list := range s {
		scope := target
		scopeMeta := meta
		if list.ResourceTag != "" {
			p, err := resourcePath(list.ResourceTag, prefix)
			if err != nil {
				continue
			}
			scope = p
			if !scope.Equal(target) {
				if fetch == nil {
					continue
				}
				scopeMeta = fetch(scope)
			}
		}

		holds := true
		for _, c := range list.Conditions {
			var v bool
			switch {
			case c.Token != "":
				v = valid != nil && valid(scope, c.Token)
			case c.ETag != "":
				v = scopeMeta != nil && etagMatch(c.ETag, scopeMeta.ETag())
			}
			if c.Not {
				v = !v
			}
			if !v {
				holds = false
				break
			}
		}
		if holds {
			return tokens, true
		}
	}
	return tokens, false
}

// EvaluateETagLists applies If-Match / If-None-Match against current
// metadata. It returns 0 to proceed, or the blocking status code:
// 412 for a failed If-Match (or If-None-Match on a mutating method), and
// 304 for If-None-Match on GET/HEAD.
func EvaluateETagLists(h http.Header, method string, meta *storage.Metadata) int {
	if v := h.Get("If-Match"); v != "" {
		if meta == nil || !etagListMatch(v, meta.ETag()) {
			return http.StatusPreconditionFailed
		}
	}
	if v := h.Get("If-None-Match"); v != "" {
		matched := meta != nil && (v == "*" || etagListMatch(v, meta.ETag()))
		if matched {
			if method == http.MethodGet || method == http.MethodHead {
				return http.StatusNotModified
			}
			return http.StatusPreconditionFailed
		}
	}
	return 0
}

// etagListMatch reports whether the header value ("*" or a comma
// separated list of entity tags) matches the current tag.
func etagListMatch(list, current string) bool {
	if strings.TrimSpace(list) == "*" {
		return true
	}
	for _, tag := range strings.Split(list, ",") {
		if etagMatch(strings.TrimSpace(tag), current) {
			return true
		}
	}
	return false
}
