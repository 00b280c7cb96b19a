package dav

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

func header(key, value string) http.Header {
	h := http.Header{}
	h.Set(key, value)
	return h
}

func TestParseIfHeader(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    ConditionSet
		wantErr bool
	}{
		{
			name: "single token",
			raw:  "(<opaquelocktoken:a>)",
			want: ConditionSet{{Conditions: []Condition{{Token: "opaquelocktoken:a"}}}},
		},
		{
			name: "negated token",
			raw:  "(Not <opaquelocktoken:a>)",
			want: ConditionSet{{Conditions: []Condition{{Not: true, Token: "opaquelocktoken:a"}}}},
		},
		{
			name: "token and etag conjunction",
			raw:  `(<opaquelocktoken:a> ["etag-1"])`,
			want: ConditionSet{{Conditions: []Condition{
				{Token: "opaquelocktoken:a"},
				{ETag: `"etag-1"`},
			}}},
		},
		{
			name: "two lists are a disjunction",
			raw:  `(<opaquelocktoken:a>) (["etag-1"])`,
			want: ConditionSet{
				{Conditions: []Condition{{Token: "opaquelocktoken:a"}}},
				{Conditions: []Condition{{ETag: `"etag-1"`}}},
			},
		},
		{
			name: "tagged list",
			raw:  "<http://host/file> (<opaquelocktoken:a>)",
			want: ConditionSet{{
				ResourceTag: "http://host/file",
				Conditions:  []Condition{{Token: "opaquelocktoken:a"}},
			}},
		},
		{
			name: "tag scopes following lists until the next tag",
			raw:  "</a> (<opaquelocktoken:a>) </b> (<opaquelocktoken:b>)",
			want: ConditionSet{
				{ResourceTag: "/a", Conditions: []Condition{{Token: "opaquelocktoken:a"}}},
				{ResourceTag: "/b", Conditions: []Condition{{Token: "opaquelocktoken:b"}}},
			},
		},
		{name: "empty list", raw: "()", wantErr: true},
		{name: "unterminated list", raw: "(<opaquelocktoken:a>", wantErr: true},
		{name: "unterminated token", raw: "(<opaquelocktoken:a)", wantErr: true},
		{name: "bare garbage", raw: "nonsense", wantErr: true},
		{name: "tag without list", raw: "</a>", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIfHeader(header("If", tt.raw))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrBadHeader)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseIfHeaderAbsent(t *testing.T) {
	set, err := ParseIfHeader(http.Header{})
	require.NoError(t, err)
	assert.Nil(t, set)

	tokens, ok := set.Evaluate(nil, nil, "", nil, nil)
	assert.True(t, ok, "absent header never blocks")
	assert.Empty(t, tokens)
}

func TestConditionSetTokens(t *testing.T) {
	set, err := ParseIfHeader(header("If",
		`(<opaquelocktoken:a> Not <opaquelocktoken:b>) (["x"] <opaquelocktoken:a>)`))
	require.NoError(t, err)

	// every submitted token, deduplicated, regardless of which list wins
	assert.Equal(t, []string{"opaquelocktoken:a", "opaquelocktoken:b"}, set.Tokens())
}

func testMeta() *storage.Metadata {
	return &storage.Metadata{Size: 4, ModTime: time.Unix(1700000000, 0)}
}

func TestEvaluateETagCondition(t *testing.T) {
	p, err := davpath.Parse("/doc.txt")
	require.NoError(t, err)
	meta := testMeta()

	set, err := ParseIfHeader(header("If", `(["`+meta.ETag()+`"])`))
	require.NoError(t, err)
	_, ok := set.Evaluate(p, meta, "", nil, nil)
	assert.True(t, ok)

	set, err = ParseIfHeader(header("If", `(["wrong"])`))
	require.NoError(t, err)
	_, ok = set.Evaluate(p, meta, "", nil, nil)
	assert.False(t, ok)

	// a positive etag assertion against a missing resource fails
	_, ok = set.Evaluate(p, nil, "", nil, nil)
	assert.False(t, ok)

	// ...and its negation holds
	set, err = ParseIfHeader(header("If", `(Not ["wrong"])`))
	require.NoError(t, err)
	_, ok = set.Evaluate(p, nil, "", nil, nil)
	assert.True(t, ok)
}

func TestEvaluateTokenCondition(t *testing.T) {
	p, err := davpath.Parse("/doc.txt")
	require.NoError(t, err)
	valid := func(path *davpath.Path, token string) bool {
		return token == "opaquelocktoken:live" && path.Equal(p)
	}

	set, err := ParseIfHeader(header("If", "(<opaquelocktoken:live>)"))
	require.NoError(t, err)
	tokens, ok := set.Evaluate(p, testMeta(), "", nil, valid)
	assert.True(t, ok)
	assert.Equal(t, []string{"opaquelocktoken:live"}, tokens)

	set, err = ParseIfHeader(header("If", "(<opaquelocktoken:stale>)"))
	require.NoError(t, err)
	tokens, ok = set.Evaluate(p, testMeta(), "", nil, valid)
	assert.False(t, ok)
	assert.Equal(t, []string{"opaquelocktoken:stale"}, tokens, "tokens are reported even when evaluation fails")
}

func TestEvaluateDisjunction(t *testing.T) {
	p, err := davpath.Parse("/doc.txt")
	require.NoError(t, err)

	// first list fails (bad etag), second list holds (valid token)
	set, err := ParseIfHeader(header("If", `(["wrong"]) (<opaquelocktoken:live>)`))
	require.NoError(t, err)
	valid := func(*davpath.Path, string) bool { return true }
	_, ok := set.Evaluate(p, testMeta(), "", nil, valid)
	assert.True(t, ok)
}

func TestEvaluateTaggedList(t *testing.T) {
	target, err := davpath.Parse("/a.txt")
	require.NoError(t, err)
	other, err := davpath.Parse("/b.txt")
	require.NoError(t, err)
	otherMeta := &storage.Metadata{Size: 9, ModTime: time.Unix(1700000100, 0)}

	fetch := func(p *davpath.Path) *storage.Metadata {
		if p.Equal(other) {
			return otherMeta
		}
		return nil
	}

	// the list is scoped to /b.txt, so its etag is checked there
	set, err := ParseIfHeader(header("If", `<http://host/b.txt> (["`+otherMeta.ETag()+`"])`))
	require.NoError(t, err)
	_, ok := set.Evaluate(target, nil, "", fetch, nil)
	assert.True(t, ok)

	set, err = ParseIfHeader(header("If", `<http://host/missing.txt> (["anything"])`))
	require.NoError(t, err)
	_, ok = set.Evaluate(target, nil, "", fetch, nil)
	assert.False(t, ok)
}

func TestEvaluateETagLists(t *testing.T) {
	meta := testMeta()
	etag := `"` + meta.ETag() + `"`

	tests := []struct {
		name   string
		key    string
		value  string
		method string
		meta   *storage.Metadata
		want   int
	}{
		{"if-match hit", "If-Match", etag, http.MethodPut, meta, 0},
		{"if-match star", "If-Match", "*", http.MethodPut, meta, 0},
		{"if-match miss", "If-Match", `"other"`, http.MethodPut, meta, http.StatusPreconditionFailed},
		{"if-match on missing resource", "If-Match", "*", http.MethodPut, nil, http.StatusPreconditionFailed},
		{"if-none-match get", "If-None-Match", etag, http.MethodGet, meta, http.StatusNotModified},
		{"if-none-match head", "If-None-Match", etag, http.MethodHead, meta, http.StatusNotModified},
		{"if-none-match put", "If-None-Match", etag, http.MethodPut, meta, http.StatusPreconditionFailed},
		{"if-none-match star missing", "If-None-Match", "*", http.MethodPut, nil, 0},
		{"if-none-match miss", "If-None-Match", `"other"`, http.MethodPut, meta, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateETagLists(header(tt.key, tt.value), tt.method, tt.meta)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEtagMatchTolerance(t *testing.T) {
	assert.True(t, etagMatch(`W/"abc"`, `"abc"`))
	assert.True(t, etagMatch(`abc`, `"abc"`))
	assert.False(t, etagMatch(`"abc"`, `"abd"`))
}
