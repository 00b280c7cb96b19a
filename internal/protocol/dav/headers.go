// Package dav implements the core of the WebDAV protocol engine: request
// header grammars, the conditional evaluator, and the multi-status body
// model. The per-method dispatch lives in the handlers subpackage.
package dav

import (
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/davfs/pkg/davpath"
)

// ErrBadHeader is returned for unparseable protocol headers (If, Depth,
// Timeout, Destination, Overwrite). Handlers map it to 400 before any
// storage call.
var ErrBadHeader = errors.New("malformed header")

// Depth is the scope modifier of RFC 4918 10.2.
type Depth int

const (
	Depth0 Depth = iota
	Depth1
	DepthInfinity
)

// ParseDepth reads the Depth header. Absence defaults per method: PROPFIND
// and LOCK default to infinity, which is what def carries.
func ParseDepth(h http.Header, def Depth) (Depth, error) {
	v := strings.TrimSpace(h.Get("Depth"))
	switch strings.ToLower(v) {
	case "":
		return def, nil
	case "0":
		return Depth0, nil
	case "1":
		return Depth1, nil
	case "infinity":
		return DepthInfinity, nil
	default:
		return def, ErrBadHeader
	}
}

// DefaultLockTimeout caps and defaults lock lease requests. RFC 4918
// leaves the granted timeout entirely to the server.
const (
	DefaultLockTimeout = 2 * time.Minute
	MaxLockTimeout     = 10 * time.Minute
)

// ParseTimeout reads the Timeout header ("Second-n", "Infinite", or a
// comma-separated preference list; the first supported entry wins).
// Absent or unusable values fall back to the default lease.
func ParseTimeout(h http.Header) time.Duration {
	for _, part := range strings.Split(h.Get("Timeout"), ",") {
		part = strings.TrimSpace(part)
		if strings.EqualFold(part, "Infinite") {
			return MaxLockTimeout
		}
		if rest, ok := strings.CutPrefix(part, "Second-"); ok {
			secs, err := strconv.ParseUint(rest, 10, 32)
			if err != nil {
				continue
			}
			d := time.Duration(secs) * time.Second
			if d > MaxLockTimeout {
				return MaxLockTimeout
			}
			return d
		}
	}
	return DefaultLockTimeout
}

// ParseDestination reads the Destination header of COPY/MOVE and resolves
// it to a path inside this server's namespace. An absolute URI pointing
// at a different host is a cross-server destination, which this engine
// does not forward (502 is produced by the caller via the IsRemote rule).
func ParseDestination(h http.Header, host, prefix string) (*davpath.Path, error) {
	raw := h.Get("Destination")
	if raw == "" {
		return nil, ErrBadHeader
	}

	target := raw
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, ErrBadHeader
		}
		if host != "" && u.Host != "" && !strings.EqualFold(u.Host, host) {
			return nil, ErrDestinationRemote
		}
		// keep the path percent-encoded; the path model decodes exactly once
		target = u.EscapedPath()
	}

	p, err := davpath.ParseWithPrefix(target, prefix)
	if err != nil {
		return nil, ErrBadHeader
	}
	return p, nil
}

// ErrDestinationRemote marks a Destination on a different host.
var ErrDestinationRemote = errors.New("destination on remote host")

// ParseOverwrite reads the Overwrite header; absence means true per
// RFC 4918 10.6.
func ParseOverwrite(h http.Header) (bool, error) {
	switch h.Get("Overwrite") {
	case "", "T", "t":
		return true, nil
	case "F", "f":
		return false, nil
	default:
		return false, ErrBadHeader
	}
}

// ParseLockTokenHeader extracts the token from an UNLOCK request's
// Lock-Token header, which carries a single Coded-URL.
func ParseLockTokenHeader(h http.Header) (string, error) {
	raw := strings.TrimSpace(h.Get("Lock-Token"))
	if len(raw) < 2 || raw[0] != '<' || raw[len(raw)-1] != '>' {
		return "", ErrBadHeader
	}
	return raw[1 : len(raw)-1], nil
}
