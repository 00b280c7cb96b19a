package dav

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marmos91/davfs/pkg/lock"
)

// The engine builds structured response data; this file owns turning it
// into RFC 4918 XML. Property values are opaque fragments stored
// verbatim, so the body is rendered explicitly rather than through
// struct marshalling, which would re-encode the fragments.

const davNS = "DAV:"

// statusLine renders a status code in the form multistatus bodies use.
func statusLine(code int) string {
	return fmt.Sprintf("HTTP/1.1 %d %s", code, http.StatusText(code))
}

func xmlEscape(s string) string {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return s
	}
	return b.String()
}

// PropValue is one property in a multistatus response: a namespaced name
// with its raw inner XML (nil for name-only or empty-value reporting).
type PropValue struct {
	Name  xml.Name
	Inner []byte
}

// renderProp writes one property element. DAV: properties reuse the D:
// prefix declared on the envelope; foreign namespaces are declared
// inline on the element.
func renderProp(b *strings.Builder, v PropValue) {
	local := xmlEscape(v.Name.Local)
	switch v.Name.Space {
	case davNS:
		b.WriteString("<D:" + local)
	case "":
		b.WriteString("<" + local)
	default:
		b.WriteString("<" + local + ` xmlns="` + xmlEscape(v.Name.Space) + `"`)
	}
	if len(v.Inner) == 0 {
		b.WriteString("/>")
		return
	}
	b.WriteString(">")
	b.Write(v.Inner)
	if v.Name.Space == davNS {
		b.WriteString("</D:" + local + ">")
	} else {
		b.WriteString("</" + local + ">")
	}
}

// Propstat groups properties sharing one status inside a response.
type Propstat struct {
	Props  []PropValue
	Status int
}

// ResponseEntry is the per-resource element of a multistatus body.
// Either Propstats is set (PROPFIND/PROPPATCH form) or Status is
// non-zero (the flat form used for per-path failure detail).
type ResponseEntry struct {
	Href      string
	Propstats []Propstat
	Status    int
}

// RenderMultistatus produces the 207 body for a set of entries.
func RenderMultistatus(entries []ResponseEntry) string {
	var b strings.Builder
	b.WriteString(xml.Header)
	b.WriteString(`<D:multistatus xmlns:D="DAV:">`)
	for _, entry := range entries {
		b.WriteString("<D:response><D:href>")
		b.WriteString(xmlEscape(entry.Href))
		b.WriteString("</D:href>")
		if entry.Status != 0 {
			b.WriteString("<D:status>" + statusLine(entry.Status) + "</D:status>")
		}
		for _, ps := range entry.Propstats {
			b.WriteString("<D:propstat><D:prop>")
			for _, p := range ps.Props {
				renderProp(&b, p)
			}
			b.WriteString("</D:prop><D:status>")
			b.WriteString(statusLine(ps.Status))
			b.WriteString("</D:status></D:propstat>")
		}
		b.WriteString("</D:response>")
	}
	b.WriteString("</D:multistatus>")
	return b.String()
}

// WriteMultistatus encodes a 207 body onto w.
func WriteMultistatus(w http.ResponseWriter, entries []ResponseEntry) error {
	w.Header().Set("Content-Type", `application/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusMultiStatus)
	_, err := io.WriteString(w, RenderMultistatus(entries))
	return err
}

// ============================================================
// Request body parsing
// ============================================================

// rawProp captures a requested or submitted property with its raw value.
type rawProp struct {
	XMLName xml.Name
	Inner   []byte `xml:",innerxml"`
}

type propContainer struct {
	Props []rawProp `xml:",any"`
}

// PropfindRequest is the parsed PROPFIND body. An empty body means
// allprop per RFC 4918 9.1.
type PropfindRequest struct {
	XMLName  xml.Name       `xml:"DAV: propfind"`
	Allprop  *struct{}      `xml:"DAV: allprop"`
	Propname *struct{}      `xml:"DAV: propname"`
	Prop     *propContainer `xml:"DAV: prop"`
}

// Names returns the requested property names for the prop form.
func (r *PropfindRequest) Names() []xml.Name {
	if r.Prop == nil {
		return nil
	}
	names := make([]xml.Name, 0, len(r.Prop.Props))
	for _, p := range r.Prop.Props {
		names = append(names, p.XMLName)
	}
	return names
}

// ParsePropfind reads a PROPFIND body. A missing body defaults to
// allprop; a present but malformed body is a 400.
func ParsePropfind(body io.Reader) (*PropfindRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, ErrBadHeader
	}
	if len(data) == 0 {
		return &PropfindRequest{Allprop: &struct{}{}}, nil
	}
	var req PropfindRequest
	if err := xml.Unmarshal(data, &req); err != nil {
		return nil, ErrBadHeader
	}
	if req.Allprop == nil && req.Propname == nil && req.Prop == nil {
		return nil, ErrBadHeader
	}
	return &req, nil
}

// PropertyUpdate is one parsed PROPPATCH instruction in document order.
type PropertyUpdate struct {
	Remove bool
	Name   xml.Name
	Inner  []byte
}

// ParseProppatch reads a PROPPATCH body, preserving instruction order,
// which RFC 4918 9.2 requires for apply semantics.
func ParseProppatch(body io.Reader) ([]PropertyUpdate, error) {
	type setOrRemove struct {
		XMLName xml.Name
		Prop    propContainer `xml:"DAV: prop"`
	}
	var doc struct {
		XMLName xml.Name      `xml:"DAV: propertyupdate"`
		Ops     []setOrRemove `xml:",any"`
	}

	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return nil, ErrBadHeader
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, ErrBadHeader
	}

	var updates []PropertyUpdate
	for _, op := range doc.Ops {
		var remove bool
		switch {
		case op.XMLName.Space == davNS && op.XMLName.Local == "set":
		case op.XMLName.Space == davNS && op.XMLName.Local == "remove":
			remove = true
		default:
			continue
		}
		for _, p := range op.Prop.Props {
			updates = append(updates, PropertyUpdate{
				Remove: remove,
				Name:   p.XMLName,
				Inner:  p.Inner,
			})
		}
	}
	if len(updates) == 0 {
		return nil, ErrBadHeader
	}
	return updates, nil
}

// LockRequest is the parsed LOCK body. A nil return from ParseLockBody
// with no error means the body was empty: a refresh request.
type LockRequest struct {
	Exclusive bool
	Owner     string
}

// ParseLockBody reads a LOCK request body.
func ParseLockBody(body io.Reader) (*LockRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, ErrBadHeader
	}
	if len(data) == 0 {
		return nil, nil
	}

	var doc struct {
		XMLName   xml.Name `xml:"DAV: lockinfo"`
		LockScope struct {
			Exclusive *struct{} `xml:"DAV: exclusive"`
			Shared    *struct{} `xml:"DAV: shared"`
		} `xml:"DAV: lockscope"`
		LockType struct {
			Write *struct{} `xml:"DAV: write"`
		} `xml:"DAV: locktype"`
		Owner struct {
			Inner []byte `xml:",innerxml"`
		} `xml:"DAV: owner"`
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, ErrBadHeader
	}
	if doc.LockType.Write == nil {
		return nil, ErrBadHeader
	}
	if doc.LockScope.Exclusive == nil && doc.LockScope.Shared == nil {
		return nil, ErrBadHeader
	}
	return &LockRequest{
		Exclusive: doc.LockScope.Exclusive != nil,
		Owner:     string(doc.Owner.Inner),
	}, nil
}

// ============================================================
// Lock discovery rendering
// ============================================================

// ActiveLockXML renders one activelock element.
func ActiveLockXML(l *lock.Lock, now time.Time) string {
	scope := "<D:shared/>"
	if l.Exclusive {
		scope = "<D:exclusive/>"
	}
	depth := "0"
	if l.DepthInfinity {
		depth = "infinity"
	}
	remaining := int(l.Expires.Sub(now).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	owner := ""
	if l.Owner != "" {
		owner = "<D:owner>" + l.Owner + "</D:owner>"
	}
	return fmt.Sprintf(
		"<D:activelock>"+
			"<D:locktype><D:write/></D:locktype>"+
			"<D:lockscope>%s</D:lockscope>"+
			"<D:depth>%s</D:depth>"+
			"%s"+
			"<D:timeout>Second-%d</D:timeout>"+
			"<D:locktoken><D:href>%s</D:href></D:locktoken>"+
			"<D:lockroot><D:href>%s</D:href></D:lockroot>"+
			"</D:activelock>",
		scope, depth, owner, remaining, xmlEscape(l.Token), xmlEscape(l.Path.URL()),
	)
}

// LockDiscoveryXML renders the lockdiscovery value for a set of covering
// locks, as the inner XML of a lockdiscovery property.
func LockDiscoveryXML(locks []lock.Lock, now time.Time) []byte {
	var b strings.Builder
	for i := range locks {
		b.WriteString(ActiveLockXML(&locks[i], now))
	}
	return []byte(b.String())
}

// SupportedLockXML is the static supportedlock property value.
const SupportedLockXML = "<D:lockentry><D:lockscope><D:exclusive/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>" +
	"<D:lockentry><D:lockscope><D:shared/></D:lockscope><D:locktype><D:write/></D:locktype></D:lockentry>"

// WriteLockResponse writes the LOCK success body: a prop element holding
// lockdiscovery for the granted lease.
func WriteLockResponse(w http.ResponseWriter, l *lock.Lock, created bool) error {
	w.Header().Set("Content-Type", `application/xml; charset="utf-8"`)
	w.Header().Set("Lock-Token", "<"+l.Token+">")
	if created {
		w.WriteHeader(http.StatusCreated)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	body := xml.Header +
		`<D:prop xmlns:D="DAV:"><D:lockdiscovery>` +
		ActiveLockXML(l, time.Now()) +
		`</D:lockdiscovery></D:prop>`
	_, err := io.WriteString(w, body)
	return err
}

// WriteLockedError writes the 423 precondition body naming the
// conflicting path, per RFC 4918 11.3.
func WriteLockedError(w http.ResponseWriter, conflictPath string) {
	w.Header().Set("Content-Type", `application/xml; charset="utf-8"`)
	w.WriteHeader(http.StatusLocked)
	body := xml.Header +
		`<D:error xmlns:D="DAV:"><D:lock-token-submitted><D:href>` +
		xmlEscape(conflictPath) +
		`</D:href></D:lock-token-submitted></D:error>`
	io.WriteString(w, body)
}
