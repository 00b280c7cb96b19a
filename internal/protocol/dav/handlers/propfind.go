package handlers

import (
	"context"
	"encoding/xml"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/davfs/internal/protocol/dav"
	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// handlePropfind reports properties for the target and, depending on
// Depth, its descendants. Results travel in a 207 body with one response
// element per resource; property lookups that fail for one resource
// never fail the request as a whole.
// RFC 4918 Section 9.1.
func (h *Handler) handlePropfind(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}

	meta := h.stat(r, p)
	if _, ok := h.checkConditions(w, r, p, meta); !ok {
		return
	}
	if meta == nil {
		writeStatus(w, http.StatusNotFound)
		return
	}

	depth, err := dav.ParseDepth(r.Header, dav.DepthInfinity)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}
	req, err := dav.ParsePropfind(r.Body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	var entries []dav.ResponseEntry
	h.propfindNode(r.Context(), p, meta, depth, req, &entries)
	_ = dav.WriteMultistatus(w, entries)
}

// propfindNode appends the entry for one resource and recurses into
// collections as far as Depth allows.
func (h *Handler) propfindNode(ctx context.Context, p *davpath.Path, meta *storage.Metadata, depth dav.Depth, req *dav.PropfindRequest, entries *[]dav.ResponseEntry) {
	*entries = append(*entries, h.propfindEntry(ctx, p, meta, req))

	if !meta.IsDir || depth == dav.Depth0 {
		return
	}
	childDepth := dav.Depth0
	if depth == dav.DepthInfinity {
		childDepth = dav.DepthInfinity
	}

	children, err := h.fs.ReadDir(ctx, p, storage.ReadDirMetaData)
	if err != nil {
		// the parent entry stands; the unreadable collection reports
		// its own failure
		*entries = append(*entries, dav.ResponseEntry{
			Href:   h.href(p),
			Status: mapStatus(err),
		})
		return
	}
	for _, child := range children {
		m, err := child.Metadata(ctx)
		if err != nil {
			*entries = append(*entries, dav.ResponseEntry{
				Href:   h.href(p.Child(child.Name(), false)),
				Status: mapStatus(err),
			})
			continue
		}
		h.propfindNode(ctx, p.Child(child.Name(), m.IsDir), m, childDepth, req, entries)
	}
}

// propfindEntry builds the response element for one resource, grouping
// properties by outcome.
func (h *Handler) propfindEntry(ctx context.Context, p *davpath.Path, meta *storage.Metadata, req *dav.PropfindRequest) dav.ResponseEntry {
	entry := dav.ResponseEntry{Href: h.href(p)}

	switch {
	case req.Propname != nil:
		var names []dav.PropValue
		for _, n := range livePropNames(meta) {
			names = append(names, dav.PropValue{Name: n})
		}
		if h.fs.HaveProps(ctx, p) {
			if dead, err := h.fs.GetProps(ctx, p, false); err == nil {
				for _, d := range dead {
					names = append(names, dav.PropValue{Name: xml.Name{Space: d.Namespace, Local: d.Name}})
				}
			}
		}
		entry.Propstats = []dav.Propstat{{Props: names, Status: http.StatusOK}}

	case req.Prop != nil:
		// failed lookups keep their storage status: a backend without
		// dead properties reports 501 per property, not 404
		var found []dav.PropValue
		failed := make(map[int][]dav.PropValue)
		for _, name := range req.Names() {
			if v, ok := h.liveProp(ctx, p, meta, name, true); ok {
				found = append(found, v)
				continue
			}
			raw, err := h.fs.GetProp(ctx, p, storage.Property{Name: name.Local, Namespace: name.Space})
			if err != nil {
				status := mapStatus(err)
				failed[status] = append(failed[status], dav.PropValue{Name: name})
				continue
			}
			found = append(found, dav.PropValue{Name: name, Inner: raw})
		}
		if len(found) > 0 {
			entry.Propstats = append(entry.Propstats, dav.Propstat{Props: found, Status: http.StatusOK})
		}
		statuses := make([]int, 0, len(failed))
		for status := range failed {
			statuses = append(statuses, status)
		}
		sort.Ints(statuses)
		for _, status := range statuses {
			entry.Propstats = append(entry.Propstats, dav.Propstat{Props: failed[status], Status: status})
		}

	default: // allprop
		var props []dav.PropValue
		for _, n := range livePropNames(meta) {
			if v, ok := h.liveProp(ctx, p, meta, n, false); ok {
				props = append(props, v)
			}
		}
		if h.fs.HaveProps(ctx, p) {
			if dead, err := h.fs.GetProps(ctx, p, true); err == nil {
				for _, d := range dead {
					props = append(props, dav.PropValue{
						Name:  xml.Name{Space: d.Namespace, Local: d.Name},
						Inner: d.XML,
					})
				}
			}
		}
		entry.Propstats = []dav.Propstat{{Props: props, Status: http.StatusOK}}
	}

	if len(entry.Propstats) == 0 {
		entry.Propstats = []dav.Propstat{{Status: http.StatusOK}}
	}
	return entry
}

func davName(local string) xml.Name {
	return xml.Name{Space: "DAV:", Local: local}
}

// livePropNames lists the live properties every resource carries. The
// quota pair is deliberately absent: RFC 4331 excludes it from allprop.
func livePropNames(meta *storage.Metadata) []xml.Name {
	names := []xml.Name{
		davName("displayname"),
		davName("resourcetype"),
		davName("getetag"),
		davName("getlastmodified"),
		davName("creationdate"),
		davName("supportedlock"),
		davName("lockdiscovery"),
	}
	if !meta.IsDir {
		names = append(names,
			davName("getcontentlength"),
			davName("getcontenttype"),
		)
	}
	return names
}

// liveProp resolves one live property. The explicit flag marks a by-name
// request, which is the only way to reach the quota properties.
func (h *Handler) liveProp(ctx context.Context, p *davpath.Path, meta *storage.Metadata, name xml.Name, explicit bool) (dav.PropValue, bool) {
	if name.Space != "DAV:" {
		return dav.PropValue{}, false
	}

	v := dav.PropValue{Name: name}
	switch name.Local {
	case "displayname":
		var b []byte
		if n := p.Name(); n != "" {
			b = []byte(xmlTextEscape(n))
		}
		v.Inner = b
	case "resourcetype":
		if meta.IsDir {
			v.Inner = []byte("<D:collection/>")
		}
	case "getetag":
		v.Inner = []byte(`"` + meta.ETag() + `"`)
	case "getlastmodified":
		v.Inner = []byte(meta.ModTime.UTC().Format(http.TimeFormat))
	case "creationdate":
		created := meta.Created
		if created.IsZero() {
			created = meta.ModTime
		}
		v.Inner = []byte(created.UTC().Format(time.RFC3339))
	case "supportedlock":
		v.Inner = []byte(dav.SupportedLockXML)
	case "lockdiscovery":
		v.Inner = dav.LockDiscoveryXML(h.locks.Discover(p), time.Now())
	case "getcontentlength":
		if meta.IsDir {
			return dav.PropValue{}, false
		}
		v.Inner = []byte(strconv.FormatUint(meta.Size, 10))
	case "getcontenttype":
		if meta.IsDir {
			return dav.PropValue{}, false
		}
		ct := meta.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		v.Inner = []byte(xmlTextEscape(ct))
	case "quota-used-bytes":
		if !explicit || !meta.IsDir {
			return dav.PropValue{}, false
		}
		used, _, err := h.fs.GetQuota(ctx)
		if err != nil {
			return dav.PropValue{}, false
		}
		v.Inner = []byte(strconv.FormatUint(used, 10))
	case "quota-available-bytes":
		if !explicit || !meta.IsDir {
			return dav.PropValue{}, false
		}
		used, total, err := h.fs.GetQuota(ctx)
		if err != nil || total == nil {
			return dav.PropValue{}, false
		}
		avail := uint64(0)
		if *total > used {
			avail = *total - used
		}
		v.Inner = []byte(strconv.FormatUint(avail, 10))
	default:
		return dav.PropValue{}, false
	}
	return v, true
}

var xmlTextReplacer = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func xmlTextEscape(s string) string {
	return xmlTextReplacer.Replace(s)
}
