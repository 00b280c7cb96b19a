package handlers

import (
	"encoding/xml"
	"net/http"
	"sort"

	"github.com/marmos91/davfs/internal/protocol/dav"
	"github.com/marmos91/davfs/pkg/storage"
)

// protectedProps are the live properties a client may not overwrite.
// displayname is deliberately absent: it is live but writable, and
// backends store it alongside dead properties.
var protectedProps = map[string]bool{
	"resourcetype":          true,
	"getetag":               true,
	"getcontentlength":      true,
	"getcontenttype":        true,
	"getlastmodified":       true,
	"creationdate":          true,
	"lockdiscovery":         true,
	"supportedlock":         true,
	"quota-used-bytes":      true,
	"quota-available-bytes": true,
}

// handleProppatch applies a property batch atomically.
// RFC 4918 Section 9.2.
//
// The batch is all-or-nothing: when any instruction is unacceptable
// (a protected live property), nothing is applied and every other
// instruction reports 424 Failed Dependency.
func (h *Handler) handleProppatch(w http.ResponseWriter, r *http.Request) {
	p, ok := h.resolve(w, r)
	if !ok {
		return
	}

	meta := h.stat(r, p)
	tokens, ok := h.checkConditions(w, r, p, meta)
	if !ok {
		return
	}
	if meta == nil {
		writeStatus(w, http.StatusNotFound)
		return
	}
	if !h.confirmLocks(w, p, false, tokens) {
		return
	}

	updates, err := dav.ParseProppatch(r.Body)
	if err != nil {
		writeStatus(w, http.StatusBadRequest)
		return
	}

	rejected := false
	for _, u := range updates {
		if u.Name.Space == "DAV:" && protectedProps[u.Name.Local] {
			rejected = true
			break
		}
	}

	byStatus := make(map[int][]dav.PropValue)
	if rejected {
		for _, u := range updates {
			status := http.StatusFailedDependency
			if u.Name.Space == "DAV:" && protectedProps[u.Name.Local] {
				status = http.StatusForbidden
			}
			byStatus[status] = append(byStatus[status], dav.PropValue{Name: u.Name})
		}
	} else {
		patch := make([]storage.PropPatch, 0, len(updates))
		for _, u := range updates {
			patch = append(patch, storage.PropPatch{
				Remove: u.Remove,
				Prop: storage.Property{
					Name:      u.Name.Local,
					Namespace: u.Name.Space,
					XML:       u.Inner,
				},
			})
		}
		results, err := h.fs.PatchProps(r.Context(), p, patch)
		if err != nil {
			writeError(w, err)
			return
		}
		for _, res := range results {
			byStatus[res.Status] = append(byStatus[res.Status], dav.PropValue{
				Name: xml.Name{Space: res.Prop.Namespace, Local: res.Prop.Name},
			})
		}
	}

	statuses := make([]int, 0, len(byStatus))
	for s := range byStatus {
		statuses = append(statuses, s)
	}
	sort.Ints(statuses)

	entry := dav.ResponseEntry{Href: h.href(p)}
	for _, s := range statuses {
		entry.Propstats = append(entry.Propstats, dav.Propstat{Props: byStatus[s], Status: s})
	}
	_ = dav.WriteMultistatus(w, []dav.ResponseEntry{entry})
}
