package handlers

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/marmos91/davfs/pkg/davpath"
	"github.com/marmos91/davfs/pkg/storage"
)

// handleGet serves file content and collection listings. HEAD follows
// the same path with the body suppressed by net/http.
// RFC 4918 Section 9.4.
func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
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

	if meta.IsDir {
		h.serveListing(w, r, p)
		return
	}

	f, err := h.fs.Open(r.Context(), p, storage.ReadOptions())
	if err != nil {
		writeError(w, err)
		return
	}
	defer f.Close()

	w.Header().Set("ETag", `"`+meta.ETag()+`"`)
	w.Header().Set("Last-Modified", meta.ModTime.UTC().Format(http.TimeFormat))
	w.Header().Set("Accept-Ranges", "bytes")
	contentType := meta.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)

	start, length, ok := parseRange(r.Header.Get("Range"), meta.Size)
	if !ok {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", meta.Size))
		writeStatus(w, http.StatusRequestedRangeNotSatisfiable)
		return
	}

	status := http.StatusOK
	if start != 0 || length != meta.Size {
		if _, err := f.Seek(int64(start), io.SeekStart); err != nil {
			writeError(w, err)
			return
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, start+length-1, meta.Size))
		status = http.StatusPartialContent
	}
	w.Header().Set("Content-Length", strconv.FormatUint(length, 10))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}
	n, _ := io.Copy(w, io.LimitReader(f, int64(length)))
	h.metrics.RecordBytesTransferred("read", n)
}

// parseRange handles the single-range form "bytes=a-b". Multipart ranges
// are not served; an unparseable header is ignored per RFC 7233.
func parseRange(header string, size uint64) (start, length uint64, ok bool) {
	if header == "" || !strings.HasPrefix(header, "bytes=") {
		return 0, size, true
	}
	spec := strings.TrimPrefix(header, "bytes=")
	if strings.Contains(spec, ",") {
		return 0, size, true
	}

	dash := strings.IndexByte(spec, '-')
	if dash < 0 {
		return 0, size, true
	}
	first, last := strings.TrimSpace(spec[:dash]), strings.TrimSpace(spec[dash+1:])

	if first == "" {
		// suffix form: last n bytes
		n, err := strconv.ParseUint(last, 10, 64)
		if err != nil {
			return 0, size, true
		}
		if n >= size {
			return 0, size, true
		}
		return size - n, n, true
	}

	begin, err := strconv.ParseUint(first, 10, 64)
	if err != nil {
		return 0, size, true
	}
	if begin >= size {
		return 0, 0, false
	}
	if last == "" {
		return begin, size - begin, true
	}
	end, err := strconv.ParseUint(last, 10, 64)
	if err != nil || end < begin {
		return 0, size, true
	}
	if end >= size {
		end = size - 1
	}
	return begin, end - begin + 1, true
}

// serveListing renders a minimal HTML index for GET on a collection.
// Listings are a convenience for browsers; DAV clients use PROPFIND.
func (h *Handler) serveListing(w http.ResponseWriter, r *http.Request, p *davpath.Path) {
	entries, err := h.fs.ReadDir(r.Context(), p, storage.ReadDirMetaData)
	if err != nil {
		writeError(w, err)
		return
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head><title>Index of ")
	b.WriteString(htmlEscape(p.String()))
	b.WriteString("</title></head><body>\n<h1>Index of ")
	b.WriteString(htmlEscape(p.String()))
	b.WriteString("</h1>\n<ul>\n")
	if !p.IsRoot() {
		b.WriteString(`<li><a href="../">../</a></li>` + "\n")
	}
	for _, e := range entries {
		isDir := false
		if m, err := e.Metadata(r.Context()); err == nil {
			isDir = m.IsDir
		}
		name := e.Name()
		if isDir {
			name += "/"
		}
		b.WriteString(`<li><a href="` + htmlEscape(davpath.EscapeSegment(e.Name())))
		if isDir {
			b.WriteString("/")
		}
		b.WriteString(`">` + htmlEscape(name) + "</a></li>\n")
	}
	b.WriteString("</ul>\n</body></html>\n")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		io.WriteString(w, b.String())
	}
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&#34;")

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
