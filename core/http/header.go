package http

// Common header names
const (
	HeaderContentType        = "Content-Type"
	HeaderContentLength      = "Content-Length"
	HeaderTransferEncoding   = "Transfer-Encoding"
	HeaderContentDisposition = "Content-Disposition"
	HeaderHost               = "Host"
	HeaderConnection         = "Connection"
	HeaderKeepAlive          = "Keep-Alive"
	HeaderDate               = "Date"
	HeaderServer             = "Server"
	HeaderAllow              = "Allow"
	HeaderRetryAfter         = "Retry-After"
	HeaderOrigin             = "Origin"
	HeaderAccept             = "Accept"
	HeaderCacheControl       = "Cache-Control"
)

// Field is a single header line.
type Field struct {
	Name  string
	Value string
}

// Header is an ordered list of fields with a case-insensitive index.
//
// Every occurrence of a name is kept in arrival order. Get returns the
// last occurrence, so a repeated header overrides earlier ones for
// single-valued lookups; Values returns all of them.
type Header struct {
	fields []Field
	index  map[string][]int
}

// NewHeader creates an empty header with room for n fields.
func NewHeader(n int) *Header {
	return &Header{
		fields: make([]Field, 0, n),
		index:  make(map[string][]int, n),
	}
}

func fold(name string) string {
	return asciiLower(name)
}

// Add appends a field, keeping any previous ones with the same name.
func (h *Header) Add(name, value string) {
	if h.index == nil {
		h.index = make(map[string][]int)
	}
	key := fold(name)
	h.index[key] = append(h.index[key], len(h.fields))
	h.fields = append(h.fields, Field{Name: name, Value: value})
}

// Set replaces all fields named name with a single one. The field keeps
// the position of the first replaced occurrence.
func (h *Header) Set(name, value string) {
	key := fold(name)
	positions, ok := h.index[key]
	if !ok {
		h.Add(name, value)
		return
	}
	first := positions[0]
	h.fields[first] = Field{Name: name, Value: value}
	if len(positions) > 1 {
		h.remove(key, positions[1:])
		h.index[key] = []int{first}
	}
}

// Get returns the last value stored for name.
func (h *Header) Get(name string) string {
	if h == nil {
		return ""
	}
	positions := h.index[fold(name)]
	if len(positions) == 0 {
		return ""
	}
	return h.fields[positions[len(positions)-1]].Value
}

// Has reports whether at least one field is named name.
func (h *Header) Has(name string) bool {
	if h == nil {
		return false
	}
	return len(h.index[fold(name)]) > 0
}

// Values returns every value stored for name, in arrival order.
func (h *Header) Values(name string) []string {
	if h == nil {
		return nil
	}
	positions := h.index[fold(name)]
	out := make([]string, 0, len(positions))
	for _, p := range positions {
		out = append(out, h.fields[p].Value)
	}
	return out
}

// Del removes every field named name.
func (h *Header) Del(name string) {
	key := fold(name)
	if positions, ok := h.index[key]; ok {
		h.remove(key, positions)
		delete(h.index, key)
	}
}

// remove drops the fields at positions and rebuilds the index.
func (h *Header) remove(key string, positions []int) {
	drop := make(map[int]struct{}, len(positions))
	for _, p := range positions {
		drop[p] = struct{}{}
	}
	kept := h.fields[:0]
	for i, f := range h.fields {
		if _, ok := drop[i]; !ok {
			kept = append(kept, f)
		}
	}
	h.fields = kept
	h.reindex()
}

func (h *Header) reindex() {
	h.index = make(map[string][]int, len(h.fields))
	for i, f := range h.fields {
		key := fold(f.Name)
		h.index[key] = append(h.index[key], i)
	}
}

// Len returns the number of fields, duplicates included.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.fields)
}

// Fields returns the fields in order. The slice must not be modified.
func (h *Header) Fields() []Field {
	if h == nil {
		return nil
	}
	return h.fields
}

// Clone returns a deep copy.
func (h *Header) Clone() *Header {
	c := NewHeader(h.Len())
	for _, f := range h.Fields() {
		c.Add(f.Name, f.Value)
	}
	return c
}
