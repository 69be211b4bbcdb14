package static

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ContentType describes how a file extension is served.
type ContentType struct {
	MIME       string
	Attachment bool
}

var contentTypes = map[string]ContentType{
	".html": {MIME: "text/html; charset=utf-8"},
	".png":  {MIME: "application/octet-stream", Attachment: true},
	".jpg":  {MIME: "application/octet-stream", Attachment: true},
	".jpeg": {MIME: "application/octet-stream", Attachment: true},
	".txt":  {MIME: "application/octet-stream", Attachment: true},
}

// LookupType returns the policy for the extension of p, case-insensitive.
func LookupType(p string) (ContentType, bool) {
	ct, ok := contentTypes[strings.ToLower(filepath.Ext(p))]
	return ct, ok
}

// File is a resolved file ready to be sent.
type File struct {
	Path        string
	Name        string
	ContentType string
	// Disposition is empty for inline content.
	Disposition string
	Body        []byte
}

// Load resolves requestPath and reads the file.
func (r *Resolver) Load(requestPath string) (*File, error) {
	target, err := r.Resolve(requestPath)
	if err != nil {
		return nil, err
	}
	ct, _ := LookupType(target)

	info, err := r.fs.Stat(target)
	if err != nil {
		return nil, &ResolveError{Kind: ReadFailed, Reason: "File read error", Err: err}
	}
	body, err := afero.ReadFile(r.fs, target)
	if err != nil {
		return nil, &ResolveError{Kind: ReadFailed, Reason: "File read error", Err: err}
	}
	if int64(len(body)) != info.Size() {
		return nil, &ResolveError{Kind: ReadFailed, Reason: "File integrity error",
			Err: fmt.Errorf("read %d of %d bytes", len(body), info.Size())}
	}

	f := &File{
		Path:        target,
		Name:        Name(target),
		ContentType: ct.MIME,
		Body:        body,
	}
	if ct.Attachment {
		f.Disposition = fmt.Sprintf("attachment; filename=%q", f.Name)
	}
	return f, nil
}
