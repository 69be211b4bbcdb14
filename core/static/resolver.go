package static

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// IndexFile is served for the root path.
const IndexFile = "index.html"

// Resolver maps request paths to files under a document root.
type Resolver struct {
	fs   afero.Fs
	root string

	// canonical resolves symlinks on real filesystems and cleans the
	// path on in-memory ones.
	canonical func(string) (string, error)
}

// NewResolver creates a resolver for root. A nil fs means the OS
// filesystem. root is canonicalized once here.
func NewResolver(root string, fsys afero.Fs) (*Resolver, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	r := &Resolver{fs: fsys}
	if _, ok := fsys.(*afero.OsFs); ok {
		r.canonical = filepath.EvalSymlinks
	} else {
		r.canonical = r.lexical
	}

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if r.root, err = r.canonical(abs); err != nil {
		return nil, err
	}
	return r, nil
}

// lexical cleans p and checks it exists.
func (r *Resolver) lexical(p string) (string, error) {
	p = filepath.Clean(p)
	if _, err := r.fs.Stat(p); err != nil {
		return "", err
	}
	return p, nil
}

// Root returns the canonical document root.
func (r *Resolver) Root() string { return r.root }


// Resolve turns a request path into a canonical file path under the
// document root.
//
// The query and fragment are stripped and the path is percent-decoded
// once. Any ".." segment, a drive-letter path or a NUL byte is refused
// without touching the filesystem. The joined path is then
// canonicalized and must remain a descendant of the root; a missing or
// non-regular target is NotFound and an extension that is not served is
// UnsupportedMedia.
func (r *Resolver) Resolve(requestPath string) (string, error) {
	segments, err := Segments(requestPath)
	if err != nil {
		return "", err
	}
	if len(segments) == 0 {
		segments = []string{IndexFile}
	}

	joined := filepath.Join(append([]string{r.root}, segments...)...)
	target, err := r.canonical(joined)
	if err != nil {
		return "", &ResolveError{Kind: NotFound, Reason: "Not Found", Err: err}
	}
	if !within(r.root, target) {
		return "", forbidden("Resolved path escapes resources directory")
	}

	info, err := r.fs.Stat(target)
	if err != nil || !info.Mode().IsRegular() {
		return "", &ResolveError{Kind: NotFound, Reason: "Not Found", Err: err}
	}
	if _, ok := LookupType(target); !ok {
		return "", &ResolveError{Kind: UnsupportedMedia, Reason: "Unsupported file type"}
	}
	return target, nil
}

// Resolve resolves requestPath under root with the OS filesystem.
func Resolve(requestPath, root string) (string, error) {
	r, err := NewResolver(root, nil)
	if err != nil {
		return "", &ResolveError{Kind: NotFound, Reason: "document root unavailable", Err: err}
	}
	return r.Resolve(requestPath)
}

// Segments decodes a request path into its clean segments. It is the
// lexical half of Resolve and never touches the filesystem.
func Segments(requestPath string) ([]string, error) {
	if i := strings.IndexAny(requestPath, "?#"); i >= 0 {
		requestPath = requestPath[:i]
	}
	decoded, err := url.PathUnescape(requestPath)
	if err != nil {
		return nil, forbidden("Invalid percent-encoding")
	}
	if strings.IndexByte(decoded, 0) >= 0 {
		return nil, forbidden("NUL byte in path")
	}

	decoded = strings.ReplaceAll(decoded, "\\", "/")
	// A leading slash is root-relative.
	decoded = strings.TrimLeft(decoded, "/")
	if isDriveLetter(decoded) {
		return nil, forbidden("Absolute path not allowed")
	}

	var segments []string
	for _, seg := range strings.Split(decoded, "/") {
		switch seg {
		case "", ".":
			continue
		case "..":
			return nil, forbidden("Path traversal detected")
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

func isDriveLetter(p string) bool {
	if len(p) < 3 || p[1] != ':' || p[2] != '/' {
		return false
	}
	c := p[0] | 0x20
	return c >= 'a' && c <= 'z'
}

// within reports whether target is root or below it.
func within(root, target string) bool {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Name returns the base name of a resolved path.
func Name(p string) string {
	return path.Base(filepath.ToSlash(p))
}
