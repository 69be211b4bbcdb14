package static

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func docRoot(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<h1>hi</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "logo.png"), []byte{0x89, 'P', 'N', 'G'}, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.TXT"), []byte("notes"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.json"), []byte("{}"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub dir", "page.html"), []byte("page"), 0o644))
	return root
}

func resolveKind(t *testing.T, err error) ErrorKind {
	t.Helper()
	var re *ResolveError
	require.True(t, errors.As(err, &re), "expected *ResolveError, got %v", err)
	return re.Kind
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()
	root := docRoot(t)
	r, err := NewResolver(root, nil)
	require.NoError(t, err)

	ok := []struct{ path, want string }{
		{"/", "index.html"},
		{"/index.html", "index.html"},
		{"/index.html?x=1#frag", "index.html"},
		{"//index.html", "index.html"},
		{"/./logo.png", "logo.png"},
		{"/sub%20dir/page.html", filepath.Join("sub dir", "page.html")},
		{"/sub%20dir\\page.html", filepath.Join("sub dir", "page.html")},
		{"/notes.TXT", "notes.TXT"},
	}
	for _, tt := range ok {
		got, err := r.Resolve(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, filepath.Join(r.Root(), tt.want), got, tt.path)
	}

	failures := []struct {
		path string
		kind ErrorKind
	}{
		{"/../etc/passwd", Forbidden},
		{"/..", Forbidden},
		{"/sub%20dir/../../etc/passwd", Forbidden},
		{"/%2e%2e/etc/passwd", Forbidden},
		{"/%2E%2E%2Fetc%2Fpasswd", Forbidden},
		{"/..%5c..%5cwindows", Forbidden},
		{"/C:/Windows/win.ini", Forbidden},
		{"/c:%5cboot.ini", Forbidden},
		{"/%zz", Forbidden},
		{"/a%00.html", Forbidden},
		{"/missing.html", NotFound},
		{"/sub%20dir", NotFound},
		{"/index.html/extra.html", NotFound},
		{"/data.json", UnsupportedMedia},
	}
	for _, tt := range failures {
		_, err := r.Resolve(tt.path)
		assert.Equal(t, tt.kind, resolveKind(t, err), tt.path)
	}
}

func TestResolver_StatusCodes(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 403, (&ResolveError{Kind: Forbidden}).Status())
	assert.Equal(t, 404, (&ResolveError{Kind: NotFound}).Status())
	assert.Equal(t, 415, (&ResolveError{Kind: UnsupportedMedia}).Status())
	assert.Equal(t, 500, (&ResolveError{Kind: ReadFailed}).Status())
}

func TestResolver_SymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	t.Parallel()

	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("secret"), 0o600))

	root := docRoot(t)
	require.NoError(t, os.Symlink(secret, filepath.Join(root, "leak.txt")))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "out")))
	require.NoError(t, os.Symlink(filepath.Join(root, "index.html"), filepath.Join(root, "alias.html")))

	r, err := NewResolver(root, nil)
	require.NoError(t, err)

	_, err = r.Resolve("/leak.txt")
	assert.Equal(t, Forbidden, resolveKind(t, err))
	_, err = r.Resolve("/out/secret.txt")
	assert.Equal(t, Forbidden, resolveKind(t, err))

	got, err := r.Resolve("/alias.html")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(r.Root(), "index.html"), got)
}

func TestResolve_Func(t *testing.T) {
	t.Parallel()
	root := docRoot(t)

	_, err := Resolve("/index.html", root)
	require.NoError(t, err)

	_, err = Resolve("/../etc/passwd", root)
	assert.Equal(t, Forbidden, resolveKind(t, err))

	_, err = Resolve("/index.html", filepath.Join(root, "nope"))
	assert.Equal(t, NotFound, resolveKind(t, err))
}

func TestSegments(t *testing.T) {
	t.Parallel()
	segs, err := Segments("/a/./b//c?q=..")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, segs)

	// Decoded once: a double-encoded dot-dot is a literal name.
	segs, err = Segments("/%252e%252e/x")
	require.NoError(t, err)
	assert.Equal(t, []string{"%2e%2e", "x"}, segs)
}

func TestResolver_Load(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/www", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/www/index.html", []byte("<p>x</p>"), 0o644))
	require.NoError(t, afero.WriteFile(fsys, "/www/photo.JPG", []byte("jpeg"), 0o644))

	r, err := NewResolver("/www", fsys)
	require.NoError(t, err)

	f, err := r.Load("/")
	require.NoError(t, err)
	assert.Equal(t, "text/html; charset=utf-8", f.ContentType)
	assert.Empty(t, f.Disposition)
	assert.Equal(t, []byte("<p>x</p>"), f.Body)

	f, err = r.Load("/photo.JPG")
	require.NoError(t, err)
	assert.Equal(t, "application/octet-stream", f.ContentType)
	assert.Equal(t, `attachment; filename="photo.JPG"`, f.Disposition)
	assert.Equal(t, "photo.JPG", f.Name)

	_, err = r.Load("/nope.html")
	assert.Equal(t, NotFound, resolveKind(t, err))
}
