package upload

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"k8s.io/utils/clock"
)

// ErrInvalidJSON is returned by Save for a body that is not a JSON value.
var ErrInvalidJSON = errors.New("invalid JSON")

// URLPrefix is the public path uploaded files are reported under.
const URLPrefix = "/uploads/"

// Store writes uploaded JSON documents into one directory.
type Store struct {
	fs    afero.Fs
	dir   string
	clock clock.PassiveClock

	// suffix returns the random part of a filename.
	suffix func() string
}

// NewStore creates a store writing to dir on fsys. A nil clock means the
// wall clock.
func NewStore(fsys afero.Fs, dir string, clk clock.PassiveClock) *Store {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Store{fs: fsys, dir: dir, clock: clk, suffix: randomSuffix}
}

// Result describes a stored upload. It is also the 201 response body.
type Result struct {
	Status   string `json:"status"`
	Message  string `json:"message"`
	Filepath string `json:"filepath"`

	// Name is the file name inside the upload directory.
	Name string `json:"-"`
}

// Save validates body as JSON, re-indents it and stores it under a fresh
// name. Values, key order and duplicate keys are kept as sent. The file is
// written to a temporary name first and renamed into place, so readers
// never see a partial document.
func (s *Store) Save(body []byte) (*Result, error) {
	body = bytes.TrimSpace(body)
	if !json.Valid(body) {
		return nil, ErrInvalidJSON
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}

	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	name := Filename(s.clock.Now(), s.suffix())
	final := path.Join(s.dir, name)
	tmp := final + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, pretty.Bytes(), 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return nil, fmt.Errorf("rename upload: %w", err)
	}

	return &Result{
		Status:   "success",
		Message:  "File created successfully",
		Filepath: URLPrefix + name,
		Name:     name,
	}, nil
}

// Filename formats upload_<YYYYMMDD>_<HHMMSS>_<suffix>.json in UTC.
func Filename(now time.Time, suffix string) string {
	return "upload_" + now.UTC().Format("20060102_150405") + "_" + suffix + ".json"
}

// randomSuffix returns six hex characters.
func randomSuffix() string {
	id := uuid.New()
	return hex.EncodeToString(id[:3])
}

// Exists reports whether name is present in the store.
func (s *Store) Exists(name string) bool {
	ok, err := afero.Exists(s.fs, path.Join(s.dir, name))
	return ok && err == nil
}
