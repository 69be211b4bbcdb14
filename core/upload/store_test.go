package upload

import (
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func TestFilename(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 3, 9, 7, 5, 3, 0, time.FixedZone("X", 3600))
	assert.Equal(t, "upload_20240309_060503_abc123.json", Filename(now, "abc123"))
}

func TestRandomSuffix(t *testing.T) {
	t.Parallel()
	re := regexp.MustCompile(`^[0-9a-f]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s := randomSuffix()
		assert.Regexp(t, re, s)
		seen[s] = true
	}
	assert.Greater(t, len(seen), 1)
}

func TestStore_Save(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	clk := testingclock.NewFakeClock(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC))
	s := NewStore(fsys, "/www/uploads", clk)
	s.suffix = func() string { return "0a1b2c" }

	res, err := s.Save([]byte(`{"name":"test","values":[1,2,3],"nested":{"ok":true}}`))
	require.NoError(t, err)
	assert.Equal(t, "success", res.Status)
	assert.Equal(t, "File created successfully", res.Message)
	assert.Equal(t, "/uploads/upload_20240102_030405_0a1b2c.json", res.Filepath)
	assert.True(t, s.Exists(res.Name))

	stored, err := afero.ReadFile(fsys, "/www/uploads/"+res.Name)
	require.NoError(t, err)
	assert.Contains(t, string(stored), "\n")

	var got map[string]any
	require.NoError(t, json.Unmarshal(stored, &got))
	assert.Equal(t, "test", got["name"])
	assert.Equal(t, []any{1.0, 2.0, 3.0}, got["values"])

	tmp, err := afero.Exists(fsys, "/www/uploads/"+res.Name+".tmp")
	require.NoError(t, err)
	assert.False(t, tmp)

	body, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success","message":"File created successfully","filepath":"/uploads/upload_20240102_030405_0a1b2c.json"}`, string(body))
}

func TestStore_SaveKeepsDocument(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	s := NewStore(fsys, "/u", nil)

	res, err := s.Save([]byte(` {"zeta": 1, "id": 12345678901234567, "alpha": true, "dup": 1, "dup": 2}` + "\n"))
	require.NoError(t, err)

	stored, err := afero.ReadFile(fsys, "/u/"+res.Name)
	require.NoError(t, err)
	assert.Equal(t, "{\n  \"zeta\": 1,\n  \"id\": 12345678901234567,\n  \"alpha\": true,\n  \"dup\": 1,\n  \"dup\": 2\n}", string(stored))

	res2, err := s.Save([]byte(`{"zeta": 1, "id": 12345678901234567, "alpha": true, "dup": 1, "dup": 2}`))
	require.NoError(t, err)
	again, err := afero.ReadFile(fsys, "/u/"+res2.Name)
	require.NoError(t, err)
	assert.Equal(t, stored, again)
}

func TestStore_SaveRejectsInvalidJSON(t *testing.T) {
	t.Parallel()
	fsys := afero.NewMemMapFs()
	s := NewStore(fsys, "/uploads", nil)

	for _, body := range []string{"", "{", "{'a':1}", "not json", "{\"a\":1}x"} {
		_, err := s.Save([]byte(body))
		assert.ErrorIs(t, err, ErrInvalidJSON, body)
	}

	entries, err := afero.ReadDir(fsys, "/uploads")
	if err == nil {
		assert.Empty(t, entries)
	}
}

func TestStore_SaveScalarsAndArrays(t *testing.T) {
	t.Parallel()
	s := NewStore(afero.NewMemMapFs(), "/u", nil)
	for _, body := range []string{`[1,"a",null]`, `"text"`, `42`, `true`} {
		_, err := s.Save([]byte(body))
		assert.NoError(t, err, body)
	}
}
