package upload

import (
	"bytes"
	"errors"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileHeader builds a real multipart.FileHeader carrying content under filename.
func fileHeader(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("audio", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	form, err := multipart.NewReader(&body, w.Boundary()).ReadForm(1 << 20)
	require.NoError(t, err)
	t.Cleanup(func() { form.RemoveAll() })
	require.Len(t, form.File["audio"], 1)
	return form.File["audio"][0]
}

func dirEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestAllowedFile(t *testing.T) {
	for _, ext := range AllowedExtensions {
		assert.True(t, AllowedFile("clip."+ext), ext)
		assert.True(t, AllowedFile("CLIP."+strings.ToUpper(ext)), ext)
		assert.True(t, AllowedFile("my.recording."+ext), ext)
	}

	for _, name := range []string{"clip.flac", "clip.txt", "clip", "wav", "clip.wav.exe", ".", "clip.aac"} {
		assert.False(t, AllowedFile(name), name)
	}
}

func TestValidate(t *testing.T) {
	assert.ErrorIs(t, Validate(nil), ErrNoFile)
	assert.ErrorIs(t, Validate(&multipart.FileHeader{Filename: ""}), ErrEmptyFilename)
	assert.ErrorIs(t, Validate(&multipart.FileHeader{Filename: "  "}), ErrEmptyFilename)
	assert.ErrorIs(t, Validate(&multipart.FileHeader{Filename: "notes.pdf"}), ErrUnsupportedFormat)
	assert.NoError(t, Validate(&multipart.FileHeader{Filename: "voice.M4A"}))
}

func TestStagerReceive(t *testing.T) {
	dir := t.TempDir()
	s := NewStager(dir)

	tmp, err := s.Receive(fileHeader(t, "Meeting.WAV", []byte("RIFF-data")))
	require.NoError(t, err)

	assert.Equal(t, "Meeting.WAV", tmp.Filename)
	assert.Equal(t, dir, filepath.Dir(tmp.Path))
	assert.Equal(t, ".wav", filepath.Ext(tmp.Path))

	data, err := os.ReadFile(tmp.Path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-data", string(data))

	require.NoError(t, tmp.Release())
	_, err = os.Stat(tmp.Path)
	assert.True(t, os.IsNotExist(err))

	// releasing twice is harmless
	assert.NoError(t, tmp.Release())
}

func TestStagerReceiveUniqueNames(t *testing.T) {
	s := NewStager(t.TempDir())

	a, err := s.Receive(fileHeader(t, "same.mp3", []byte("a")))
	require.NoError(t, err)
	defer a.Release()
	b, err := s.Receive(fileHeader(t, "same.mp3", []byte("b")))
	require.NoError(t, err)
	defer b.Release()

	assert.NotEqual(t, a.Path, b.Path)
}

func TestStagerReceiveRejectsBeforeWriting(t *testing.T) {
	dir := t.TempDir()
	s := NewStager(dir)

	_, err := s.Receive(fileHeader(t, "malware.exe", []byte("MZ")))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, dirEntries(t, dir))
}

func TestStagerDoRemovesFileOnEveryPath(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		dir := t.TempDir()
		s := NewStager(dir)

		var seen string
		err := s.Do(fileHeader(t, "a.ogg", []byte("x")), func(tmp *TempFile) error {
			seen = tmp.Path
			_, statErr := os.Stat(tmp.Path)
			return statErr
		})
		require.NoError(t, err)
		assert.NotEmpty(t, seen)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("error", func(t *testing.T) {
		dir := t.TempDir()
		s := NewStager(dir)
		boom := errors.New("decode failed")

		err := s.Do(fileHeader(t, "a.webm", []byte("x")), func(tmp *TempFile) error {
			return boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("panic", func(t *testing.T) {
		dir := t.TempDir()
		s := NewStager(dir)

		assert.Panics(t, func() {
			_ = s.Do(fileHeader(t, "a.mp4", []byte("x")), func(tmp *TempFile) error {
				panic("backend exploded")
			})
		})
		assert.Empty(t, dirEntries(t, dir))
	})

	t.Run("invalid input never calls fn", func(t *testing.T) {
		s := NewStager(t.TempDir())
		called := false
		err := s.Do(nil, func(tmp *TempFile) error {
			called = true
			return nil
		})
		assert.ErrorIs(t, err, ErrNoFile)
		assert.False(t, called)
	})
}

func TestStagerDoWithNameOnlyCheck(t *testing.T) {
	dir := t.TempDir()
	s := NewStager(dir)

	for _, name := range []string{"voice.flac", "README"} {
		var staged string
		err := s.DoWith(fileHeader(t, name, []byte("x")), ValidateName, func(tmp *TempFile) error {
			staged = filepath.Base(tmp.Path)
			return nil
		})
		require.NoError(t, err, name)
		assert.False(t, strings.HasSuffix(staged, "."), staged)
		assert.Equal(t, strings.ToLower(filepath.Ext(name)), filepath.Ext(staged))
	}
	assert.Empty(t, dirEntries(t, dir))

	assert.ErrorIs(t, ValidateName(nil), ErrNoFile)
	assert.ErrorIs(t, ValidateName(&multipart.FileHeader{Filename: " "}), ErrEmptyFilename)
	assert.ErrorIs(t, s.Do(fileHeader(t, "voice.flac", []byte("x")), func(tmp *TempFile) error { return nil }), ErrUnsupportedFormat)
}

func TestStagerDoKeepsResultWhenRemovalFails(t *testing.T) {
	s := NewStager(t.TempDir())

	err := s.Do(fileHeader(t, "a.wav", []byte("x")), func(tmp *TempFile) error {
		// 用非空目录占住路径，使删除失败
		require.NoError(t, os.Remove(tmp.Path))
		require.NoError(t, os.Mkdir(tmp.Path, 0o755))
		return os.WriteFile(filepath.Join(tmp.Path, "keep"), []byte("x"), 0o600)
	})
	assert.NoError(t, err)
}

func TestStagerDefaultDir(t *testing.T) {
	assert.Equal(t, os.TempDir(), NewStager("").Dir())
}
