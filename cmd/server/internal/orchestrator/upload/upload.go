// Package upload stages uploaded audio files on local disk for the duration of one request.
package upload

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/houzhh15/whisper-gateway/pkg/logger"
)

var (
	// ErrNoFile is returned when the request carries no audio file field.
	ErrNoFile = errors.New("no audio file provided")
	// ErrEmptyFilename is returned when the file field has an empty filename.
	ErrEmptyFilename = errors.New("empty filename")
	// ErrUnsupportedFormat is returned when the extension is not in the allow-list.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// AllowedExtensions lists the audio containers accepted for upload (lower case, no dot).
var AllowedExtensions = []string{"wav", "mp3", "mp4", "mpeg", "mpga", "m4a", "webm", "ogg"}

var allowed = func() map[string]struct{} {
	m := make(map[string]struct{}, len(AllowedExtensions))
	for _, ext := range AllowedExtensions {
		m[ext] = struct{}{}
	}
	return m
}()

// extension returns the lower-cased extension of name without the leading dot.
func extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// AllowedFile reports whether name has an allow-listed extension (case-insensitive).
func AllowedFile(name string) bool {
	_, ok := allowed[extension(name)]
	return ok
}

// Check inspects a file header before anything is written to disk.
type Check func(fh *multipart.FileHeader) error

// ValidateName only requires a file with a non-empty name; any extension is accepted.
func ValidateName(fh *multipart.FileHeader) error {
	if fh == nil {
		return ErrNoFile
	}
	if strings.TrimSpace(fh.Filename) == "" {
		return ErrEmptyFilename
	}
	return nil
}

// Validate checks a multipart file header against the extension allow-list
// without touching its content.
func Validate(fh *multipart.FileHeader) error {
	if err := ValidateName(fh); err != nil {
		return err
	}
	if !AllowedFile(fh.Filename) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, fh.Filename)
	}
	return nil
}

// TempFile is a staged upload. Release must be called once the file is no longer needed.
type TempFile struct {
	Path     string // location on disk
	Filename string // original client filename
}

// Release removes the staged file. Removing an already removed file is not an error.
func (t *TempFile) Release() error {
	if t == nil || t.Path == "" {
		return nil
	}
	if err := os.Remove(t.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove temp file: %w", err)
	}
	return nil
}

// Stager writes uploads into a temp directory under unique names.
type Stager struct {
	dir string
}

// NewStager creates a Stager writing into dir; an empty dir means os.TempDir().
func NewStager(dir string) *Stager {
	return &Stager{dir: dir}
}

// Dir returns the directory uploads are staged into.
func (s *Stager) Dir() string {
	if s.dir == "" {
		return os.TempDir()
	}
	return s.dir
}

// Receive validates fh against the allow-list and copies its content to a uniquely named file.
// The original extension is kept so backends can recognise the container.
func (s *Stager) Receive(fh *multipart.FileHeader) (*TempFile, error) {
	return s.ReceiveWith(fh, Validate)
}

// ReceiveWith is Receive with a caller-supplied check.
func (s *Stager) ReceiveWith(fh *multipart.FileHeader, check Check) (*TempFile, error) {
	if err := check(fh); err != nil {
		return nil, err
	}

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	name := "upload-" + uuid.NewString()
	if ext := extension(fh.Filename); ext != "" {
		name += "." + ext
	}
	path := filepath.Join(s.Dir(), name)
	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	tmp := &TempFile{Path: path, Filename: fh.Filename}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		tmp.Release()
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := dst.Close(); err != nil {
		tmp.Release()
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	return tmp, nil
}

// Do stages fh, runs fn with the staged path and removes the file on every exit path,
// including when fn panics. The result is fn's; a failed removal is only logged.
func (s *Stager) Do(fh *multipart.FileHeader, fn func(tmp *TempFile) error) error {
	return s.DoWith(fh, Validate, fn)
}

// DoWith is Do with a caller-supplied check.
func (s *Stager) DoWith(fh *multipart.FileHeader, check Check, fn func(tmp *TempFile) error) error {
	tmp, err := s.ReceiveWith(fh, check)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := tmp.Release(); relErr != nil {
			logger.L().Warn("temp file not removed", "path", tmp.Path, "error", relErr)
		}
	}()
	return fn(tmp)
}
