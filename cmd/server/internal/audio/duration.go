// Package audio reads container metadata from staged audio files.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
)

// ErrNotWAV is returned when the file is not a readable RIFF/WAVE container.
var ErrNotWAV = errors.New("not a valid wav file")

// WAVDuration returns the duration in seconds declared by a WAV file header.
func WAVDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open audio: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return 0, ErrNotWAV
	}
	d, err := dec.Duration()
	if err != nil {
		return 0, fmt.Errorf("failed to read wav duration: %w", err)
	}
	return d.Seconds(), nil
}

// ProbeDuration returns the duration of a local audio file when its container can be read
// without decoding, and false otherwise. Only WAV is probed.
func ProbeDuration(path string) (float64, bool) {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return 0, false
	}
	seconds, err := WAVDuration(path)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return seconds, true
}
