package notify

import (
	"encoding/base64"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// MaxCustomSoundBytes is the size cap for operator-supplied sound clips.
const MaxCustomSoundBytes = 1 << 20

const dataURLMarker = ";base64,"

// LoadCustomSound reads and validates an audio file at selection time and
// returns it as a data-URL plus the original file name. The clip itself is
// what gets persisted, so the source file may move or disappear afterwards.
func LoadCustomSound(path string) (data, name string, err error) {
	name = filepath.Base(path)
	mt := mime.TypeByExtension(filepath.Ext(path))
	if !strings.HasPrefix(mt, "audio/") {
		return "", "", fmt.Errorf("%q is not an audio file", name)
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", "", fmt.Errorf("read sound file: %w", err)
	}
	if info.Size() > MaxCustomSoundBytes {
		return "", "", fmt.Errorf("sound file is %d bytes, limit is 1MB", info.Size())
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return "", "", fmt.Errorf("read sound file: %w", err)
	}
	data = "data:" + mt + dataURLMarker + base64.StdEncoding.EncodeToString(raw)
	return data, name, nil
}

// ValidateCustomSound checks an encoded clip before it reaches the
// preferences store: audio data-URL, decodable, decoded size within cap.
func ValidateCustomSound(data, name string) error {
	if !strings.HasPrefix(data, "data:audio/") {
		return fmt.Errorf("%q is not an audio clip", name)
	}
	idx := strings.Index(data, dataURLMarker)
	if idx < 0 {
		return fmt.Errorf("custom sound %q is not base64 encoded", name)
	}
	raw, err := base64.StdEncoding.DecodeString(data[idx+len(dataURLMarker):])
	if err != nil {
		return fmt.Errorf("custom sound %q: %w", name, err)
	}
	if len(raw) > MaxCustomSoundBytes {
		return fmt.Errorf("custom sound is %d bytes, limit is 1MB", len(raw))
	}
	return nil
}
