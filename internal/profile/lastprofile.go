package profile

import (
	"os"
	"path/filepath"
	"strings"
)

// LastProfilePath returns the file remembering the last selected profile.
func LastProfilePath() string {
	return filepath.Join(BaseDir(), "last_profile")
}

// LastSelected returns the profile name remembered from the previous run,
// or "" when the file is missing or holds an invalid name.
func LastSelected() string {
	return readLastSelected(LastProfilePath())
}

// RememberSelected records name as the last selected profile. Called once
// per startup after the profile is resolved.
func RememberSelected(name string) error {
	return writeLastSelected(LastProfilePath(), name)
}

func readLastSelected(path string) string {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	name := strings.TrimSpace(string(raw))
	if ValidateName(name) != nil {
		return ""
	}
	return name
}

func writeLastSelected(path, name string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(name+"\n"), 0600)
}
