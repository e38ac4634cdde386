package profile

import (
	"strings"
	"testing"
)

func TestPathsAreUnderProfileDir(t *testing.T) {
	dir := Dir("work")
	for name, path := range map[string]string{
		"lock":  LockPath("work"),
		"cache": CacheDBPath("work"),
		"log":   LogPath("work"),
	} {
		if !strings.HasPrefix(path, dir) {
			t.Errorf("%s path %q not under %q", name, path, dir)
		}
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work-1", "a_b", "x"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "UPPER", "has space", "dot.name", strings.Repeat("a", 65)}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}
