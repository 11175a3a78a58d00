package storage

import (
	"strings"
	"testing"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		filename string
		suffix   string
	}{
		{"plain", "users/7", "notes.pdf", "/notes.pdf"},
		{"traversal", "users/7", "../../secret.txt", "/secret.txt"},
		{"empty", "users/7", "", "/upload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := ObjectKey(tt.prefix, tt.filename)
			if !strings.HasPrefix(key, tt.prefix+"/") {
				t.Errorf("key %q missing prefix", key)
			}
			if !strings.HasSuffix(key, tt.suffix) {
				t.Errorf("key %q missing suffix %q", key, tt.suffix)
			}
			if strings.Contains(key, "..") {
				t.Errorf("key %q escapes prefix", key)
			}
		})
	}

	if ObjectKey("p", "a.txt") == ObjectKey("p", "a.txt") {
		t.Error("keys for repeated uploads collide")
	}
}
