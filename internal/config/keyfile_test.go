package config

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
)

func TestReadKeyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	afero.WriteFile(fs, "/key", []byte("  the-token  \nsecond line\n"), 0600)
	afero.WriteFile(fs, "/readonly", []byte("ro-token"), 0400)
	afero.WriteFile(fs, "/open", []byte("token"), 0644)
	afero.WriteFile(fs, "/empty", []byte("\n"), 0600)

	key, err := ReadKeyFile(fs, "/key")
	if err != nil || key != "the-token" {
		t.Fatalf("ReadKeyFile = %q, %v; want the-token", key, err)
	}
	if key, err := ReadKeyFile(fs, "/readonly"); err != nil || key != "ro-token" {
		t.Fatalf("Expected a 0400 file to be accepted; got %q, %v", key, err)
	}
	if _, err := ReadKeyFile(fs, "/open"); err == nil || !strings.Contains(err.Error(), "-rw-------") {
		t.Fatalf("Expected a world readable file to be rejected; got %v", err)
	}
	if _, err := ReadKeyFile(fs, "/empty"); err == nil {
		t.Fatalf("Expected an empty key to be rejected")
	}
}

func TestVerifyPermissionsDirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	fs.MkdirAll("/dir", 0700)
	if err := VerifyPermissions(fs, "/dir"); err == nil {
		t.Fatalf("Expected a directory to be rejected")
	}
}

func TestWriteKeyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	if err := WriteKeyFile(fs, "/key", "new-token\n"); err != nil {
		t.Fatalf("WriteKeyFile failed: %s", err)
	}
	info, err := fs.Stat("/key")
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Fatalf("Expected mode 0600; got %s", perm)
	}
	if key, err := ReadKeyFile(fs, "/key"); err != nil || key != "new-token" {
		t.Fatalf("Expected to read back new-token; got %q, %v", key, err)
	}
	if err := WriteKeyFile(fs, "/key", "other"); err == nil {
		t.Fatalf("Expected an existing key file to be left alone")
	}
	if err := WriteKeyFile(fs, "/blank", "  "); err == nil {
		t.Fatalf("Expected an empty key to be rejected")
	}
}
