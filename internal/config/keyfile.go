package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/afero"
)

// ReadKeyFile returns the first line of the key file at path.
// The file must be readable by its owner only.
func ReadKeyFile(fsys afero.Fs, path string) (string, error) {
	if err := VerifyPermissions(fsys, path); err != nil {
		return "", err
	}
	f, err := fsys.Open(path)
	if err != nil {
		return "", fmt.Errorf("error reading key: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	keyb, _, err := r.ReadLine()
	if err != nil {
		return "", fmt.Errorf("error reading line: %w", err)
	}
	key := strings.TrimSpace(string(keyb))
	if key == "" {
		return "", fmt.Errorf("key file %q is empty", path)
	}
	return key, nil
}

// VerifyPermissions checks that path is a regular file with mode 0600 or 0400.
func VerifyPermissions(fsys afero.Fs, path string) error {
	info, err := fsys.Stat(path)
	if err != nil {
		return fmt.Errorf("error checking keyfile permissions: %w", err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("key file %q is not a regular file", path)
	}

	perms := info.Mode().Perm()
	// Error messages will state that we want 0600,
	// but we'll also accept 0400 which is even more restricted.
	// The file might be provided by some secrets managing software as readonly.
	if perms != 0600 && perms != 0400 {
		return fmt.Errorf("invalid permissions for \"%s\": expected file permissions \"-rw-------\"; found \"%s\"", path, fs.FileMode(perms))
	}
	return nil
}

// WriteKeyFile creates path with mode 0600 holding key.
// An existing file is never overwritten.
func WriteKeyFile(fsys afero.Fs, path, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("key cannot be empty")
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("unable to create \"%s\": %w", path, err)
	}
	if _, err := fmt.Fprintln(f, key); err != nil {
		f.Close()
		return fmt.Errorf("unable to write \"%s\": %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("unable to write \"%s\": %w", path, err)
	}
	// make the mode exact regardless of umask
	return fsys.Chmod(path, 0600)
}
