package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrNetworkFilesystem is returned when state would live on a network mount.
// SQLite locking and flock are both unreliable there.
var ErrNetworkFilesystem = errors.New("network filesystem")

// errFSUnknown means the platform cannot report a filesystem type.
var errFSUnknown = errors.New("filesystem type unavailable")

var remoteFS = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"nfs4":   true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

// RequireLocal checks that path, or its nearest existing ancestor, is on a
// local filesystem. what names the artefact in the error ("database",
// "controller lock").
func RequireLocal(path, what string) error {
	return requireLocal(path, what, filesystemType)
}

// FilesystemOf reports the filesystem type holding path. Used for diagnostics.
func FilesystemOf(path string) (string, error) {
	existing, err := existingAncestor(path)
	if err != nil {
		return "", err
	}
	return filesystemType(existing)
}

func requireLocal(path, what string, probe func(string) (string, error)) error {
	if path == "" {
		return fmt.Errorf("%s path is empty", what)
	}
	existing, err := existingAncestor(path)
	if err != nil {
		return fmt.Errorf("resolve %s path %q: %w", what, path, err)
	}

	fsType, err := probe(existing)
	if errors.Is(err, errFSUnknown) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isRemote(fsType) {
		return fmt.Errorf("%w: %s %q is on %s; point state.path at a local disk",
			ErrNetworkFilesystem, what, path, fsType)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", fmt.Errorf("stat %q: %w", p, err)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing parent for %q", path)
		}
		p = parent
	}
}

func isRemote(fsType string) bool {
	return remoteFS[strings.ToLower(strings.TrimSpace(fsType))]
}
