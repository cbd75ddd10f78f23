package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SQLite file locking is unreliable on these.
var remoteFilesystems = map[string]bool{
	"afpfs":  true,
	"cifs":   true,
	"nfs":    true,
	"smbfs":  true,
	"smb2":   true,
	"webdav": true,
}

type fsDetector func(path string) (string, error)

func checkLocalFilesystem(path string, detect fsDetector) error {
	existing, err := closestExisting(path)
	if err != nil {
		return fmt.Errorf("resolve database path %q: %w", path, err)
	}
	fsType, err := detect(existing)
	if err != nil {
		// Unknown platforms are allowed through.
		if errors.Is(err, errFSDetectUnsupported) {
			return nil
		}
		return fmt.Errorf("detect filesystem for %q: %w", existing, err)
	}
	if isRemoteFilesystem(fsType) {
		return fmt.Errorf("database path %q is on network filesystem %q; move state.path to local disk or set state.allow_network_fs", path, fsType)
	}
	return nil
}

func closestExisting(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for candidate := abs; ; {
		_, err := os.Stat(candidate)
		switch {
		case err == nil:
			return candidate, nil
		case !errors.Is(err, os.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(candidate)
		if parent == candidate {
			return "", fmt.Errorf("no existing parent for %q", abs)
		}
		candidate = parent
	}
}

func isRemoteFilesystem(fsType string) bool {
	return remoteFilesystems[strings.ToLower(strings.TrimSpace(fsType))]
}

var errFSDetectUnsupported = errors.New("filesystem detection unsupported")
