package remote

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const sniffLen = 512

var allowedPhotoTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// resolvePhotoPath turns a file:// reference into a filesystem path.
// Relative paths are resolved against dir.
func resolvePhotoPath(uri, dir string) string {
	path := strings.TrimPrefix(uri, "file://")
	if !filepath.IsAbs(path) && dir != "" {
		path = filepath.Join(dir, path)
	}
	return filepath.Clean(path)
}

// readPhoto loads a local photo, rejecting files the server would refuse.
func readPhoto(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, payloadError("photo %s not found", filepath.Base(path))
		}
		return nil, fmt.Errorf("open photo: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat photo: %w", err)
	}
	if maxBytes > 0 && info.Size() > maxBytes {
		return nil, payloadError("photo %s exceeds size limit (%d > %d bytes)", filepath.Base(path), info.Size(), maxBytes)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}

	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	if ct := http.DetectContentType(head); !allowedPhotoTypes[ct] {
		return nil, payloadError("photo %s has unsupported format %s", filepath.Base(path), ct)
	}

	return data, nil
}
