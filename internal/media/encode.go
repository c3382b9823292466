// Package media reads user-supplied files and prepares them for model APIs.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
)

// ErrNotFound is returned when an input file does not exist.
var ErrNotFound = fmt.Errorf("media file not found: %w", fs.ErrNotExist)

const defaultImageMIME = "image/jpeg"

// Exists reports whether path names a readable regular file.
func Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Encode returns the standard base64 encoding of the file's bytes.
func Encode(path string) (string, error) {
	data, err := read(path)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// DataURI returns the file as a data: URI. The MIME type is sniffed from
// the content and falls back to image/jpeg.
func DataURI(path string) (string, error) {
	data, err := read(path)
	if err != nil {
		return "", err
	}
	mime := http.DetectContentType(data)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = defaultImageMIME
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func read(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("encode %s: %w", path, ErrNotFound)
		}
		return nil, fmt.Errorf("encode %s: %w", path, err)
	}
	return data, nil
}
