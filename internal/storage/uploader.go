package storage

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"regexp"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

var unsafeKeyChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Uploader places uploaded payloads into object storage and returns the
// location each one is reachable at. Image payloads are re-encoded as
// compressed PNG before upload.
type Uploader struct {
	backend       ObjectStorage
	publicBaseURL string
}

// NewUploader constructs an Uploader over the given backend. When
// publicBaseURL is non-empty it replaces the backend-derived URL prefix.
func NewUploader(backend ObjectStorage, publicBaseURL string) *Uploader {
	return &Uploader{
		backend:       backend,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// IsImage reports whether the content type is one of the accepted
// image types for avatars and thumbnails.
func IsImage(contentType string) bool {
	switch contentType {
	case "image/jpeg", "image/jpg", "image/png":
		return true
	}
	return false
}

// Upload stores the payload under a key derived from the uploader's
// identity, the current time, and the original filename, and returns
// the object's public URL.
func (u *Uploader) Upload(ctx context.Context, uploadName, filename string, data []byte, contentType string) (string, error) {
	if IsImage(contentType) {
		recompressed, err := recompressPNG(data)
		if err != nil {
			return "", fmt.Errorf("recompress image: %w", err)
		}
		data = recompressed
		contentType = "image/png"
	}

	key := fmt.Sprintf("%s-%d-%s", uploadName, time.Now().UnixMilli(), sanitizeFilename(filename))
	if err := u.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	if u.publicBaseURL != "" {
		return u.publicBaseURL + "/" + key, nil
	}
	return u.backend.URL(key), nil
}

func recompressPNG(data []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG, imaging.PNGCompressionLevel(png.BestCompression)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func sanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "upload"
	}
	return unsafeKeyChars.ReplaceAllString(name, "_")
}
