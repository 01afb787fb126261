// Package photos is the facade over the photo storage drivers. Callers
// depend on photos.Store and never import internal/infra/photos directly.
package photos

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"herdbook/internal/photos/core"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

type (
	// Driver identifies a photo backend driver.
	Driver = core.Driver
	// PutOptions configures a photo write.
	PutOptions = core.PutOptions
	// URLOptions configures URL generation.
	URLOptions = core.URLOptions
	// Info describes stored photo metadata.
	Info = core.Info
	// Store is the interface every photo backend implements.
	Store = core.Store
)

const (
	// DriverFilesystem is the local filesystem driver.
	DriverFilesystem = core.DriverFilesystem
	// DriverS3 is the S3-compatible driver.
	DriverS3 = core.DriverS3
	// DriverMemory is the in-memory driver.
	DriverMemory = core.DriverMemory
)

var (
	// ErrUnsupported indicates an operation isn't supported by a driver.
	ErrUnsupported = core.ErrUnsupported
	// ErrNotFound indicates no photo is stored under the key.
	ErrNotFound = core.ErrNotFound
	// ErrExists indicates the key is already taken.
	ErrExists = core.ErrExists
	// ErrInvalidKey indicates a malformed key.
	ErrInvalidKey = core.ErrInvalidKey
	// ErrNotImage is returned when uploaded bytes are not a recognised image.
	ErrNotImage = errors.New("photos: content is not an image")
)

// Image describes sniffed image content.
type Image struct {
	ContentType string
	Extension   string
}

// DetectImage sniffs data and rejects anything that is not an image.
func DetectImage(data []byte) (Image, error) {
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty payload", ErrNotImage)
	}
	mt := mimetype.Detect(data)
	contentType := mt.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	if !strings.HasPrefix(contentType, "image/") {
		return Image{}, fmt.Errorf("%w: detected %s", ErrNotImage, contentType)
	}
	ext := mt.Extension()
	if ext == "" {
		ext = "." + strings.TrimPrefix(contentType, "image/")
	}
	return Image{ContentType: contentType, Extension: ext}, nil
}

// Key builds the storage key of the index-th photo of an animal.
func Key(serial string, index int, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("animals/%s/%d%s", serial, index, ext)
}

// AnimalPrefix is the key prefix under which an animal's photos live.
func AnimalPrefix(serial string) string {
	return "animals/" + serial + "/"
}

// PutImage sniffs data, then stores it as the index-th photo of serial.
func PutImage(ctx context.Context, store Store, serial string, index int, data []byte, metadata map[string]string) (Info, error) {
	img, err := DetectImage(data)
	if err != nil {
		return Info{}, err
	}
	return store.Put(ctx, Key(serial, index, img.Extension), bytes.NewReader(data), PutOptions{
		ContentType: img.ContentType,
		Metadata:    metadata,
	})
}

// DecodeInline decodes a base64 photo, accepting either bare base64 or a
// `data:<type>;base64,<payload>` URL.
func DecodeInline(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 || !strings.Contains(s[:comma], ";base64") {
			return nil, fmt.Errorf("%w: unsupported data url", ErrNotImage)
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotImage, err)
	}
	return data, nil
}
