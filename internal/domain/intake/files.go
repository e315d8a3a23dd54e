package intake

import (
	"errors"
	"fmt"
	"io"

	"github.com/ehr/intake/internal/platform/blobstore"
)

// MaxFileSize is the largest attachment accepted (10 MiB).
const MaxFileSize = blobstore.MaxFileSize

var ErrFileIndexOutOfRange = errors.New("file index out of range")

// FileCandidate is a file the user selected for upload.
type FileCandidate struct {
	Name        string
	Size        int64
	ContentType string
	Content     io.Reader
}

// UploadedFile is an accepted attachment whose bytes are staged in the blob
// store.
type UploadedFile struct {
	Name        string `json:"name"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
	BlobID      string `json:"blob_id"`
}

// Accepts reports whether a candidate meets the size and type rules.
func Accepts(c FileCandidate) bool {
	return c.Size >= 0 && c.Size <= MaxFileSize && blobstore.AllowedContentTypes[c.ContentType]
}

// IngestFiles splits the selection into accepted candidates, in input order,
// and a count of rejected ones. Duplicates are kept.
func IngestFiles(selected []FileCandidate) ([]FileCandidate, int) {
	accepted := make([]FileCandidate, 0, len(selected))
	rejected := 0
	for _, c := range selected {
		if Accepts(c) {
			accepted = append(accepted, c)
		} else {
			rejected++
		}
	}
	return accepted, rejected
}

// RemoveFile returns a new list without the entry at index. An out-of-range
// index returns ErrFileIndexOutOfRange and the list unchanged.
func RemoveFile(files []UploadedFile, index int) ([]UploadedFile, UploadedFile, error) {
	if index < 0 || index >= len(files) {
		return files, UploadedFile{}, fmt.Errorf("%w: %d (have %d)", ErrFileIndexOutOfRange, index, len(files))
	}
	removed := files[index]
	out := make([]UploadedFile, 0, len(files)-1)
	out = append(out, files[:index]...)
	out = append(out, files[index+1:]...)
	return out, removed, nil
}
