package service

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/noah-isme/autograde-api/internal/observability"
)

var (
	// ErrUploadTooLarge indicates a file exceeded the configured limit.
	ErrUploadTooLarge = errors.New("file exceeds maximum allowed size")
	// ErrNoFiles indicates the request carried no files at all.
	ErrNoFiles = newValidationError("at least one file is required")
)

// ReadUploads loads multipart files into memory, rejecting the whole request
// when any file exceeds maxSizeMB.
func ReadUploads(headers []*multipart.FileHeader, maxSizeMB int) ([]IntakeFile, error) {
	if len(headers) == 0 {
		return nil, ErrNoFiles
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 25
	}
	maxSize := int64(maxSizeMB) * 1024 * 1024

	files := make([]IntakeFile, 0, len(headers))
	for _, header := range headers {
		if header.Size > maxSize {
			observability.IntakeRejectedFiles().Inc()
			return nil, fmt.Errorf("%s: %w", header.Filename, ErrUploadTooLarge)
		}

		content, err := readLimited(header, maxSize)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", header.Filename, err)
		}

		files = append(files, IntakeFile{
			Name:        cleanUploadName(header.Filename),
			ContentType: header.Header.Get("Content-Type"),
			Content:     content,
		})
	}
	return files, nil
}

func readLimited(header *multipart.FileHeader, maxSize int64) ([]byte, error) {
	handle, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, maxSize+1)); err != nil {
		return nil, err
	}
	if int64(buf.Len()) > maxSize {
		observability.IntakeRejectedFiles().Inc()
		return nil, ErrUploadTooLarge
	}
	return buf.Bytes(), nil
}

// cleanUploadName keeps the client's file name without any directory part.
func cleanUploadName(name string) string {
	name = strings.TrimSpace(filepath.Base(strings.ReplaceAll(name, "\\", "/")))
	if name == "" || name == "." || name == "/" {
		return fmt.Sprintf("upload-%d", time.Now().Unix())
	}
	return name
}

// archiveName builds a storage-safe object name for an archived submission.
func archiveName(batchID, name string) string {
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = "file"
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		ext = ".bin"
	}
	return batchID + "/" + base + ext
}
