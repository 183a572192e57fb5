// Package storage keeps payment artefacts (PIX QR code images) that are
// served back to the payer by URL.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"regexp"
	"strings"
)

type PutInput struct {
	// Filename names the object. The same name always maps to the same key,
	// so a retried upload replaces the earlier one.
	Filename    string
	ContentType string
	Size        int64
}

type PutResult struct {
	Key string
	URL string
}

type Storage interface {
	Put(ctx context.Context, r io.Reader, in PutInput) (PutResult, error)
	Delete(ctx context.Context, key string) error
}

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// objectKey turns a caller supplied filename into a flat, safe key.
func objectKey(filename string) string {
	base := filepath.Base(filename)
	ext := safeExt(base)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Trim(unsafeChars.ReplaceAllString(stem, "-"), "-")
	if stem == "" || stem == "." {
		stem = "object"
	}
	return stem + ext
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".png", ".jpg", ".jpeg", ".svg":
		return ext
	default:
		return ""
	}
}
