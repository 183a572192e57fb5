package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var ErrMisconfigured = errors.New("storage misconfigured")

const (
	DriverLocal = "local"
	DriverS3    = "s3"
)

type Config struct {
	Driver         string
	LocalDir       string
	LocalURLPrefix string
	S3             S3Config
}

// New builds the Storage selected by cfg.Driver (local by default).
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", DriverLocal:
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./storage/qrcodes"
		}
		prefix := cfg.LocalURLPrefix
		if prefix == "" {
			prefix = "/qrcodes"
		}
		return NewLocal(dir, prefix), nil

	case DriverS3:
		if cfg.S3.Region == "" || cfg.S3.Bucket == "" || cfg.S3.PublicBaseURL == "" {
			return nil, fmt.Errorf("%w: region, bucket and public base url are required for s3", ErrMisconfigured)
		}
		if cfg.S3.Prefix == "" {
			cfg.S3.Prefix = "qrcodes"
		}
		return NewS3(ctx, cfg.S3)

	default:
		return nil, fmt.Errorf("%w: unknown driver %q", ErrMisconfigured, cfg.Driver)
	}
}
