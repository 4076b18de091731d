package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// stagingPrefix holds banners that still await final approval.
const stagingPrefix = "banners/staging/"

// BannerStaging keeps generated banners in the bucket between banner
// generation and deployment, so the final review message can link them and
// a restarted process can still deploy them.
type BannerStaging struct {
	w          domain.BlobWriter
	r          domain.BlobReader
	publicBase string
}

// NewBannerStaging stages banners through w and r. publicBase is the
// public URL prefix of the bucket.
func NewBannerStaging(w domain.BlobWriter, r domain.BlobReader, publicBase string) *BannerStaging {
	return &BannerStaging{w: w, r: r, publicBase: publicBase}
}

// StagingPath returns the object key of a market's staged banner.
func StagingPath(marketID string) string {
	return stagingPrefix + domain.SafeID(marketID) + ".png"
}

// Stage stores png for marketID and returns its key and public URL.
func (s *BannerStaging) Stage(ctx context.Context, marketID string, png []byte) (path, url string, err error) {
	path = StagingPath(marketID)
	if err := s.w.Put(ctx, path, bytes.NewReader(png), "image/png"); err != nil {
		return "", "", fmt.Errorf("s3blob: stage banner %s: %w", marketID, err)
	}
	return path, joinURL(s.publicBase, path), nil
}

// Load reads a staged banner back.
func (s *BannerStaging) Load(ctx context.Context, path string) ([]byte, error) {
	rc, err := s.r.Get(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("s3blob: read banner %s: %w", path, err)
	}
	return data, nil
}
