package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/listingbot/internal/domain"
)

// AssetRepository publishes approved banners as public objects. It is the
// S3 alternative to the GitHub repository backend.
type AssetRepository struct {
	uploader   *manager.Uploader
	bucket     string
	publicBase string
}

// NewAssetRepository publishes into c's bucket; URLs are built from
// publicBase.
func NewAssetRepository(c *Client, publicBase string) *AssetRepository {
	return &AssetRepository{
		uploader:   manager.NewUploader(c.s3),
		bucket:     c.bucket,
		publicBase: publicBase,
	}
}

// Publish uploads data to path and returns its public URL with the object
// ETag as revision.
func (a *AssetRepository) Publish(ctx context.Context, path string, data []byte) (domain.Asset, error) {
	out, err := a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(a.bucket),
		Key:          aws.String(path),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String("image/png"),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return domain.Asset{}, fmt.Errorf("s3blob: publish %s: %w", path, err)
	}
	return domain.Asset{
		URL:      joinURL(a.publicBase, path),
		Revision: strings.Trim(aws.ToString(out.ETag), `"`),
	}, nil
}

var _ domain.AssetRepository = (*AssetRepository)(nil)
