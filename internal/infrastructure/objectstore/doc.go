// Package objectstore issues presigned URLs for device media held in an
// S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
//
// The relay never proxies media bytes. Devices upload directly with a
// presigned PUT URL and controllers download with a presigned GET URL.
// All object keys live under KeyPrefix.
//
// # Usage
//
//	store, err := objectstore.New(cfg.Storage)
//	if !store.IsConfigured() {
//	    // answer STORAGE_NOT_CONFIGURED
//	}
//	u, err := store.PresignUpload(ctx, "photos/<device>/img.jpg", 0)
//
// Presigning is computed locally when a region is configured; no request
// reaches the bucket.
package objectstore
