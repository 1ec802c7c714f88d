package storage

import "github.com/keilo/catalogd/internal/config"

// NewStorage creates an ObjectStorage instance from application config.
// Parameters:
//   - cfg: storage section of the application configuration.
// Returns:
//   - ObjectStorage: initialized storage client, nil when storage is disabled.
//   - error: non-nil if the storage client cannot be created.
func NewStorage(cfg *config.StorageConfig) (ObjectStorage, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	return NewS3Store(&S3Config{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		UseSSL:    cfg.UseSSL,
		Bucket:    cfg.Bucket,
		Region:    cfg.Region,
		PublicURL: cfg.PublicURL,
	})
}
