// Package config loads the environment-variable-driven configuration for
// the VIPSPatchbay service: a typed struct populated at startup and
// validated once, before any component is constructed from it.
package config

import (
	"fmt"
	"os"
)

// Database holds the connection parameters for the MySQL instance backing
// the Cache Index and Block Graph.
type Database struct {
	Name     string
	Addr     string
	Username string
	Password string
}

// Config is the full set of environment-derived settings the service needs
// to run. Fields are plain values, not pointers: none of them are optional
// secrets gated behind a flag set -- this service has no auth model to
// configure.
type Config struct {
	ServicePort string

	Database Database

	// ImageStoreRoot is the root of the on-disk Image Store (IS); it must
	// contain, or be permitted to create, cached_images/ and thumbnails/.
	ImageStoreRoot string

	// ThumbnailerCommand is the external binary invoked by the Thumbnail
	// Service to generate resized previews.
	ThumbnailerCommand string
}

// Load reads the VIPSPatchbay configuration from the environment and
// validates it. It fails fast: any missing required value is a startup
// error, not a runtime one.
func Load() (*Config, error) {

	cfg := &Config{
		ServicePort: getEnvDefault("VIPS_SERVICE_PORT", ":8443"),

		Database: Database{
			Name:     os.Getenv("VIPS_DB_NAME"),
			Addr:     os.Getenv("VIPS_DB_ADDR"),
			Username: os.Getenv("VIPS_DB_USERNAME"),
			Password: os.Getenv("VIPS_DB_PASSWORD"),
		},

		ImageStoreRoot:     getEnvDefault("VIPS_IMAGE_STORE_ROOT", "./image_store"),
		ThumbnailerCommand: getEnvDefault("VIPS_THUMBNAILER_COMMAND", "vipsthumbnail"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {

	if c.Database.Name == "" {
		return fmt.Errorf("VIPS_DB_NAME is required")
	}

	if c.Database.Addr == "" {
		return fmt.Errorf("VIPS_DB_ADDR is required")
	}

	if c.Database.Username == "" {
		return fmt.Errorf("VIPS_DB_USERNAME is required")
	}

	if c.ImageStoreRoot == "" {
		return fmt.Errorf("VIPS_IMAGE_STORE_ROOT is required")
	}

	if c.ThumbnailerCommand == "" {
		return fmt.Errorf("VIPS_THUMBNAILER_COMMAND is required")
	}

	return nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
