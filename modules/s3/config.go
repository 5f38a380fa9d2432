package s3

import (
	"fmt"
	"strconv"
)

// Config locates the bucket a run's data is written to.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	Bucket    string
	// Prefix is prepended to every object key.
	Prefix string
	UseSSL bool
}

// ConfigFromOptions reads a Config from string options such as those given
// with -store-opt on the command line.
func ConfigFromOptions(opts map[string]string) (Config, error) {
	cfg := Config{
		Endpoint:  opts["endpoint"],
		AccessKey: opts["access_key"],
		SecretKey: opts["secret_key"],
		Region:    opts["region"],
		Bucket:    opts["bucket"],
		Prefix:    opts["prefix"],
	}
	if raw, ok := opts["use_ssl"]; ok {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return Config{}, fmt.Errorf("s3 store: invalid use_ssl %q: %w", raw, err)
		}
		cfg.UseSSL = b
	}
	return cfg, cfg.Validate()
}

// Validate reports missing required fields.
func (c Config) Validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("s3 store: endpoint is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("s3 store: bucket is required")
	}
	if c.AccessKey == "" || c.SecretKey == "" {
		return fmt.Errorf("s3 store: access_key and secret_key are required")
	}
	return nil
}
