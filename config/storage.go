package config

import "strings"

// StorageConfig configures the S3-compatible bucket that receives uploads.
// Uploads are disabled when Bucket is empty.
type StorageConfig struct {
	Bucket        string `env:"BUCKET"`
	Region        string `env:"REGION"          envDefault:"us-east-1"`
	Endpoint      string `env:"ENDPOINT"`
	AccessKey     string `env:"ACCESS_KEY"`
	SecretKey     string `env:"SECRET_KEY"`
	UsePathStyle  bool   `env:"USE_PATH_STYLE"  envDefault:"false"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	KeyPrefix     string `env:"KEY_PREFIX"`
}

// Sanitize trims the free-form fields.
func (s *StorageConfig) Sanitize() {
	s.Bucket = strings.TrimSpace(s.Bucket)
	s.Endpoint = strings.TrimSpace(s.Endpoint)
	s.PublicBaseURL = strings.TrimRight(strings.TrimSpace(s.PublicBaseURL), "/")
	s.KeyPrefix = strings.Trim(strings.TrimSpace(s.KeyPrefix), "/")
}

// Enabled reports whether uploads can be served.
func (s *StorageConfig) Enabled() bool { return s.Bucket != "" }
