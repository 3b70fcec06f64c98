package service

import "github.com/narrated/pyexec/pkg/api"

// UploadScope is required of scoped credentials that request uploads.
const UploadScope = "upload"

// ServiceName is reported by GET /.
const ServiceName = "GPU Code Execution API"

// Config holds configuration for the service.
type Config struct {
	// DefaultTimeout is the execution timeout in seconds and the ceiling
	// for requested timeouts.
	DefaultTimeout int

	// UploadPrefix is the object key prefix used when a request does not
	// set upload_prefix.
	UploadPrefix string

	// UploadConcurrency bounds parallel uploads per execution (default 4).
	UploadConcurrency int

	// Validation limits request sizes.
	Validation api.ValidationConfig
}

func (c Config) uploadConcurrency() int {
	if c.UploadConcurrency <= 0 {
		return 4
	}
	return c.UploadConcurrency
}
