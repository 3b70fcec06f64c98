package api

import (
	"encoding/base64"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxCodeSize  int
	MaxFiles     int
	MaxFileBytes int

	// ReservedNames are base names input files may not take, such as the
	// output directory created in the working directory.
	ReservedNames []string
}

// DefaultValidationConfig returns a ValidationConfig with sensible defaults.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxCodeSize:   1 << 20, // 1MB
		MaxFiles:      32,
		MaxFileBytes:  50 << 20, // 50MB decoded
		ReservedNames: []string{"output"},
	}
}

// ValidateExecuteRequest checks an ExecuteRequest for validity. It returns an
// *APIError describing the first validation failure, or nil if the request is valid.
func ValidateExecuteRequest(req *ExecuteRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Code) == "" {
		return NewInvalidRequestError("code", "No code provided")
	}

	if cfg.MaxCodeSize > 0 && len(req.Code) > cfg.MaxCodeSize {
		return NewInvalidRequestError("code",
			fmt.Sprintf("code exceeds maximum size of %d bytes", cfg.MaxCodeSize))
	}

	if req.Timeout != nil && *req.Timeout < 0 {
		return NewInvalidRequestError("timeout", "timeout must not be negative")
	}

	if strings.Contains(req.UploadPrefix, "..") {
		return NewInvalidRequestError("upload_prefix", "upload_prefix must not contain \"..\"")
	}

	if cfg.MaxFiles > 0 && len(req.Files) > cfg.MaxFiles {
		return NewInvalidRequestError("files",
			fmt.Sprintf("files exceeds maximum of %d entries", cfg.MaxFiles))
	}

	// Files land in the working directory by base name.
	seen := make(map[string]string, len(req.Files))
	for name, content := range req.Files {
		base := filepath.Base(name)
		if base == "." || base == "/" || base == ".." || strings.TrimSpace(base) == "" {
			return NewInvalidRequestError("files", fmt.Sprintf("invalid file name %q", name))
		}
		if slices.Contains(cfg.ReservedNames, base) {
			return NewInvalidRequestError("files", fmt.Sprintf("file name %q is reserved", name))
		}
		if other, ok := seen[base]; ok {
			return NewInvalidRequestError("files",
				fmt.Sprintf("files %q and %q both resolve to %q", other, name, base))
		}
		seen[base] = name
		if cfg.MaxFileBytes > 0 && base64.StdEncoding.DecodedLen(len(content)) > cfg.MaxFileBytes {
			return NewInvalidRequestError("files",
				fmt.Sprintf("file %q exceeds maximum size of %d bytes", name, cfg.MaxFileBytes))
		}
		if _, err := base64.StdEncoding.DecodeString(content); err != nil {
			return NewInvalidRequestError("files", fmt.Sprintf("file %q is not valid base64: %v", name, err))
		}
	}

	return nil
}
