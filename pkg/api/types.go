package api

import (
	"encoding/json"
	"time"
)

// ExecuteRequest is the body of POST /v1/code/execute/python.
type ExecuteRequest struct {
	// Code is the Python source to execute. Required.
	Code string `json:"code"`

	// Timeout is the requested execution timeout in seconds. Nil or zero
	// selects the server default; larger values are capped at it.
	Timeout *int `json:"timeout,omitempty"`

	// Upload requests that files written to OUTPUT_DIR be copied to
	// object storage after execution.
	Upload bool `json:"upload,omitempty"`

	// UploadPrefix overrides the configured key prefix for uploads.
	UploadPrefix string `json:"upload_prefix,omitempty"`

	// Files maps input file names to base64 content. Files are written to
	// the working directory before the code runs.
	Files map[string]string `json:"files,omitempty"`
}

// ExecuteResponse is the captured outcome of one execution.
//
// Result is the JSON value of the top-level "result" variable, or null when
// the code did not define one. Error is null on success.
type ExecuteResponse struct {
	ID            string          `json:"id"`
	Success       bool            `json:"success"`
	Stdout        string          `json:"stdout"`
	Stderr        string          `json:"stderr"`
	Result        json.RawMessage `json:"result"`
	Error         *string         `json:"error"`
	ExecutionTime float64         `json:"execution_time"`
	Uploads       []Upload        `json:"uploads,omitempty"`
	UploadError   string          `json:"upload_error,omitempty"`
}

// Upload describes one output file copied to object storage.
type Upload struct {
	Key         string `json:"key"`
	Bucket      string `json:"bucket"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type,omitempty"`
}

// ExecutionStatus is the lifecycle state of an execution record.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusTimedOut  ExecutionStatus = "timed_out"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// Terminal reports whether no further transitions are allowed from s.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusTimedOut, ExecutionStatusCancelled:
		return true
	}
	return false
}

// ExecutionRecord is the stored view of an execution.
type ExecutionRecord struct {
	ID          string          `json:"id"`
	Object      string          `json:"object"`
	Status      ExecutionStatus `json:"status"`
	Code        string          `json:"code"`
	Timeout     int             `json:"timeout"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at"`

	// Response is populated once the execution reaches a terminal status.
	Response *ExecuteResponse `json:"response,omitempty"`
}

// ExecutionList holds a paginated list of execution records.
type ExecutionList struct {
	Object  string             `json:"object"`
	Data    []*ExecutionRecord `json:"data"`
	HasMore bool               `json:"has_more"`
	FirstID string             `json:"first_id"`
	LastID  string             `json:"last_id"`
}

// ServiceStatus is the body of GET /.
type ServiceStatus struct {
	Status         string `json:"status"`
	Service        string `json:"service"`
	DefaultTimeout int    `json:"default_timeout"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status           string `json:"status"`
	GPUAvailable     bool   `json:"gpu_available"`
	GPUName          string `json:"gpu_name"`
	PythonVersion    string `json:"python_version"`
	TimeoutSetting   int    `json:"timeout_setting"`
	SoundfontPresent bool   `json:"soundfont_present"`
	ObjectStorage    bool   `json:"object_storage"`
	Capacity         int    `json:"capacity"`
	CurrentLoad      int    `json:"current_load"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// GPUInfo describes the accelerators visible to the host.
type GPUInfo struct {
	CUDAAvailable bool    `json:"cuda_available"`
	CUDAVersion   *string `json:"cuda_version"`
	GPUCount      int     `json:"gpu_count"`
	GPUName       *string `json:"gpu_name"`
	Note          string  `json:"note,omitempty"`
}

// Package is one installed Python distribution.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InstanceInfo is the body of GET /v1/info.
type InstanceInfo struct {
	PythonVersion     string         `json:"python_version"`
	GPUInfo           GPUInfo        `json:"gpu_info"`
	InstalledPackages []Package      `json:"installed_packages"`
	Environment       map[string]any `json:"environment"`
}
