package integration

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/client"
)

func TestStatusEndpoint(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var status api.ServiceStatus
	decodeJSON(t, resp, &status)
	if status.Status != "online" {
		t.Errorf("status = %q, want online", status.Status)
	}
	if status.DefaultTimeout != 30 {
		t.Errorf("default_timeout = %d, want 30", status.DefaultTimeout)
	}
}

func TestHealthEndpoint(t *testing.T) {
	resp := getURL(t, testEnv.BaseURL()+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var health api.HealthStatus
	decodeJSON(t, resp, &health)
	if health.Status != "healthy" {
		t.Errorf("status = %q, want healthy", health.Status)
	}
	if !strings.HasPrefix(health.PythonVersion, "3.") {
		t.Errorf("python_version = %q", health.PythonVersion)
	}
	if health.Capacity != 2 {
		t.Errorf("capacity = %d, want 2", health.Capacity)
	}
	if !health.ObjectStorage {
		t.Error("object_storage = false, want true")
	}
	if !health.GPUAvailable && health.GPUName != "N/A" {
		t.Errorf("gpu_name = %q without a GPU, want N/A", health.GPUName)
	}
}

func TestInfoEndpoint(t *testing.T) {
	info, err := client.New(testEnv.BaseURL()).Info(context.Background())
	if err != nil && strings.Contains(err.Error(), "listing installed packages") {
		t.Skip("pip not available on this host")
	}
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if !strings.HasPrefix(info.PythonVersion, "3.") {
		t.Errorf("python_version = %q", info.PythonVersion)
	}
	if info.InstalledPackages == nil {
		t.Error("installed_packages is nil")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	execute(t, map[string]any{"code": "pass"})

	body := readBody(t, getURL(t, testEnv.BaseURL()+"/metrics"))
	for _, metric := range []string{"pyexec_requests_total", "pyexec_executions_total"} {
		if !strings.Contains(body, metric) {
			t.Errorf("metrics output missing %s", metric)
		}
	}
}
