package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrated/pyexec/pkg/api"
	artifactmem "github.com/narrated/pyexec/pkg/artifact/memory"
	"github.com/narrated/pyexec/pkg/hostinfo"
)

func TestStatus(t *testing.T) {
	svc := newService(t, &fakeRunner{}, nil, nil)

	st := svc.Status(context.Background())
	assert.Equal(t, "online", st.Status)
	assert.Equal(t, "GPU Code Execution API", st.Service)
	assert.Equal(t, 60, st.DefaultTimeout)
}

func TestHealth(t *testing.T) {
	prober := &fakeProber{
		gpu:   hostinfo.GPU{Available: true, Name: "NVIDIA L4", Count: 1, CUDAVersion: "12.4"},
		sf:    true,
		pyVer: "3.11.9",
	}
	svc, err := New(&fakeRunner{capacity: 4, inFlight: 1}, prober, artifactmem.New("narrated"), nil, Config{DefaultTimeout: 3600}, nil)
	require.NoError(t, err)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.started = start
	svc.now = func() time.Time { return start.Add(90 * time.Second) }

	h := svc.Health(context.Background())
	assert.Equal(t, &api.HealthStatus{
		Status:           "healthy",
		GPUAvailable:     true,
		GPUName:          "NVIDIA L4",
		PythonVersion:    "3.11.9",
		TimeoutSetting:   3600,
		SoundfontPresent: true,
		ObjectStorage:    true,
		Capacity:         4,
		CurrentLoad:      1,
		UptimeSeconds:    90,
	}, h)
}

func TestHealthWithoutGPU(t *testing.T) {
	svc := newService(t, &fakeRunner{}, nil, nil)

	h := svc.Health(context.Background())
	assert.False(t, h.GPUAvailable)
	assert.Equal(t, "N/A", h.GPUName)
	assert.False(t, h.ObjectStorage)
}

func TestInfo(t *testing.T) {
	prober := &fakeProber{
		pkgs:   []api.Package{{Name: "mido", Version: "1.3.2"}, {Name: "torch", Version: "2.3.0"}},
		pyVer:  "3.11.9",
		sfPath: "/usr/share/sounds/sf2/FluidR3_GM.sf2",
	}
	svc, err := New(&fakeRunner{}, prober, nil, nil, Config{DefaultTimeout: 600}, nil)
	require.NoError(t, err)

	info, err := svc.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "3.11.9", info.PythonVersion)
	assert.Len(t, info.InstalledPackages, 2)
	assert.False(t, info.GPUInfo.CUDAAvailable)
	assert.Equal(t, map[string]any{
		"PYTHON_EXECUTE_TIMEOUT": 600,
		"SOUNDFONT_PATH":         "/usr/share/sounds/sf2/FluidR3_GM.sf2",
	}, info.Environment)
}

func TestInfoPackageError(t *testing.T) {
	svc, err := New(&fakeRunner{}, &fakeProber{pkgErr: errors.New("pip missing")}, nil, nil, Config{DefaultTimeout: 60}, nil)
	require.NoError(t, err)

	_, err = svc.Info(context.Background())
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, api.ErrorTypeServerError, apiErr.Type)
}
