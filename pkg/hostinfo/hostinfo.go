// Package hostinfo probes the host runtime: GPU presence through nvidia-smi,
// the Python interpreter version, installed pip packages and the soundfont.
package hostinfo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/debug"
)

// CommandRunner runs a command and returns its stdout.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs real processes.
type ExecRunner struct{}

func (ExecRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Config configures a Prober.
type Config struct {
	Python        string
	NvidiaSMI     string
	SoundfontPath string
	CacheTTL      time.Duration // package list cache, default 5m
	ProbeTimeout  time.Duration // per command, default 10s
}

// GPU describes the first visible GPU.
type GPU struct {
	Available   bool
	Name        string
	Count       int
	CUDAVersion string
}

// Prober answers host questions, caching the expensive ones. The GPU,
// interpreter and package caches are guarded separately so a slow pip
// listing never holds up a health check.
type Prober struct {
	cfg    Config
	runner CommandRunner
	now    func() time.Time

	gpuMu sync.Mutex
	gpu   *GPU
	gpuAt time.Time
	gpuOK bool // false when the last probe failed transiently

	pyMu          sync.Mutex
	pythonVersion string

	pkgMu      sync.Mutex
	packages   []api.Package
	packagesAt time.Time
}

// failureTTL bounds how long a transient nvidia-smi failure is remembered.
const failureTTL = 15 * time.Second

// pythonVersionScript prints the interpreter's full sys.version string.
const pythonVersionScript = "import sys; print(sys.version)"

var cudaVersionPattern = regexp.MustCompile(`CUDA Version:\s*([0-9.]+)`)

// New creates a Prober. A nil runner uses ExecRunner.
func New(cfg Config, runner CommandRunner) *Prober {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.NvidiaSMI == "" {
		cfg.NvidiaSMI = "nvidia-smi"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 10 * time.Second
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Prober{cfg: cfg, runner: runner, now: time.Now}
}

// output runs a probe command. Probes outlive the request that triggered
// them because their answers are shared through the caches.
func (p *Prober) output(ctx context.Context, name string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ProbeTimeout)
	defer cancel()
	out, err := p.runner.Output(ctx, name, args...)
	if err != nil {
		debug.Log("hostinfo", "probe failed", "cmd", name, "args", args, "error", err)
	}
	return out, err
}

// GPU queries nvidia-smi. A missing binary or an empty device list means no
// GPU and is cached for CacheTTL like a positive answer. Other failures are
// only remembered for a few seconds so a driver that is still initialising
// is picked up on a later call.
func (p *Prober) GPU(ctx context.Context) GPU {
	p.gpuMu.Lock()
	defer p.gpuMu.Unlock()
	if p.gpu != nil {
		ttl := p.cfg.CacheTTL
		if !p.gpuOK && failureTTL < ttl {
			ttl = failureTTL
		}
		if p.now().Sub(p.gpuAt) < ttl {
			return *p.gpu
		}
	}
	gpu, err := p.probeGPU(ctx)
	p.gpu = &gpu
	p.gpuAt = p.now()
	p.gpuOK = err == nil
	return gpu
}

// probeGPU returns an error only for failures worth retrying soon.
func (p *Prober) probeGPU(ctx context.Context) (GPU, error) {
	out, err := p.output(ctx, p.cfg.NvidiaSMI, "--query-gpu=name", "--format=csv,noheader")
	if err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return GPU{}, nil
		}
		return GPU{}, err
	}
	var names []string
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names = append(names, line)
		}
	}
	if len(names) == 0 {
		return GPU{}, nil
	}
	gpu := GPU{Available: true, Name: names[0], Count: len(names)}

	// The CUDA driver version only appears in the default banner.
	if banner, err := p.output(ctx, p.cfg.NvidiaSMI); err == nil {
		if m := cudaVersionPattern.FindSubmatch(banner); m != nil {
			gpu.CUDAVersion = string(m[1])
		}
	}
	return gpu, nil
}

// PythonVersion returns the interpreter's sys.version, e.g.
// "3.11.9 (main, Apr  6 2024, 17:59:24) [GCC 11.4.0]". A successful answer
// is cached for the process lifetime.
func (p *Prober) PythonVersion(ctx context.Context) string {
	p.pyMu.Lock()
	defer p.pyMu.Unlock()
	if p.pythonVersion != "" {
		return p.pythonVersion
	}
	out, err := p.output(ctx, p.cfg.Python, "-c", pythonVersionScript)
	if err != nil {
		return "unknown"
	}
	p.pythonVersion = strings.TrimSpace(string(out))
	return p.pythonVersion
}

// Packages returns installed pip packages sorted by name, cached for CacheTTL.
func (p *Prober) Packages(ctx context.Context) ([]api.Package, error) {
	p.pkgMu.Lock()
	defer p.pkgMu.Unlock()
	if p.packages != nil && p.now().Sub(p.packagesAt) < p.cfg.CacheTTL {
		return p.packages, nil
	}

	out, err := p.output(ctx, p.cfg.Python, "-m", "pip", "list", "--format=json", "--disable-pip-version-check")
	if err != nil {
		return nil, fmt.Errorf("listing packages: %w", err)
	}
	var pkgs []api.Package
	if err := json.Unmarshal(out, &pkgs); err != nil {
		return nil, fmt.Errorf("parsing pip output: %w", err)
	}
	for i := range pkgs {
		pkgs[i].Name = strings.ToLower(pkgs[i].Name)
	}
	sort.Slice(pkgs, func(i, j int) bool { return pkgs[i].Name < pkgs[j].Name })

	p.packages = pkgs
	p.packagesAt = p.now()
	return pkgs, nil
}

// SoundfontPresent reports whether the configured soundfont is a regular file.
func (p *Prober) SoundfontPresent() bool {
	if p.cfg.SoundfontPath == "" {
		return false
	}
	info, err := os.Stat(p.cfg.SoundfontPath)
	return err == nil && info.Mode().IsRegular()
}

// SoundfontPath returns the configured path, or "Not set".
func (p *Prober) SoundfontPath() string {
	if p.cfg.SoundfontPath == "" {
		return "Not set"
	}
	return p.cfg.SoundfontPath
}

// Info converts a GPU probe into its API representation.
func (g GPU) Info() api.GPUInfo {
	info := api.GPUInfo{CUDAAvailable: g.Available, GPUCount: g.Count}
	if g.Available {
		name := g.Name
		info.GPUName = &name
		if g.CUDAVersion != "" {
			v := g.CUDAVersion
			info.CUDAVersion = &v
		}
	} else {
		info.Note = "nvidia-smi not available or no GPU detected"
	}
	return info
}
