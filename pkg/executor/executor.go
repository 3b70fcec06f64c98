// Package executor runs Python snippets in isolated subprocesses.
//
// Each execution gets its own temporary directory. Input files are written
// to the working directory, the snippet runs under an embedded harness that
// reports success, the `result` variable and any error to a status file,
// and files the snippet leaves in OUTPUT_DIR are collected for upload.
// Timeouts kill the whole process group, so child processes spawned by the
// snippet (ffmpeg, fluidsynth) do not outlive it.
package executor

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/debug"
	"github.com/narrated/pyexec/pkg/observability"
)

//go:embed harness.py
var harnessSource []byte

// ErrAtCapacity is returned by Run when every execution slot is in use.
var ErrAtCapacity = errors.New("executor: at capacity")

const (
	harnessDirName = ".pyexec"
	workDirName    = "work"
	statusFileName = "status.json"
	codeFileName   = "snippet.py"
)

// Config configures a Runner.
type Config struct {
	Python             string        // interpreter, default "python3"
	WorkDir            string        // parent for per-execution temp dirs, default os.TempDir()
	OutputDirName      string        // default "output"
	MaxConcurrent      int           // default 4
	MaxOutputFileBytes int64         // 0 = unlimited
	MaxCaptureBytes    int           // per stream, default 16MB
	WaitDelay          time.Duration // grace period for pipes after kill, default 5s
	Env                []string      // extra KEY=VALUE entries for every execution
}

// Job describes a single execution request.
type Job struct {
	ID      string
	Code    string
	Timeout time.Duration
	Files   map[string][]byte // written to the working directory by base name
}

// OutputFile is a regular file found under OUTPUT_DIR after the run.
type OutputFile struct {
	Name string // slash-separated path relative to OUTPUT_DIR
	Path string // absolute path, valid until Result.Close
	Size int64
}

// Result is the outcome of a finished execution. Call Close to remove
// the execution's temporary directory once the outputs are consumed.
type Result struct {
	ID       string
	Status   api.ExecutionStatus
	Success  bool
	Stdout   string
	Stderr   string
	Result   json.RawMessage // nil when the snippet set no `result`
	Error    string
	ExitCode int
	Duration time.Duration
	Outputs  []OutputFile
	Skipped  []string // output files over the size cap

	dir string
}

// Close removes the execution's temporary directory.
func (r *Result) Close() error {
	if r == nil || r.dir == "" {
		return nil
	}
	err := os.RemoveAll(r.dir)
	r.dir = ""
	return err
}

// Response converts the result into its API representation.
func (r *Result) Response() *api.ExecuteResponse {
	resp := &api.ExecuteResponse{
		ID:            r.ID,
		Success:       r.Success,
		Stdout:        r.Stdout,
		Stderr:        r.Stderr,
		Result:        r.Result,
		ExecutionTime: r.Duration.Seconds(),
	}
	if r.Error != "" {
		msg := r.Error
		resp.Error = &msg
	}
	return resp
}

// harnessStatus mirrors the JSON document written by harness.py.
type harnessStatus struct {
	Success    bool    `json:"success"`
	HasResult  bool    `json:"has_result"`
	ResultJSON *string `json:"result_json"`
	Error      *string `json:"error"`
}

// Runner executes jobs with bounded concurrency.
type Runner struct {
	cfg     Config
	limiter *Limiter
	logger  *slog.Logger
}

// New creates a Runner, filling unset Config fields with defaults.
func New(cfg Config, logger *slog.Logger) *Runner {
	if cfg.Python == "" {
		cfg.Python = "python3"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if cfg.OutputDirName == "" {
		cfg.OutputDirName = "output"
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.MaxCaptureBytes <= 0 {
		cfg.MaxCaptureBytes = 16 << 20
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = 5 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		limiter: NewLimiter(cfg.MaxConcurrent),
		logger:  logger,
	}
}

// Capacity returns the maximum number of concurrent executions.
func (r *Runner) Capacity() int { return r.limiter.Capacity() }

// InFlight returns the number of executions currently running.
func (r *Runner) InFlight() int { return r.limiter.InFlight() }

// Python returns the configured interpreter.
func (r *Runner) Python() string { return r.cfg.Python }

// Run executes the job and blocks until it finishes, times out or ctx is
// cancelled. Execution failures (exceptions, timeouts, non-zero exits) are
// reported in the Result; the returned error covers only problems that kept
// the snippet from being started.
func (r *Runner) Run(ctx context.Context, job Job) (*Result, error) {
	if !r.limiter.TryAcquire() {
		observability.ExecutionsRejectedTotal.Inc()
		return nil, fmt.Errorf("%w (%d/%d concurrent executions)", ErrAtCapacity, r.limiter.InFlight(), r.limiter.Capacity())
	}
	defer r.limiter.Release()
	observability.ExecutionsInFlight.Inc()
	defer observability.ExecutionsInFlight.Dec()

	if job.ID == "" {
		job.ID = api.NewExecutionID()
	}
	if job.Timeout <= 0 {
		return nil, fmt.Errorf("executor: job %s has no timeout", job.ID)
	}

	ws, err := r.prepare(job)
	if err != nil {
		return nil, err
	}

	res, err := r.execute(ctx, job, ws)
	if err != nil {
		os.RemoveAll(ws.root)
		return nil, err
	}

	observability.ExecutionsTotal.WithLabelValues(string(res.Status)).Inc()
	observability.ExecutionDuration.WithLabelValues(string(res.Status)).Observe(res.Duration.Seconds())

	r.logger.Info("execution complete",
		"id", res.ID,
		"status", res.Status,
		"exit_code", res.ExitCode,
		"duration_ms", res.Duration.Milliseconds(),
		"stdout_len", len(res.Stdout),
		"outputs", len(res.Outputs),
	)
	debug.Log("executor", "execution output", "id", res.ID, "stdout", debug.Truncate(res.Stdout, 200))
	debug.Trace("executor", "execution streams", "id", res.ID, "stdout", res.Stdout, "stderr", res.Stderr)

	return res, nil
}

// workspace is the on-disk layout of one execution:
//
//	root/.pyexec/{harness.py,snippet.py,status.json}
//	root/work/            working directory, input files
//	root/work/<output>/   OUTPUT_DIR
type workspace struct {
	root       string
	harnessDir string
	workDir    string
	outputDir  string
	statusPath string
}

func (r *Runner) prepare(job Job) (*workspace, error) {
	root, err := os.MkdirTemp(r.cfg.WorkDir, "pyexec-"+job.ID+"-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp dir: %w", err)
	}
	ws := &workspace{
		root:       root,
		harnessDir: filepath.Join(root, harnessDirName),
		workDir:    filepath.Join(root, workDirName),
	}
	ws.outputDir = filepath.Join(ws.workDir, r.cfg.OutputDirName)
	ws.statusPath = filepath.Join(ws.harnessDir, statusFileName)

	fail := func(err error) (*workspace, error) {
		os.RemoveAll(root)
		return nil, err
	}

	for _, dir := range []string{ws.harnessDir, ws.outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fail(fmt.Errorf("creating %s: %w", dir, err))
		}
	}
	if err := os.WriteFile(filepath.Join(ws.harnessDir, "harness.py"), harnessSource, 0o644); err != nil {
		return fail(fmt.Errorf("writing harness: %w", err))
	}
	if err := os.WriteFile(filepath.Join(ws.harnessDir, codeFileName), []byte(job.Code), 0o644); err != nil {
		return fail(fmt.Errorf("writing code: %w", err))
	}
	for name, content := range job.Files {
		// Base name only, so input files cannot escape the working directory.
		path := filepath.Join(ws.workDir, filepath.Base(name))
		if err := os.WriteFile(path, content, 0o644); err != nil {
			return fail(fmt.Errorf("writing file %q: %w", name, err))
		}
	}
	return ws, nil
}

func (r *Runner) execute(ctx context.Context, job Job, ws *workspace) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, job.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, r.cfg.Python, "-u",
		filepath.Join(ws.harnessDir, "harness.py"),
		filepath.Join(ws.harnessDir, codeFileName))
	cmd.Dir = ws.workDir
	cmd.Env = r.environ(job.ID, ws)
	cmd.WaitDelay = r.cfg.WaitDelay
	configureProcessGroup(cmd)

	stdout := newCappedBuffer(r.cfg.MaxCaptureBytes)
	stderr := newCappedBuffer(r.cfg.MaxCaptureBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	debug.Log("executor", "starting", "id", job.ID, "python", r.cfg.Python, "dir", ws.root, "timeout", job.Timeout)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", r.cfg.Python, err)
	}
	waitErr := cmd.Wait()
	duration := time.Since(start)

	res := &Result{
		ID:       job.ID,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: cmd.ProcessState.ExitCode(),
		Duration: duration,
		dir:      ws.root,
	}
	r.classify(res, job, runCtx, ctx, waitErr, ws.statusPath)

	outputs, skipped, err := collectOutputs(ws.outputDir, r.cfg.MaxOutputFileBytes)
	if err != nil {
		r.logger.Warn("collecting outputs failed", "id", job.ID, "error", err)
	}
	res.Outputs = outputs
	res.Skipped = skipped
	for _, name := range skipped {
		r.logger.Warn("output file exceeds size limit, skipped", "id", job.ID, "file", name, "limit", r.cfg.MaxOutputFileBytes)
	}

	return res, nil
}

// classify fills Status, Success, Result and Error. Precedence: timeout,
// cancellation, harness status, process exit. A process that exited cleanly
// before the deadline fired is never reported as timed out.
func (r *Runner) classify(res *Result, job Job, runCtx, parent context.Context, waitErr error, statusPath string) {
	if waitErr != nil {
		switch {
		case parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded):
			res.Status = api.ExecutionStatusTimedOut
			res.Error = fmt.Sprintf("Execution timed out after %s seconds", formatSeconds(job.Timeout))
			return
		case parent.Err() != nil:
			res.Status = api.ExecutionStatusCancelled
			res.Error = "Execution cancelled"
			return
		}
	}

	if st, ok := readStatus(statusPath); ok {
		res.Success = st.Success
		if st.HasResult && st.ResultJSON != nil && json.Valid([]byte(*st.ResultJSON)) {
			res.Result = json.RawMessage(*st.ResultJSON)
		}
		if st.Error != nil {
			res.Error = *st.Error
		}
		if res.Success {
			res.Status = api.ExecutionStatusCompleted
		} else {
			res.Status = api.ExecutionStatusFailed
		}
		return
	}

	// No status: the snippet left through sys.exit/os._exit or was killed.
	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		res.Success = true
		res.Status = api.ExecutionStatusCompleted
	case errors.As(waitErr, &exitErr) && exitErr.ExitCode() >= 0:
		res.Status = api.ExecutionStatusFailed
		res.Error = fmt.Sprintf("Process exited with code %d", exitErr.ExitCode())
	default:
		res.Status = api.ExecutionStatusFailed
		res.Error = fmt.Sprintf("Process terminated: %v", waitErr)
	}
}

// environ builds the subprocess environment: the server environment minus
// pyexec's own PYEXEC_* settings, then configured extras, then per-run values.
func (r *Runner) environ(id string, ws *workspace) []string {
	base := os.Environ()
	env := make([]string, 0, len(base)+len(r.cfg.Env)+4)
	for _, kv := range base {
		if strings.HasPrefix(kv, "PYEXEC_") {
			continue
		}
		env = append(env, kv)
	}
	env = append(env, r.cfg.Env...)
	return append(env,
		"OUTPUT_DIR="+ws.outputDir,
		"PYEXEC_STATUS_PATH="+ws.statusPath,
		"PYEXEC_EXECUTION_ID="+id,
		"PYTHONUNBUFFERED=1",
	)
}

func readStatus(path string) (*harnessStatus, bool) {
	data, err := os.ReadFile(path)
	if err != nil || len(bytes.TrimSpace(data)) == 0 {
		return nil, false
	}
	var st harnessStatus
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, false
	}
	return &st, true
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
