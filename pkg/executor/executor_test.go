package executor

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrated/pyexec/pkg/api"
)

func newTestRunner(t *testing.T, cfg Config) *Runner {
	t.Helper()
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = t.TempDir()
	}
	return New(cfg, nil)
}

func run(t *testing.T, r *Runner, code string, timeout time.Duration) *Result {
	t.Helper()
	res, err := r.Run(context.Background(), Job{Code: code, Timeout: timeout})
	require.NoError(t, err)
	t.Cleanup(func() { res.Close() })
	return res
}

func TestRunCapturesStreamsAndResult(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, `
import sys
print("hello")
print("warn", file=sys.stderr)
result = {"answer": 42, "items": [1, 2]}
`, 10*time.Second)

	assert.True(t, res.Success)
	assert.Equal(t, api.ExecutionStatusCompleted, res.Status)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.JSONEq(t, `{"answer": 42, "items": [1, 2]}`, string(res.Result))
	assert.Empty(t, res.Error)
	assert.True(t, api.ValidateExecutionID(res.ID))
	assert.Greater(t, res.Duration, time.Duration(0))
}

func TestRunNoResultVariable(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, "x = 1 + 1", 10*time.Second)

	assert.True(t, res.Success)
	assert.Nil(t, res.Result)
	assert.Nil(t, res.Response().Error)
}

func TestRunNonJSONResultUsesRepr(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, `
class Thing:
    def __repr__(self):
        return "<Thing>"
result = Thing()
`, 10*time.Second)

	require.True(t, res.Success)
	assert.JSONEq(t, `"<Thing>"`, string(res.Result))
}

func TestRunRunsAsMain(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, `
if __name__ == "__main__":
    result = "main"
`, 10*time.Second)

	assert.JSONEq(t, `"main"`, string(res.Result))
}

func TestRunSyntaxError(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, "def broken(:\n    pass", 10*time.Second)

	assert.False(t, res.Success)
	assert.Equal(t, api.ExecutionStatusFailed, res.Status)
	assert.True(t, strings.HasPrefix(res.Error, "Syntax error: "), "error = %q", res.Error)
	assert.Contains(t, res.Error, "<string>")
}

func TestRunNullByteSource(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, "x = 1\x00\n", 10*time.Second)

	assert.False(t, res.Success)
	assert.Equal(t, api.ExecutionStatusFailed, res.Status)
	// 3.11 and later report a SyntaxError, older interpreters a ValueError.
	assert.True(t,
		strings.HasPrefix(res.Error, "Syntax error: ") || strings.HasPrefix(res.Error, "ValueError: "),
		"error = %q", res.Error)
	assert.Contains(t, res.Error, "null bytes")
}

func TestRunException(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, `
print("before")
raise ValueError("bad input")
`, 10*time.Second)

	assert.False(t, res.Success)
	assert.Equal(t, "before\n", res.Stdout)
	assert.True(t, strings.HasPrefix(res.Error, "ValueError: bad input\n"), "error = %q", res.Error)
	assert.Contains(t, res.Error, "Traceback")
	assert.Contains(t, res.Error, `File "<string>", line 3`)
	assert.NotContains(t, res.Error, "harness.py")
}

func TestRunTimeout(t *testing.T) {
	r := newTestRunner(t, Config{})

	start := time.Now()
	res := run(t, r, "import time\ntime.sleep(30)", time.Second)

	assert.Less(t, time.Since(start), 15*time.Second)
	assert.False(t, res.Success)
	assert.Equal(t, api.ExecutionStatusTimedOut, res.Status)
	assert.Equal(t, "Execution timed out after 1 seconds", res.Error)
}

func TestRunTimeoutKillsChildren(t *testing.T) {
	r := newTestRunner(t, Config{})

	res := run(t, r, `
import subprocess, sys
subprocess.Popen([sys.executable, "-c", "import time; time.sleep(60)"])
import time
time.sleep(60)
`, time.Second)

	assert.Equal(t, api.ExecutionStatusTimedOut, res.Status)
}

func TestRunCancelled(t *testing.T) {
	r := newTestRunner(t, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	res, err := r.Run(ctx, Job{Code: "import time\ntime.sleep(30)", Timeout: 20 * time.Second})
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, api.ExecutionStatusCancelled, res.Status)
	assert.Equal(t, "Execution cancelled", res.Error)
}

func TestRunExitCodes(t *testing.T) {
	r := newTestRunner(t, Config{})

	tests := []struct {
		name        string
		code        string
		wantSuccess bool
		wantErr     string
	}{
		{"sys.exit zero", "import sys\nsys.exit(0)", true, ""},
		{"sys.exit three", "import sys\nsys.exit(3)", false, "Process exited with code 3"},
		{"os._exit", "import os\nos._exit(7)", false, "Process exited with code 7"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, r, tt.code, 10*time.Second)
			assert.Equal(t, tt.wantSuccess, res.Success)
			assert.Equal(t, tt.wantErr, res.Error)
		})
	}
}

func TestRunInputFilesAndImports(t *testing.T) {
	r := newTestRunner(t, Config{})

	res, err := r.Run(context.Background(), Job{
		Code: `
import helper
with open("data.txt") as fh:
    result = helper.shout(fh.read())
`,
		Timeout: 10 * time.Second,
		Files: map[string][]byte{
			"../../data.txt": []byte("quiet"),
			"helper.py":      []byte("def shout(s):\n    return s.upper()\n"),
		},
	})
	require.NoError(t, err)
	defer res.Close()

	require.True(t, res.Success, "error: %s", res.Error)
	assert.JSONEq(t, `"QUIET"`, string(res.Result))
}

func TestRunCollectsOutputs(t *testing.T) {
	r := newTestRunner(t, Config{MaxOutputFileBytes: 100})

	res, err := r.Run(context.Background(), Job{
		Code: `
import os
out = os.environ["OUTPUT_DIR"]
os.makedirs(os.path.join(out, "stems"))
open(os.path.join(out, "song.wav"), "wb").write(b"RIFF1234")
open(os.path.join(out, "stems", "bass.wav"), "wb").write(b"RIFF")
open(os.path.join(out, "huge.bin"), "wb").write(b"x" * 1000)
`,
		Timeout: 10 * time.Second,
	})
	require.NoError(t, err)

	require.True(t, res.Success, "error: %s", res.Error)
	require.Len(t, res.Outputs, 2)
	assert.Equal(t, "song.wav", res.Outputs[0].Name)
	assert.Equal(t, int64(8), res.Outputs[0].Size)
	assert.Equal(t, "stems/bass.wav", res.Outputs[1].Name)
	assert.Equal(t, []string{"huge.bin"}, res.Skipped)

	data, err := os.ReadFile(res.Outputs[0].Path)
	require.NoError(t, err)
	assert.Equal(t, "RIFF1234", string(data))

	dir := filepath.Dir(filepath.Dir(filepath.Dir(res.Outputs[0].Path)))
	require.NoError(t, res.Close())
	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err), "workspace %s should be removed", dir)
}

func TestRunEnvironment(t *testing.T) {
	t.Setenv("PYEXEC_JWT_SECRET", "server-only")
	r := newTestRunner(t, Config{Env: []string{"SOUNDFONT_PATH=/sf2/test.sf2"}})

	res := run(t, r, `
import os
result = {
    "soundfont": os.environ.get("SOUNDFONT_PATH"),
    "secret": os.environ.get("PYEXEC_JWT_SECRET"),
    "has_output": "OUTPUT_DIR" in os.environ,
}
`, 10*time.Second)

	require.True(t, res.Success, "error: %s", res.Error)
	assert.JSONEq(t, `{"soundfont": "/sf2/test.sf2", "secret": null, "has_output": true}`, string(res.Result))
}

func TestRunAtCapacity(t *testing.T) {
	r := newTestRunner(t, Config{MaxConcurrent: 1})

	started := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		close(started)
		res, err := r.Run(context.Background(), Job{Code: "import time\ntime.sleep(2)", Timeout: 10 * time.Second})
		if err == nil {
			res.Close()
		}
	}()
	<-started
	require.Eventually(t, func() bool { return r.InFlight() == 1 }, 5*time.Second, 10*time.Millisecond)

	_, err := r.Run(context.Background(), Job{Code: "pass", Timeout: time.Second})
	assert.ErrorIs(t, err, ErrAtCapacity)

	wg.Wait()
	assert.Equal(t, 0, r.InFlight())
}

func TestRunMissingInterpreter(t *testing.T) {
	r := New(Config{Python: "/nonexistent/python3", WorkDir: t.TempDir()}, nil)

	_, err := r.Run(context.Background(), Job{Code: "pass", Timeout: time.Second})
	require.Error(t, err)
	assert.Equal(t, 0, r.InFlight())
}

func TestRunRequiresTimeout(t *testing.T) {
	r := New(Config{WorkDir: t.TempDir()}, nil)

	_, err := r.Run(context.Background(), Job{Code: "pass"})
	assert.Error(t, err)
}
