package artifact_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narrated/pyexec/pkg/artifact"
	"github.com/narrated/pyexec/pkg/artifact/memory"
)

func TestContentType(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"song.wav", "audio/wav"},
		{"SONG.WAV", "audio/wav"},
		{"take.mid", "audio/midi"},
		{"mix.flac", "audio/flac"},
		{"meta.json", "application/json"},
		{"plot.png", "image/png"},
		{"blob", "application/octet-stream"},
		{"weights.unknownext", "application/octet-stream"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, artifact.ContentType(tt.name))
		})
	}
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "executions/exec_1/song.wav", artifact.ObjectKey("executions", "exec_1", "song.wav"))
	assert.Equal(t, "renders/exec_1/stems/bass.wav", artifact.ObjectKey("/renders/", "exec_1", "stems/bass.wav"))
	assert.Equal(t, "exec_1/a.txt", artifact.ObjectKey("", "exec_1", "a.txt"))
}

func writeFiles(t *testing.T, contents map[string]string) []artifact.LocalFile {
	t.Helper()
	dir := t.TempDir()
	var files []artifact.LocalFile
	for name, body := range contents {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
		files = append(files, artifact.LocalFile{Name: name, Path: path, Size: int64(len(body))})
	}
	return files
}

func TestUploadOutputs(t *testing.T) {
	ctx := context.Background()
	store := memory.New("narrated")
	files := writeFiles(t, map[string]string{
		"song.wav":       "RIFFdata",
		"stems/bass.wav": "RIFF",
		"log.txt":        "done",
	})

	uploads, err := artifact.UploadOutputs(ctx, store, "executions", "exec_42", files, 2)
	require.NoError(t, err)
	require.Len(t, uploads, 3)

	assert.Equal(t, "executions/exec_42/log.txt", uploads[0].Key)
	assert.Equal(t, "executions/exec_42/song.wav", uploads[1].Key)
	assert.Equal(t, "audio/wav", uploads[1].ContentType)
	assert.Equal(t, int64(8), uploads[1].Size)
	assert.Equal(t, "narrated", uploads[1].Bucket)
	assert.Equal(t, "executions/exec_42/stems/bass.wav", uploads[2].Key)

	rc, err := store.Get(ctx, "executions/exec_42/song.wav")
	require.NoError(t, err)
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	assert.Equal(t, "RIFFdata", string(data))
}

func TestUploadOutputsPartialFailure(t *testing.T) {
	store := memory.New("narrated")
	store.FailPut = func(key string) error {
		if strings.HasSuffix(key, "bad.bin") {
			return errors.New("boom")
		}
		return nil
	}
	files := writeFiles(t, map[string]string{"good.txt": "ok", "bad.bin": "xx"})

	uploads, err := artifact.UploadOutputs(context.Background(), store, "p", "id", files, 4)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.bin")
	require.Len(t, uploads, 1)
	assert.Equal(t, "p/id/good.txt", uploads[0].Key)
}

func TestUploadOutputsEmpty(t *testing.T) {
	uploads, err := artifact.UploadOutputs(context.Background(), memory.New("b"), "p", "id", nil, 4)
	assert.NoError(t, err)
	assert.Nil(t, uploads)
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 14, 15, 9, 26, 0, time.UTC)
}

func TestCheckConnectivityExistingBucket(t *testing.T) {
	ctx := context.Background()
	store := memory.New("narrated")
	require.NoError(t, store.Put(ctx, "existing.txt", strings.NewReader("hi"), 2, "text/plain"))

	var out bytes.Buffer
	report, err := artifact.CheckConnectivity(ctx, store, artifact.CheckOptions{Region: "us-east-1", Out: &out, Now: fixedClock})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Buckets)
	assert.False(t, report.BucketCreated)
	assert.Equal(t, 1, report.ObjectCount)
	assert.True(t, report.WriteOK)
	assert.Equal(t, "_test/connectivity_test_20260314_150926.txt", report.TestKey)
	assert.Equal(t, 1, store.Len(), "test object should be cleaned up")
	assert.Contains(t, out.String(), "S3 CONNECTIVITY TEST PASSED")
	assert.Contains(t, out.String(), "existing.txt (2 bytes)")
}

func TestCheckConnectivityCreatesBucket(t *testing.T) {
	store := memory.NewMissing("narrated")

	report, err := artifact.CheckConnectivity(context.Background(), store, artifact.CheckOptions{Now: fixedClock})
	require.NoError(t, err)
	assert.True(t, report.BucketCreated)
	assert.Equal(t, 0, report.Buckets)

	exists, _ := store.BucketExists(context.Background())
	assert.True(t, exists)
}

func TestCheckConnectivityReadOnlyBucketPasses(t *testing.T) {
	store := memory.New("narrated")
	store.FailPut = func(string) error { return errors.New("AccessDenied") }

	var out bytes.Buffer
	report, err := artifact.CheckConnectivity(context.Background(), store, artifact.CheckOptions{Out: &out})
	require.NoError(t, err)
	assert.False(t, report.WriteOK)
	assert.Contains(t, out.String(), "write test failed")
}

// deniedStore reports the bucket as inaccessible.
type deniedStore struct{ *memory.Store }

func (deniedStore) BucketExists(context.Context) (bool, error) {
	return false, artifact.ErrAccessDenied
}

func TestCheckConnectivityAccessDenied(t *testing.T) {
	_, err := artifact.CheckConnectivity(context.Background(), deniedStore{memory.New("narrated")}, artifact.CheckOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, artifact.ErrAccessDenied)
	assert.Contains(t, err.Error(), "access denied")
}
