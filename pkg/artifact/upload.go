package artifact

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/debug"
	"github.com/narrated/pyexec/pkg/observability"
)

// LocalFile is a file on disk to upload.
type LocalFile struct {
	Name string // slash-separated name, becomes the key suffix
	Path string
	Size int64
}

// audioTypes fills gaps in the platform MIME table for the formats
// executions commonly produce.
var audioTypes = map[string]string{
	".wav":  "audio/wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".opus": "audio/opus",
	".mid":  "audio/midi",
	".midi": "audio/midi",
	".sf2":  "audio/x-soundfont",
}

// ContentType guesses a MIME type from the file extension.
func ContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := audioTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// ObjectKey joins the upload prefix, execution ID and file name.
func ObjectKey(prefix, executionID, name string) string {
	return path.Join(strings.Trim(prefix, "/"), executionID, name)
}

// UploadOutputs uploads files to store under prefix/executionID/ with at most
// concurrency uploads in flight. Successful uploads are returned sorted by key
// even when some files fail; the error reports the first failure.
func UploadOutputs(ctx context.Context, store Store, prefix, executionID string, files []LocalFile, concurrency int) ([]api.Upload, error) {
	if len(files) == 0 {
		return nil, nil
	}
	if concurrency <= 0 {
		concurrency = 4
	}

	var (
		mu      sync.Mutex
		uploads = make([]api.Upload, 0, len(files))
		g       errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, f := range files {
		g.Go(func() error {
			key := ObjectKey(prefix, executionID, f.Name)
			ct := ContentType(f.Name)
			if err := putFile(ctx, store, key, f, ct); err != nil {
				observability.UploadsTotal.WithLabelValues("error").Inc()
				return fmt.Errorf("uploading %s: %w", f.Name, err)
			}
			observability.UploadsTotal.WithLabelValues("ok").Inc()
			observability.UploadBytesTotal.Add(float64(f.Size))
			debug.Log("artifact", "uploaded", "bucket", store.Bucket(), "key", key, "size", f.Size)

			mu.Lock()
			uploads = append(uploads, api.Upload{
				Key:         key,
				Bucket:      store.Bucket(),
				Size:        f.Size,
				ContentType: ct,
			})
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()

	sort.Slice(uploads, func(i, j int) bool { return uploads[i].Key < uploads[j].Key })
	return uploads, err
}

func putFile(ctx context.Context, store Store, key string, f LocalFile, contentType string) error {
	fh, err := os.Open(f.Path)
	if err != nil {
		return err
	}
	defer fh.Close()
	return store.Put(ctx, key, fh, f.Size, contentType)
}
