package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/client"
)

// RunOptions holds the flags of the run command.
type RunOptions struct {
	Path         string // file to execute, "-" for stdin
	Server       string
	Token        string
	Timeout      int
	Upload       bool
	UploadPrefix string
	JSON         bool
	HTTPTimeout  time.Duration
}

// ErrExecutionFailed is returned when the code ran but did not succeed.
var ErrExecutionFailed = errors.New("execution failed")

// Run handles the run command: it submits the file and prints the outcome.
func Run(ctx context.Context, in io.Reader, out, errOut io.Writer, opts RunOptions) error {
	code, err := readCode(in, opts.Path)
	if err != nil {
		return err
	}

	token := opts.Token
	if token == "" {
		token = os.Getenv("PYEXEC_TOKEN")
	}
	clientOpts := []client.Option{client.WithToken(token)}
	if opts.HTTPTimeout > 0 {
		clientOpts = append(clientOpts, client.WithTimeout(opts.HTTPTimeout))
	}
	c := client.New(opts.Server, clientOpts...)

	req := &api.ExecuteRequest{Code: code, Upload: opts.Upload, UploadPrefix: opts.UploadPrefix}
	if opts.Timeout > 0 {
		req.Timeout = &opts.Timeout
	}

	resp, err := c.Execute(ctx, req)
	if err != nil {
		if client.IsAtCapacity(err) {
			return fmt.Errorf("server is busy, retry later: %w", err)
		}
		return err
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			return err
		}
	} else {
		printResponse(out, errOut, resp)
	}

	if !resp.Success {
		return ErrExecutionFailed
	}
	return nil
}

func readCode(in io.Reader, path string) (string, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading code: %w", err)
	}
	return string(data), nil
}

func printResponse(out, errOut io.Writer, resp *api.ExecuteResponse) {
	io.WriteString(out, resp.Stdout)
	io.WriteString(errOut, resp.Stderr)

	if len(resp.Result) > 0 && string(resp.Result) != "null" {
		fmt.Fprintf(out, "result: %s\n", resp.Result)
	}
	for _, u := range resp.Uploads {
		fmt.Fprintf(out, "uploaded s3://%s/%s (%d bytes)\n", u.Bucket, u.Key, u.Size)
	}
	if resp.UploadError != "" {
		fmt.Fprintf(errOut, "upload error: %s\n", resp.UploadError)
	}
	if resp.Error != nil {
		fmt.Fprintln(errOut, *resp.Error)
	}
	fmt.Fprintf(errOut, "[%s in %.2fs]\n", resp.ID, resp.ExecutionTime)
}
