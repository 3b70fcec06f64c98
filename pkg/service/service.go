package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/narrated/pyexec/pkg/api"
	"github.com/narrated/pyexec/pkg/artifact"
	"github.com/narrated/pyexec/pkg/auth"
	"github.com/narrated/pyexec/pkg/debug"
	"github.com/narrated/pyexec/pkg/executor"
	"github.com/narrated/pyexec/pkg/hostinfo"
	"github.com/narrated/pyexec/pkg/transport"
)

// Runner runs one job at a time per slot. *executor.Runner implements it.
type Runner interface {
	Run(ctx context.Context, job executor.Job) (*executor.Result, error)
	Capacity() int
	InFlight() int
}

// Prober answers host questions. *hostinfo.Prober implements it.
type Prober interface {
	GPU(ctx context.Context) hostinfo.GPU
	PythonVersion(ctx context.Context) string
	Packages(ctx context.Context) ([]api.Package, error)
	SoundfontPresent() bool
	SoundfontPath() string
}

// Service orchestrates execute requests between the transport layer, the
// executor, object storage and the record store.
type Service struct {
	runner    Runner
	prober    Prober
	artifacts artifact.Store           // nil when uploads are not configured
	records   transport.ExecutionStore // nil when record storage is disabled
	cfg       Config
	timeouts  executor.TimeoutPolicy
	logger    *slog.Logger
	started   time.Time
	now       func() time.Time
}

var (
	_ transport.CodeExecutor   = (*Service)(nil)
	_ transport.StatusReporter = (*Service)(nil)
)

// New creates a Service. The runner and prober must not be nil; artifacts
// and records may be nil.
func New(runner Runner, prober Prober, artifacts artifact.Store, records transport.ExecutionStore, cfg Config, logger *slog.Logger) (*Service, error) {
	if runner == nil {
		return nil, errors.New("service: runner must not be nil")
	}
	if prober == nil {
		return nil, errors.New("service: prober must not be nil")
	}
	if cfg.DefaultTimeout <= 0 {
		return nil, fmt.Errorf("service: default timeout must be positive, got %d", cfg.DefaultTimeout)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runner:    runner,
		prober:    prober,
		artifacts: artifacts,
		records:   records,
		cfg:       cfg,
		timeouts:  executor.TimeoutPolicy{Default: cfg.DefaultTimeout},
		logger:    logger,
		started:   time.Now(),
		now:       time.Now,
	}, nil
}

// Execute validates the request, runs the code and returns the captured
// outcome. Failed executions are a successful call with Success=false.
func (s *Service) Execute(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
	if apiErr := api.ValidateExecuteRequest(req, s.cfg.Validation); apiErr != nil {
		return nil, apiErr
	}
	timeout, err := s.timeouts.Effective(req.Timeout)
	if err != nil {
		return nil, api.NewInvalidRequestError("timeout", err.Error())
	}
	if req.Upload && s.artifacts == nil {
		return nil, api.NewInvalidRequestError("upload", "object storage is not configured")
	}
	if req.Upload && !mayUpload(auth.IdentityFromContext(ctx)) {
		return nil, api.NewInvalidRequestError("upload", `credentials lack the "upload" scope`).WithCode("missing_scope")
	}
	files, err := decodeFiles(req.Files)
	if err != nil {
		return nil, api.NewInvalidRequestError("files", err.Error())
	}

	id := transport.ExecutionIDFromContext(ctx)
	if id == "" {
		id = api.NewExecutionID()
	}
	debug.Log("executor", "execute request", "id", id, "subject", auth.SubjectFromContext(ctx), "timeout", timeout, "files", len(files), "code", debug.Truncate(req.Code, 120))

	rec := &api.ExecutionRecord{
		ID:        id,
		Object:    "execution",
		Status:    api.ExecutionStatusRunning,
		Code:      req.Code,
		Timeout:   int(timeout / time.Second),
		CreatedAt: s.now().UTC(),
	}
	s.saveRecord(ctx, rec)

	res, err := s.runner.Run(ctx, executor.Job{ID: id, Code: req.Code, Timeout: timeout, Files: files})
	if err != nil {
		msg := err.Error()
		s.finishRecord(ctx, rec, api.ExecutionStatusFailed, &api.ExecuteResponse{ID: id, Error: &msg})
		if errors.Is(err, executor.ErrAtCapacity) {
			return nil, api.NewTooManyRequestsError(fmt.Sprintf("all %d execution slots are busy, retry later", s.runner.Capacity())).WithCode("capacity_exceeded")
		}
		return nil, api.NewServerError("failed to start execution: " + msg)
	}
	defer func() {
		if err := res.Close(); err != nil {
			s.logger.Warn("removing execution directory failed", "id", id, "error", err)
		}
	}()

	resp := res.Response()
	if req.Upload {
		s.upload(ctx, req, res, resp)
	}

	s.finishRecord(ctx, rec, res.Status, resp)
	return resp, nil
}

// mayUpload admits identities without scopes. Scoped tokens need "upload".
func mayUpload(id *auth.Identity) bool {
	return id == nil || len(id.Scopes) == 0 || id.HasScope(UploadScope)
}

// upload copies the execution's output files to object storage. Failures
// are reported in resp.UploadError and never change resp.Success.
func (s *Service) upload(ctx context.Context, req *api.ExecuteRequest, res *executor.Result, resp *api.ExecuteResponse) {
	prefix := req.UploadPrefix
	if prefix == "" {
		prefix = s.cfg.UploadPrefix
	}

	files := make([]artifact.LocalFile, 0, len(res.Outputs))
	for _, out := range res.Outputs {
		files = append(files, artifact.LocalFile{Name: out.Name, Path: out.Path, Size: out.Size})
	}

	uploads, err := artifact.UploadOutputs(ctx, s.artifacts, prefix, res.ID, files, s.cfg.uploadConcurrency())
	resp.Uploads = uploads

	var problems []string
	if err != nil {
		s.logger.Warn("uploading outputs failed", "id", res.ID, "uploaded", len(uploads), "files", len(files), "error", err)
		problems = append(problems, err.Error())
	}
	if len(res.Skipped) > 0 {
		problems = append(problems, "skipped files over the size limit: "+strings.Join(res.Skipped, ", "))
	}
	resp.UploadError = strings.Join(problems, "; ")
}

// saveRecord stores the running record. Storage failures are logged and do
// not block the execution.
func (s *Service) saveRecord(ctx context.Context, rec *api.ExecutionRecord) {
	if s.records == nil {
		return
	}
	if err := s.records.SaveExecution(ctx, rec); err != nil {
		s.logger.Warn("saving execution record failed", "id", rec.ID, "error", err)
	}
}

// finishRecord moves the record to its terminal status. It runs detached
// from request cancellation so cancelled executions are still recorded.
func (s *Service) finishRecord(ctx context.Context, rec *api.ExecutionRecord, status api.ExecutionStatus, resp *api.ExecuteResponse) {
	if s.records == nil {
		return
	}
	done := s.now().UTC()
	update := *rec
	update.Status = status
	update.CompletedAt = &done
	update.Response = resp

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.records.UpdateExecution(ctx, &update); err != nil {
		s.logger.Warn("updating execution record failed", "id", rec.ID, "status", status, "error", err)
	}
}

// decodeFiles decodes base64 input files. Names are reduced to their base
// name by the executor.
func decodeFiles(in map[string]string) (map[string][]byte, error) {
	if len(in) == 0 {
		return nil, nil
	}
	out := make(map[string][]byte, len(in))
	for name, content := range in {
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("file %q is not valid base64: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}
