package transport

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/narrated/pyexec/pkg/api"
)

func okExecutor(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
	return &api.ExecuteResponse{ID: "exec_test", Success: true}, nil
}

func TestChainAppliesMiddlewareInOrder(t *testing.T) {
	var order []string

	mw := func(name string) Middleware {
		return func(next CodeExecutor) CodeExecutor {
			return CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
				order = append(order, name+":before")
				resp, err := next.Execute(ctx, req)
				order = append(order, name+":after")
				return resp, err
			})
		}
	}

	handler := CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
		order = append(order, "handler")
		return nil, nil
	})

	Chain(mw("first"), mw("second"), mw("third"))(handler).Execute(context.Background(), &api.ExecuteRequest{})

	expected := []string{
		"first:before", "second:before", "third:before",
		"handler",
		"third:after", "second:after", "first:after",
	}
	if len(order) != len(expected) {
		t.Fatalf("execution order length = %d, want %d: %v", len(order), len(expected), order)
	}
	for i, got := range order {
		if got != expected[i] {
			t.Errorf("order[%d] = %q, want %q", i, got, expected[i])
		}
	}
}

func TestRecoveryCatchesPanic(t *testing.T) {
	handler := CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
		panic("test panic")
	})

	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	ctx := ContextWithExecutionID(context.Background(), "exec_panicky")

	resp, err := Recovery(logger)(handler).Execute(ctx, &api.ExecuteRequest{})
	if err == nil {
		t.Fatal("expected error after panic, got nil")
	}
	if resp != nil {
		t.Errorf("expected nil response after panic, got %+v", resp)
	}

	apiErr, ok := err.(*api.APIError)
	if !ok {
		t.Fatalf("expected *api.APIError, got %T: %v", err, err)
	}
	if apiErr.Type != api.ErrorTypeServerError {
		t.Errorf("error type = %q, want %q", apiErr.Type, api.ErrorTypeServerError)
	}
	if !strings.Contains(apiErr.Message, "test panic") {
		t.Errorf("error message = %q, should contain %q", apiErr.Message, "test panic")
	}
	for _, want := range []string{"panic during execution", "execution_id=exec_panicky", "stack="} {
		if !strings.Contains(logs.String(), want) {
			t.Errorf("log output missing %q: %s", want, logs.String())
		}
	}
}

func TestRecoveryPassesThroughNormalExecution(t *testing.T) {
	resp, err := Recovery(nil)(CodeExecutorFunc(okExecutor)).Execute(context.Background(), &api.ExecuteRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp == nil || resp.ID != "exec_test" {
		t.Errorf("response = %+v", resp)
	}
}

func TestRequestIDGeneratesNewID(t *testing.T) {
	var capturedID string
	handler := CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
		capturedID = RequestIDFromContext(ctx)
		return nil, nil
	})

	RequestID()(handler).Execute(context.Background(), &api.ExecuteRequest{})

	if len(capturedID) != 32 {
		t.Errorf("request ID = %q, want 32 hex chars", capturedID)
	}
}

func TestRequestIDPropagatesExisting(t *testing.T) {
	var capturedID string
	handler := CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
		capturedID = RequestIDFromContext(ctx)
		return nil, nil
	})

	ctx := ContextWithRequestID(context.Background(), "existing-id-123")
	RequestID()(handler).Execute(ctx, &api.ExecuteRequest{})

	if capturedID != "existing-id-123" {
		t.Errorf("request ID = %q, want %q", capturedID, "existing-id-123")
	}
}

func TestRequestIDUniqueness(t *testing.T) {
	ids := make(map[string]bool)
	handler := CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
		ids[RequestIDFromContext(ctx)] = true
		return nil, nil
	})

	wrapped := RequestID()(handler)
	for i := 0; i < 100; i++ {
		wrapped.Execute(context.Background(), &api.ExecuteRequest{})
	}
	if len(ids) != 100 {
		t.Errorf("expected 100 unique IDs, got %d", len(ids))
	}
}

func TestExecutionIDContext(t *testing.T) {
	if got := ExecutionIDFromContext(context.Background()); got != "" {
		t.Errorf("empty context returned %q", got)
	}
	ctx := ContextWithExecutionID(context.Background(), "exec_abc")
	if got := ExecutionIDFromContext(ctx); got != "exec_abc" {
		t.Errorf("ExecutionIDFromContext = %q", got)
	}
}

func TestLoggingEmitsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	timeout := 30
	ctx := ContextWithRequestID(context.Background(), "req-log-test")
	Logging(logger)(CodeExecutorFunc(okExecutor)).Execute(ctx, &api.ExecuteRequest{
		Code:    "print('secret')",
		Timeout: &timeout,
		Upload:  true,
	})

	output := buf.String()
	for _, expected := range []string{
		"request_id=req-log-test", "execution_id=exec_test", "success=true",
		"upload=true", "timeout=30", "code_len=15", "request completed",
	} {
		if !strings.Contains(output, expected) {
			t.Errorf("log output missing %q in:\n%s", expected, output)
		}
	}
	if strings.Contains(output, "secret") {
		t.Errorf("log output must not contain the code:\n%s", output)
	}
}

func TestLoggingEmitsErrorOnFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	handler := CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
		return nil, api.NewTooManyRequestsError("at capacity")
	})

	Logging(logger)(handler).Execute(context.Background(), &api.ExecuteRequest{Code: "x"})

	output := buf.String()
	if !strings.Contains(output, "request failed") {
		t.Errorf("log output missing 'request failed' in:\n%s", output)
	}
	if !strings.Contains(output, "at capacity") {
		t.Errorf("log output missing error message in:\n%s", output)
	}
}
