package transport

import (
	"context"
	"log/slog"
	"time"

	"github.com/narrated/pyexec/pkg/api"
)

// Logging returns middleware that emits one structured log entry per
// execute request: request ID, execution ID, requested timeout, upload flag,
// outcome and duration. The code itself is never logged here.
func Logging(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next CodeExecutor) CodeExecutor {
		return CodeExecutorFunc(func(ctx context.Context, req *api.ExecuteRequest) (*api.ExecuteResponse, error) {
			start := time.Now()

			resp, err := next.Execute(ctx, req)

			attrs := []slog.Attr{
				slog.String("request_id", RequestIDFromContext(ctx)),
				slog.Int("code_len", len(req.Code)),
				slog.Bool("upload", req.Upload),
				slog.Duration("duration", time.Since(start)),
			}
			if req.Timeout != nil {
				attrs = append(attrs, slog.Int("timeout", *req.Timeout))
			}

			if err != nil {
				attrs = append(attrs, slog.String("error", err.Error()))
				logger.LogAttrs(ctx, slog.LevelError, "request failed", attrs...)
				return resp, err
			}
			if resp != nil {
				attrs = append(attrs,
					slog.String("execution_id", resp.ID),
					slog.Bool("success", resp.Success),
				)
			}
			logger.LogAttrs(ctx, slog.LevelInfo, "request completed", attrs...)
			return resp, err
		})
	}
}
