package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/hpungsan/quotemap/internal/config"
	"github.com/hpungsan/quotemap/internal/errors"
	"github.com/hpungsan/quotemap/internal/ops"
)

// Worker handles one request at a time. It holds everything a command needs,
// so independent workers never share state.
type Worker struct {
	source ops.RowSource
	cfg    *config.Config
	log    *slog.Logger
}

// New creates a worker. source may be nil, in which case
// fetchAndAlignBatch fails with an internal error.
func New(source ops.RowSource, cfg *config.Config, log *slog.Logger) *Worker {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Worker{source: source, cfg: cfg, log: log}
}

// Handle runs one request and always returns a response.
func (w *Worker) Handle(ctx context.Context, req Request) (resp Response) {
	log := w.log.With("request_id", req.ID, "type", req.Type)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			log.Error("request panicked", "panic", r, "stack", string(debug.Stack()))
			resp = errorResponse(req.ID, errors.NewInternal(fmt.Errorf("panic: %v", r)))
		}
	}()

	if ctx.Err() != nil {
		return errorResponse(req.ID, errors.NewCancelled(req.Type))
	}

	out, err := w.dispatch(ctx, req)
	if err != nil {
		qErr := asError(err)
		log.Warn("request failed", "code", qErr.Code, "error", qErr.Message)
		return errorResponse(req.ID, qErr)
	}

	data, err := json.Marshal(out)
	if err != nil {
		log.Error("encode result failed", "error", err)
		return errorResponse(req.ID, errors.NewInternal(fmt.Errorf("encode result: %w", err)))
	}

	log.Debug("request done", "duration", time.Since(start))
	return Response{ID: req.ID, Type: ResultType(req.Type), Data: data}
}

func (w *Worker) dispatch(ctx context.Context, req Request) (any, error) {
	switch req.Type {
	case CmdBuildTree:
		input, err := decodeStrict[ops.BuildTreeInput](req.Data)
		if err != nil {
			return nil, err
		}
		return ops.BuildTree(input)

	case CmdFlatten:
		input, err := decodeStrict[ops.FlattenInput](req.Data)
		if err != nil {
			return nil, err
		}
		return ops.Flatten(input)

	case CmdAlign:
		input, err := decodeStrict[ops.AlignInput](req.Data)
		if err != nil {
			return nil, err
		}
		return ops.Align(w.cfg, input)

	case CmdFetchAndAlignBatch:
		input, err := decodeStrict[ops.BatchInput](req.Data)
		if err != nil {
			return nil, err
		}
		if w.source == nil {
			return nil, errors.NewInternal(fmt.Errorf("no row source configured"))
		}
		return ops.FetchAndAlignBatch(ctx, w.source, w.cfg, input)

	case "":
		return nil, errors.NewInvalidField("type", "is required")
	default:
		return nil, errors.NewInvalidField("type", fmt.Sprintf("unknown command %q", req.Type))
	}
}

// decodeStrict decodes a request payload, rejecting unknown fields and
// trailing data.
func decodeStrict[T any](data json.RawMessage) (T, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return v, errors.NewInvalidField("data", "is required")
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, errors.NewInvalidRequest(fmt.Sprintf("invalid data: %v", err))
	}
	if dec.More() {
		return v, errors.NewInvalidRequest("invalid data: trailing content after payload")
	}
	return v, nil
}

func asError(err error) *errors.Error {
	if qErr, ok := err.(*errors.Error); ok {
		return qErr
	}
	return errors.NewInternal(err)
}
