package worker

import (
	"bufio"
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/quotemap/internal/errors"
)

// maxRequestBytes bounds one request line.
const maxRequestBytes = 64 << 20

// ServeJSONL reads one JSON request per line from r and writes one JSON
// response per line to w. Requests without an id get a generated one so
// responses can be correlated when the pool has more than one worker. It
// returns when r is exhausted and every response is written, or when ctx
// is done.
func (p *Pool) ServeJSONL(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	requests := make(chan Request)
	responses := make(chan Response, p.Size())

	writeErr := make(chan error, 1)
	go func() {
		enc := json.NewEncoder(w)
		var err error
		for resp := range responses {
			if err != nil {
				continue // drain
			}
			if err = enc.Encode(resp); err != nil {
				cancel()
			}
		}
		writeErr <- err
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		p.Run(ctx, requests, responses)
	}()

	readErr := p.readRequests(ctx, r, requests, responses)
	close(requests)
	<-runDone
	close(responses)

	if err := <-writeErr; err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if readErr != nil {
		return readErr
	}
	return ctx.Err()
}

// readRequests decodes lines into requests. A malformed line is answered
// with an error response directly instead of reaching a worker.
func (p *Pool) readRequests(ctx context.Context, r io.Reader, requests chan<- Request, responses chan<- Response) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxRequestBytes)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			resp := errorResponse("", errors.NewInvalidRequest(fmt.Sprintf("invalid request: %v", err)))
			select {
			case responses <- resp:
				continue
			case <-ctx.Done():
				return nil
			}
		}
		if req.ID == "" {
			req.ID = newRequestID()
		}

		select {
		case requests <- req:
		case <-ctx.Done():
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read request: %w", err)
	}
	return nil
}

func newRequestID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}
