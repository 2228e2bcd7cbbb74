package command

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const maxRequestSize = 1 << 20

// Serve reads one JSON request per line from r and writes one JSON response
// per line to w. Requests run concurrently; the service decides what may
// overlap, so responses can come back out of order and carry the request id.
// Serve returns when r is exhausted and every response is written.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	g, ctx := errgroup.WithContext(ctx)

	var mu sync.Mutex
	enc := json.NewEncoder(w)
	write := func(resp Response) error {
		mu.Lock()
		defer mu.Unlock()
		return enc.Encode(resp)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)

	for scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			d.logger.Warn("Malformed request", zap.Error(err))
			resp := Response{Error: &ErrorBody{Kind: KindInvalidRequest, Message: err.Error()}}
			g.Go(func() error { return write(resp) })
			continue
		}

		g.Go(func() error {
			return write(d.Handle(req))
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return scanner.Err()
}
