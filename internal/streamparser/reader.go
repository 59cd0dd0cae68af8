package streamparser

import (
	"context"
	"io"
	"time"
)

// timedReader wraps an io.Reader with an idle-read timeout, racing each
// Read against a timer so a stalled upstream connection doesn't hang
// forever. Grounded on the teacher's
// internal/infrastructure/llm/openai/sse.go timedReader.
type timedReader struct {
	r       io.Reader
	timeout time.Duration
}

type readResult struct {
	n   int
	err error
}

func (t *timedReader) Read(p []byte) (int, error) {
	resultCh := make(chan readResult, 1)
	go func() {
		n, err := t.r.Read(p)
		resultCh <- readResult{n, err}
	}()
	select {
	case res := <-resultCh:
		return res.n, res.err
	case <-time.After(t.timeout):
		return 0, context.DeadlineExceeded
	}
}

// Consume reads from src until EOF, idle timeout, or ctx cancellation
// (three-tier termination protection, grounded on sse.go's L1/L2/L3
// scheme), feeding every chunk through p and returning the final
// deduplicated tool-call list.
func (p *Parser) Consume(ctx context.Context, src io.Reader, idleTimeout time.Duration) ([]Event, []FinalToolCall, error) {
	if idleTimeout <= 0 {
		idleTimeout = 60 * time.Second
	}
	tr := &timedReader{r: src, timeout: idleTimeout}

	var events []Event
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return events, p.Finalize(), ctx.Err()
		default:
		}

		n, err := tr.Read(buf)
		if n > 0 {
			events = append(events, p.Feed(buf[:n])...)
		}
		if err != nil {
			if err == io.EOF {
				return events, p.Finalize(), nil
			}
			return events, p.Finalize(), err
		}
	}
}
