package shell

import (
	"bufio"
	"context"
	"io"
)

// lineReader reads one line from input per request. Nothing is read between
// prompts, so a child process such as sudo can use the terminal undisturbed.
type lineReader struct {
	requests chan struct{}
	lines    <-chan string
	pending  bool // a read was requested and has not been delivered yet
}

func newLineReader(in io.Reader, done <-chan struct{}) *lineReader {
	requests := make(chan struct{})
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for {
			select {
			case <-requests:
			case <-done:
				return
			}
			if !scanner.Scan() {
				return
			}
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return &lineReader{requests: requests, lines: lines}
}

// next returns the next line, io.EOF once input ends, or ctx.Err(). A read
// interrupted by ctx stays pending and is delivered to the following call.
func (r *lineReader) next(ctx context.Context) (string, error) {
	if !r.pending {
		select {
		case r.requests <- struct{}{}:
			r.pending = true
		case <-r.lines:
			// closed: input ended on an earlier read
			return "", io.EOF
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	select {
	case line, ok := <-r.lines:
		r.pending = false
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
