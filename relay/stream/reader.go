package stream

import (
	"bufio"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/Laisky/zap"

	"github.com/fuchsia74/grok-api/common/helper"
	"github.com/fuchsia74/grok-api/common/logger"
)

// IdleTimeoutError reports that the upstream stopped producing lines for
// longer than the idle window.
type IdleTimeoutError struct {
	Idle time.Duration
}

func (e *IdleTimeoutError) Error() string {
	return "stream idle timeout after " + e.Idle.String()
}

// HTTPStatus makes the idle error recognizable to the error mappers.
func (e *IdleTimeoutError) HTTPStatus() int {
	return http.StatusGatewayTimeout
}

// lineSource pumps normalized lines off an upstream response body on a
// separate goroutine so the consumer can watchdog the gaps between lines.
type lineSource struct {
	ch   chan string
	done chan struct{}
	body interface{ Close() error }

	closeOnce sync.Once
	readErr   error
}

func newLineSource(resp *http.Response) *lineSource {
	src := &lineSource{
		ch:   make(chan string, 16),
		done: make(chan struct{}),
		body: resp.Body,
	}

	go func() {
		scanner := bufio.NewScanner(resp.Body)
		helper.ConfigureScannerBuffer(scanner)
		for scanner.Scan() {
			line, ok := NormalizeLine(scanner.Text())
			if !ok {
				continue
			}
			select {
			case src.ch <- line:
			case <-src.done:
				return
			}
		}
		src.readErr = scanner.Err()
		close(src.ch)
	}()

	return src
}

// next blocks for the following line. The second result is false when the
// stream ended; err is then the terminal read error, if any. When idle is
// positive and no line arrives within it, the source aborts and an
// IdleTimeoutError is returned.
func (s *lineSource) next(idle time.Duration) (string, bool, error) {
	if idle <= 0 {
		line, ok := <-s.ch
		if !ok {
			return "", false, s.readErr
		}
		return line, true, nil
	}

	timer := time.NewTimer(idle)
	defer timer.Stop()

	select {
	case line, ok := <-s.ch:
		if !ok {
			return "", false, s.readErr
		}
		return line, true, nil
	case <-timer.C:
		s.abort()
		return "", false, &IdleTimeoutError{Idle: idle}
	}
}

// abort releases the reader goroutine and the upstream connection. Safe to
// call more than once.
func (s *lineSource) abort() {
	s.closeOnce.Do(func() {
		close(s.done)
		if err := s.body.Close(); err != nil {
			logger.Logger.Debug("close upstream body", zap.Error(err))
		}
	})
}

// clientGone reports whether the request context ended, meaning the client
// disconnected and the stream should wind down silently.
func clientGone(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
