package sink

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/shiperr"
	"golang.org/x/sync/errgroup"
)

const defaultControlChunk = 1024

// Options configures the sink subprocess
type Options struct {
	Command      []string
	Greeting     string
	Marker       string
	ControlChunk int       // max bytes per control-stream read
	Stderr       io.Writer // defaults to os.Stderr
}

// Sink owns the downstream subprocess. Its stdin carries wire rows, its stdout
// carries the handshake reply and is afterwards watched as the control stream.
type Sink struct {
	opts    Options
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	out     *bufio.Reader
	writer  *Writer
	control chan domain.ControlEvent

	group  *errgroup.Group
	cancel context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// Start launches the sink. Call Handshake before shipping anything.
func Start(opts Options) (*Sink, error) {
	if len(opts.Command) == 0 {
		return nil, shiperr.Processing("no sink command configured", nil)
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, shiperr.Processing("failed to start sink", err)
	}

	return &Sink{
		opts:    opts,
		cmd:     cmd,
		stdin:   stdin,
		out:     bufio.NewReader(stdout),
		writer:  NewWriter(stdin, opts.Marker),
		control: make(chan domain.ControlEvent, 1),
		group:   new(errgroup.Group),
		cancel:  func() {},
	}, nil
}

// Handshake exchanges the greeting and starts watching the control stream
func (s *Sink) Handshake(ctx context.Context) (domain.Position, error) {
	pos, err := Handshake(s.stdin, s.out, s.opts.Greeting)
	if err != nil {
		return domain.Position{}, err
	}

	chunk := s.opts.ControlChunk
	if chunk <= 0 {
		chunk = defaultControlChunk
	}
	pumpCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.group.Go(func() error {
		return pumpControl(pumpCtx, s.out, chunk, s.control)
	})
	return pos, nil
}

// Writer returns the wire writer bound to the sink's stdin
func (s *Sink) Writer() *Writer {
	return s.writer
}

// Control returns the control stream. It yields unexpected sink output and
// finally an EOF event when the sink closes its stdout.
func (s *Sink) Control() <-chan domain.ControlEvent {
	return s.control
}

// pumpControl forwards reads from r as control events until end of stream
func pumpControl(ctx context.Context, r io.Reader, chunk int, out chan<- domain.ControlEvent) error {
	defer close(out)

	buf := make([]byte, chunk)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			ev := domain.ControlEvent{Data: append([]byte(nil), buf[:n]...)}
			select {
			case out <- ev:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			select {
			case out <- domain.ControlEvent{EOF: true}:
			case <-ctx.Done():
			}
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			return fmt.Errorf("read sink output: %w", err)
		}
	}
}

// Close ends the wire stream and reaps the sink
func (s *Sink) Close() error {
	s.closeOnce.Do(func() {
		_ = s.stdin.Close()
		s.cancel()
		// Wait closes stdout, so the control pump has to see EOF first.
		_ = s.group.Wait()
		waitErr := s.cmd.Wait()
		if waitErr != nil {
			s.closeErr = fmt.Errorf("sink exited: %w", waitErr)
		}
	})
	return s.closeErr
}
