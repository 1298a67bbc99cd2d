package journal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/shiperr"
	"golang.org/x/sync/errgroup"
)

const maxLineBytes = 1024 * 1024

// DefaultCommand is the journal query used when none is configured
var DefaultCommand = []string{"journalctl", "-qa", "--no-tail", "-o", "json"}

// SourceOptions configures the journal reader subprocess
type SourceOptions struct {
	Command    []string  // argv of the query, without resume or follow arguments
	CursorFlag string    // prefix joined with the resume cursor, e.g. "--cursor="
	FollowFlag string    // appended in follow mode, e.g. "-f"
	Args       []string  // extra arguments appended last (unit filters etc.)
	Stderr     io.Writer // where the reader's diagnostics go; defaults to os.Stderr
}

// Argv builds the command line for one invocation. The cursor argument is
// omitted on a cold start.
func (o SourceOptions) Argv(resume domain.Position, follow bool) []string {
	cmd := o.Command
	if len(cmd) == 0 {
		cmd = DefaultCommand
	}
	argv := append([]string{}, cmd...)
	if !resume.IsZero() {
		flag := o.CursorFlag
		if flag == "" {
			flag = "--cursor="
		}
		argv = append(argv, flag+resume.Cursor)
	}
	if follow {
		flag := o.FollowFlag
		if flag == "" {
			flag = "-f"
		}
		argv = append(argv, flag)
	}
	return append(argv, o.Args...)
}

// Source owns one journal reader subprocess and exposes its stdout as a
// channel of lines. The channel is closed at end of stream.
type Source struct {
	cmd    *exec.Cmd
	lines  chan []byte
	group  *errgroup.Group
	cancel context.CancelFunc
	eof    atomic.Bool

	closeOnce sync.Once
	closeErr  error
}

// StartSource launches the reader for one phase
func StartSource(ctx context.Context, opts SourceOptions, resume domain.Position, follow bool) (*Source, error) {
	argv := opts.Argv(resume, follow)

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stderr = opts.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, shiperr.SourceFailed(fmt.Errorf("failed to start %s: %w", argv[0], err))
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	group, pumpCtx := errgroup.WithContext(pumpCtx)
	s := &Source{
		cmd:    cmd,
		lines:  make(chan []byte),
		group:  group,
		cancel: cancel,
	}
	group.Go(func() error {
		return s.pump(pumpCtx, stdout)
	})
	return s, nil
}

// Lines returns the data stream
func (s *Source) Lines() <-chan []byte {
	return s.lines
}

func (s *Source) pump(ctx context.Context, r io.Reader) error {
	defer close(s.lines)

	reader := bufio.NewReaderSize(r, 64*1024)
	for {
		line, err := readLine(reader)
		if len(line) > 0 || err == nil {
			select {
			case s.lines <- line:
			case <-ctx.Done():
				return nil
			}
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("read journal output: %w", err)
		}
	}
	s.eof.Store(true)
	return nil
}

// readLine returns the next line without its line ending. Lines longer than
// maxLineBytes are cut there and the rest is discarded; the truncated JSON no
// longer parses, so the record is skipped like any other garbage line.
func readLine(r *bufio.Reader) ([]byte, error) {
	var line []byte
	for {
		chunk, err := r.ReadSlice('\n')
		if room := maxLineBytes - len(line); room > 0 {
			if len(chunk) > room {
				chunk = chunk[:room]
			}
			line = append(line, chunk...)
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		line = bytes.TrimSuffix(line, []byte("\n"))
		line = bytes.TrimSuffix(line, []byte("\r"))
		return line, err
	}
}

// Close reaps the subprocess. After a clean end of stream it reports a
// non-zero exit as shiperr.SourceFailed. When called before end of stream the
// reader is killed and its exit status ignored.
func (s *Source) Close() error {
	s.closeOnce.Do(func() {
		aborted := !s.eof.Load()
		if aborted && s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		s.cancel()
		pumpErr := s.group.Wait()
		waitErr := s.cmd.Wait()

		switch {
		case pumpErr != nil:
			s.closeErr = shiperr.Processing("journal stream failed", pumpErr)
		case aborted:
			s.closeErr = nil
		case waitErr != nil:
			s.closeErr = shiperr.SourceFailed(waitErr)
		}
	})
	return s.closeErr
}
