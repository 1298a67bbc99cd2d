package sink

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/shiperr"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestHandshake(t *testing.T) {
	t.Run("reads cursor and timestamp", func(t *testing.T) {
		var out bytes.Buffer
		in := bufio.NewReader(strings.NewReader("s=abc;i=9\n1700000000000001\n"))

		pos, err := Handshake(&out, in, "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello\n", out.String())
		assert.Equal(t, domain.Position{Cursor: "s=abc;i=9", Timestamp: 1700000000000001}, pos)
	})

	t.Run("empty cursor is a cold start", func(t *testing.T) {
		var out bytes.Buffer
		pos, err := Handshake(&out, bufio.NewReader(strings.NewReader("\n\n")), "")
		require.NoError(t, err)
		assert.True(t, pos.IsZero())
		assert.Equal(t, DefaultGreeting+"\n", out.String())
	})

	t.Run("missing cursor", func(t *testing.T) {
		_, err := Handshake(&bytes.Buffer{}, bufio.NewReader(strings.NewReader("")), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no remote cursor received")
		assert.Equal(t, shiperr.ExitProcessing, shiperr.ExitCode(err))
	})

	t.Run("missing timestamp", func(t *testing.T) {
		_, err := Handshake(&bytes.Buffer{}, bufio.NewReader(strings.NewReader("cursor\n")), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no remote timestamp received")
	})

	t.Run("unterminated timestamp line still counts", func(t *testing.T) {
		pos, err := Handshake(&bytes.Buffer{}, bufio.NewReader(strings.NewReader("c\n12")), "")
		require.NoError(t, err)
		assert.Equal(t, int64(12), pos.Timestamp)
	})

	t.Run("cursor with empty timestamp", func(t *testing.T) {
		_, err := Handshake(&bytes.Buffer{}, bufio.NewReader(strings.NewReader("c7\n\n")), "")
		require.Error(t, err)
		assert.True(t, shiperr.IsFatal(err))
		assert.Equal(t, shiperr.ExitProcessing, shiperr.ExitCode(err))
	})

	t.Run("bad timestamp", func(t *testing.T) {
		_, err := Handshake(&bytes.Buffer{}, bufio.NewReader(strings.NewReader("c\nnoon\n")), "")
		require.Error(t, err)
		assert.True(t, shiperr.IsFatal(err))
	})
}

func TestWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, "")

	require.NoError(t, w.WriteRow([]string{"1700000000123", "web1", `say "hi", world`}))
	require.NoError(t, w.WriteMarker(domain.Position{Cursor: "c2", Timestamp: 99}))
	require.Error(t, w.WriteMarker(domain.Position{}))

	assert.Equal(t, "1700000000123,web1,\"say \"\"hi\"\", world\"\n__CURSOR,c2,99\n", buf.String())
	rows, markers := w.Stats()
	assert.Equal(t, 1, rows)
	assert.Equal(t, 1, markers)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriterPropagatesErrors(t *testing.T) {
	w := NewWriter(failingWriter{}, "")
	require.Error(t, w.WriteRow([]string{"a"}))
	rows, _ := w.Stats()
	assert.Zero(t, rows)
}

func writeSinkStub(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sink")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestSinkHandshakeAndRows(t *testing.T) {
	dir := t.TempDir()
	received := filepath.Join(dir, "received")
	stub := writeSinkStub(t, `read greeting
echo "$greeting" > "`+received+`"
echo "c1"
echo "1000"
cat >> "`+received+`"
`)
	s, err := Start(Options{Command: []string{stub}, Greeting: "hi there"})
	require.NoError(t, err)

	pos, err := s.Handshake(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.Position{Cursor: "c1", Timestamp: 1000}, pos)

	require.NoError(t, s.Writer().WriteRow([]string{"a", "b"}))
	require.NoError(t, s.Writer().WriteMarker(pos))
	require.NoError(t, s.Close())

	data, err := os.ReadFile(received)
	require.NoError(t, err)
	assert.Equal(t, "hi there\na,b\n__CURSOR,c1,1000\n", string(data))
}

func TestSinkControlStream(t *testing.T) {
	stub := writeSinkStub(t, `read greeting
printf 'c1\n5\n'
printf 'oops!'
sleep 0.2
exit 0
`)
	s, err := Start(Options{Command: []string{stub}})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Handshake(context.Background())
	require.NoError(t, err)

	var payload []byte
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.Control():
			if ev.EOF {
				assert.Equal(t, "oops!", string(payload))
				return
			}
			payload = append(payload, ev.Data...)
		case <-deadline:
			t.Fatal("control stream did not report EOF")
		}
	}
}

func TestStartWithoutCommand(t *testing.T) {
	_, err := Start(Options{})
	require.Error(t, err)
	assert.Equal(t, shiperr.ExitProcessing, shiperr.ExitCode(err))
}
