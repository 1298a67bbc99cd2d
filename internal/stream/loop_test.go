package stream

import (
	"context"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/shiperr"
)

// feed returns a closed channel holding lines
func feed(lines ...[]byte) <-chan []byte {
	ch := make(chan []byte, len(lines))
	for _, l := range lines {
		ch <- l
	}
	close(ch)
	return ch
}

func TestLoopTwoRowsThenMarker(t *testing.T) {
	w := &recordingWriter{}
	loop := NewLoop(newPipeline(w), clock.NewMock(), 5*time.Second, nil)
	s := NewSession(domain.PhaseBackfill)

	err := loop.Run(context.Background(), s, feed(line("c1", 1000, "one"), line("c2", 2000, "two")), nil)
	require.NoError(t, err)

	assert.Equal(t, [][]string{
		{"1", "one"},
		{"2", "two"},
		{"__CURSOR", "c2", "2000"},
	}, w.Rows())
}

func TestLoopEmptyStreamWritesNothing(t *testing.T) {
	w := &recordingWriter{}
	loop := NewLoop(newPipeline(w), clock.NewMock(), time.Second, nil)

	require.NoError(t, loop.Run(context.Background(), NewSession(domain.PhaseFollow), feed(), nil))
	assert.Empty(t, w.Rows())
}

func TestLoopSurvivesGarbage(t *testing.T) {
	w := &recordingWriter{}
	log, logs := observedLogger()
	loop := NewLoop(newPipeline(w), clock.NewMock(), time.Second, log)

	err := loop.Run(context.Background(), NewSession(domain.PhaseBackfill),
		feed(line("c1", 1000, "one"), []byte("}{ not json"), line("c2", 2000, "two")), nil)
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"1", "one"}, {"2", "two"}, {"__CURSOR", "c2", "2000"}}, w.Rows())

	skipped := logs.FilterMessage("Skipping a log message").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, shiperr.ReasonGarbage, skipped[0].ContextMap()["reason"])
	assert.Equal(t, "c1", skipped[0].ContextMap()["cursor"])
}

func TestLoopControlPayloadIsAWarning(t *testing.T) {
	w := &recordingWriter{}
	log, logs := observedLogger()
	loop := NewLoop(newPipeline(w), clock.NewMock(), time.Minute, log)

	data := make(chan []byte)
	control := make(chan domain.ControlEvent)
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(context.Background(), NewSession(domain.PhaseFollow), data, control)
	}()

	data <- line("c1", 1000, "one")
	control <- domain.ControlEvent{Data: []byte("hello")}
	data <- line("c2", 2000, "two")
	close(data)

	require.NoError(t, <-done)
	assert.Equal(t, [][]string{{"1", "one"}, {"2", "two"}, {"__CURSOR", "c2", "2000"}}, w.Rows())

	warnings := logs.FilterMessage("Protocol warning").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, "hello", warnings[0].ContextMap()["payload"])
}

func TestLoopControlEOFFlushesAndFails(t *testing.T) {
	w := &recordingWriter{}
	loop := NewLoop(newPipeline(w), clock.NewMock(), time.Minute, nil)

	data := make(chan []byte)
	control := make(chan domain.ControlEvent)
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(context.Background(), NewSession(domain.PhaseFollow), data, control)
	}()

	data <- line("c1", 1000, "one")
	close(control)

	err := <-done
	require.Error(t, err)
	assert.Equal(t, shiperr.ExitRemoteClosed, shiperr.ExitCode(err))
	assert.Equal(t, [][]string{{"1", "one"}, {"__CURSOR", "c1", "1000"}}, w.Rows())
}

func TestLoopPeriodicCommit(t *testing.T) {
	mock := clock.NewMock()
	w := &recordingWriter{}
	loop := NewLoop(newPipeline(w), mock, 5*time.Second, nil)

	data := make(chan []byte)
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(context.Background(), NewSession(domain.PhaseFollow), data, nil)
	}()

	// Nothing is armed before data arrives, so time passing commits nothing.
	mock.Add(time.Minute)
	assert.Empty(t, w.Rows())

	data <- line("c1", 1000, "one")
	require.Eventually(t, func() bool { return len(w.Rows()) == 1 }, 2*time.Second, time.Millisecond)

	require.Eventually(t, func() bool {
		mock.Add(time.Second)
		return len(w.markers()) == 1
	}, 5*time.Second, time.Millisecond)

	// The tick disarmed the schedule; more time must not repeat the marker.
	mock.Add(time.Minute)
	close(data)
	require.NoError(t, <-done)

	assert.Equal(t, [][]string{{"1", "one"}, {"__CURSOR", "c1", "1000"}}, w.Rows())
}

func TestLoopExpiredDeadlineChecksControlOnly(t *testing.T) {
	mock := clock.NewMock()
	w := &recordingWriter{}
	log, logs := observedLogger()
	loop := NewLoop(newPipeline(w), mock, 5*time.Second, log)
	s := NewSession(domain.PhaseFollow)

	require.NoError(t, loop.Dispatch(s, line("c1", 1000, "one")))
	mock.Add(10 * time.Second)

	control := make(chan domain.ControlEvent, 1)
	control <- domain.ControlEvent{Data: []byte("12345")}
	data := make(chan []byte, 1)
	data <- line("c2", 2000, "two")
	close(data)

	require.NoError(t, loop.Run(context.Background(), s, data, control))

	// The overdue tick fired before the pending data line was read.
	assert.Equal(t, [][]string{
		{"1", "one"},
		{"__CURSOR", "c1", "1000"},
		{"2", "two"},
		{"__CURSOR", "c2", "2000"},
	}, w.Rows())
	assert.Equal(t, 1, logs.FilterMessage("Protocol warning").Len())
}

func TestLoopCancelFlushes(t *testing.T) {
	w := &recordingWriter{}
	loop := NewLoop(newPipeline(w), clock.NewMock(), time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())

	data := make(chan []byte)
	done := make(chan error, 1)
	go func() {
		done <- loop.Run(ctx, NewSession(domain.PhaseFollow), data, nil)
	}()

	data <- line("c1", 1000, "one")
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, [][]string{{"1", "one"}, {"__CURSOR", "c1", "1000"}}, w.Rows())
}
