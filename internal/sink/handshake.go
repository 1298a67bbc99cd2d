package sink

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/zouppen/systemdb/internal/domain"
	"github.com/zouppen/systemdb/internal/shiperr"
)

// DefaultGreeting is the first line sent to the sink
const DefaultGreeting = "systemdb-send 1"

// Handshake greets the sink on w and reads back the resume position: one line
// with the cursor, one with its timestamp. An empty cursor means the sink has
// nothing stored and shipping starts from the beginning of the journal.
func Handshake(w io.Writer, r *bufio.Reader, greeting string) (domain.Position, error) {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	if _, err := io.WriteString(w, greeting+"\n"); err != nil {
		return domain.Position{}, shiperr.RemoteClosed(fmt.Errorf("send greeting: %w", err))
	}

	cursor, ok := readLine(r)
	if !ok {
		return domain.Position{}, shiperr.Processing("no remote cursor received", nil)
	}
	ts, ok := readLine(r)
	if !ok {
		return domain.Position{}, shiperr.Processing("no remote timestamp received", nil)
	}

	pos, err := domain.ParsePosition(cursor, ts)
	if err != nil {
		return domain.Position{}, shiperr.Processing("bad remote timestamp", err)
	}
	return pos, nil
}

// readLine returns a trimmed line. A final line without newline still counts.
func readLine(r *bufio.Reader) (string, bool) {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", false
	}
	return strings.TrimSpace(line), true
}
