package sink

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/zouppen/systemdb/internal/domain"
)

// Writer writes data rows and commit markers to the sink as CSV. Every row
// is flushed immediately; a slow sink blocks the writer.
type Writer struct {
	w       *csv.Writer
	marker  string
	rows    int
	markers int
}

// NewWriter creates a new wire writer. marker is the discriminator placed
// in the first column of commit markers.
func NewWriter(w io.Writer, marker string) *Writer {
	if marker == "" {
		marker = domain.DefaultMarker
	}
	return &Writer{
		w:      csv.NewWriter(w),
		marker: marker,
	}
}

// WriteRow writes one transformed record
func (w *Writer) WriteRow(fields []string) error {
	if err := w.write(fields); err != nil {
		return err
	}
	w.rows++
	return nil
}

// WriteMarker writes a commit marker for pos
func (w *Writer) WriteMarker(pos domain.Position) error {
	if pos.IsZero() {
		return fmt.Errorf("refusing to write commit marker without cursor")
	}
	m := domain.CommitMarker{Discriminator: w.marker, Position: pos}
	if err := w.write(m.Row()); err != nil {
		return err
	}
	w.markers++
	return nil
}

func (w *Writer) write(fields []string) error {
	if err := w.w.Write(fields); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}

// Stats returns how many rows and markers were written
func (w *Writer) Stats() (rows, markers int) {
	return w.rows, w.markers
}
