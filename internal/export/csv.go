package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"iter"

	"github.com/stemsi/assessment-runner/internal/catalog"
	"github.com/stemsi/assessment-runner/internal/model"
)

// FlushEvery is how many CSV rows are buffered before they are pushed to
// the underlying writer.
const FlushEvery = 100

// WriteCSV streams subs to w and returns the number of data rows written.
// If w can flush (an http.ResponseWriter, say) it is flushed after every
// FlushEvery rows so the client receives the file incrementally.
func WriteCSV(w io.Writer, cat *catalog.Catalog, subs iter.Seq2[*model.Submission, error]) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header(cat)); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for sub, err := range subs {
		if err != nil {
			cw.Flush()
			return rows, err
		}
		if err := cw.Write(Record(cat, sub)); err != nil {
			return rows, fmt.Errorf("write row: %w", err)
		}
		rows++

		if rows%FlushEvery == 0 {
			if err := flush(cw, w); err != nil {
				return rows, err
			}
		}
	}

	return rows, flush(cw, w)
}

func flush(cw *csv.Writer, w io.Writer) error {
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if f, ok := w.(flusher); ok {
		f.Flush()
	}
	return nil
}
