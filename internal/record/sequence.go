package record

import (
	"errors"
	"fmt"
	"io"

	"github.com/roach88/dotlog/internal/codec"
)

// WriteSequence writes recs to w as a CBOR sequence of envelopes. This is
// the export file format.
func WriteSequence(w io.Writer, recs []Record) error {
	enc := codec.NewEncoder(w)
	for _, rec := range recs {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("write record %s: %w", rec, err)
		}
	}
	return nil
}

// ReadSequence reads every envelope from r until EOF. A stream that ends
// inside an envelope is an error.
func ReadSequence(r io.Reader) ([]Record, error) {
	dec := codec.NewDecoder(r)
	recs := []Record{}
	for {
		var rec Record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			return recs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read record %d: %w", len(recs), err)
		}
		recs = append(recs, rec)
	}
}
