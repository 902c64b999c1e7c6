package db

import (
	"github.com/jackc/pgx/v5"

	"github.com/sktmbtkr01/his-quasar-production/internal/model"
)

// CopyRow is a row that knows its COPY column values.
type CopyRow interface {
	CopyValues() []any
}

// ChannelSource implements pgx.CopyFromSource by reading rows from a
// channel, giving backpressure between a producer and the COPY writer.
type ChannelSource[T CopyRow] struct {
	ch      <-chan T
	current T
}

// NewChannelSource creates a CopyFromSource backed by ch.
func NewChannelSource[T CopyRow](ch <-chan T) *ChannelSource[T] {
	return &ChannelSource[T]{ch: ch}
}

// Next advances to the next row. It returns false once ch is closed.
func (s *ChannelSource[T]) Next() bool {
	row, ok := <-s.ch
	if !ok {
		return false
	}
	s.current = row
	return true
}

// Values returns the current row in COPY column order.
func (s *ChannelSource[T]) Values() ([]any, error) {
	return s.current.CopyValues(), nil
}

// Err always returns nil; producers report their own errors.
func (s *ChannelSource[T]) Err() error {
	return nil
}

// Rows returns a CopyFromSource over a slice of rows.
func Rows[T CopyRow](rows []T) pgx.CopyFromSource {
	return pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
		return rows[i].CopyValues(), nil
	})
}

var _ pgx.CopyFromSource = (*ChannelSource[*model.Billing])(nil)
