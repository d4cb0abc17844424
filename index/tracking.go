package index

import (
	"context"
	"sync/atomic"
)

// TrackingWriter wraps a Writer and stamps every mutation with a
// strictly increasing generation.
//
// The stamp is assigned after the underlying mutation has been applied
// (increment-after-effect): once the tracker reports Generation() >= g,
// any Reader opened afterwards contains the mutation that returned g.
// A failed mutation consumes no generation.
type TrackingWriter struct {
	w   *Writer
	gen atomic.Uint64
}

// NewTrackingWriter wraps w. The generation counter starts at zero.
func NewTrackingWriter(w *Writer) *TrackingWriter {
	return &TrackingWriter{w: w}
}

// Writer returns the wrapped Writer.
func (t *TrackingWriter) Writer() *Writer {
	return t.w
}

// Generation returns the highest generation assigned so far.
func (t *TrackingWriter) Generation() uint64 {
	return t.gen.Load()
}

// Add indexes a new document and returns its generation.
func (t *TrackingWriter) Add(ctx context.Context, doc Document) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.w.Add(doc); err != nil {
		return 0, err
	}
	return t.gen.Add(1), nil
}

// Update replaces (or adds) a document and returns its generation.
func (t *TrackingWriter) Update(ctx context.Context, doc Document) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.w.Update(doc); err != nil {
		return 0, err
	}
	return t.gen.Add(1), nil
}

// Delete removes a document and returns the deletion's generation.
func (t *TrackingWriter) Delete(ctx context.Context, id string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.w.Delete(id); err != nil {
		return 0, err
	}
	return t.gen.Add(1), nil
}

// DeleteAll removes every document and returns the generation.
func (t *TrackingWriter) DeleteAll(ctx context.Context) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := t.w.DeleteAll(); err != nil {
		return 0, err
	}
	return t.gen.Add(1), nil
}
