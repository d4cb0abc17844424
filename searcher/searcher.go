// Package searcher provides point-in-time search snapshots over a
// lexgo index and a refcounted Manager that keeps exactly one of them
// current while a writer keeps mutating.
package searcher

import (
	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/index"
)

// Searcher executes queries against one immutable index view. It is
// safe for concurrent use and remains valid until released back to the
// Manager it was acquired from.
type Searcher struct {
	reader *index.Reader
	gen    uint64
}

// NewSearcher wraps an index reader. Most callers never construct a
// Searcher directly; they acquire one from a Manager.
func NewSearcher(r *index.Reader) *Searcher {
	return &Searcher{reader: r}
}

// Reader returns the underlying index view.
func (s *Searcher) Reader() *index.Reader {
	return s.reader
}

// Generation returns the writer generation this snapshot is guaranteed
// to reflect. Zero means "unknown" (e.g. a hand-built Searcher).
func (s *Searcher) Generation() uint64 {
	return s.gen
}

// Count returns the number of documents matching q.
func (s *Searcher) Count(q Query) uint64 {
	return q.Match(s.reader).GetCardinality()
}

// Search returns the documents matching q, ordered by internal id.
func (s *Searcher) Search(q Query) []index.Document {
	bm := q.Match(s.reader)
	out := make([]index.Document, 0, bm.GetCardinality())
	it := bm.Iterator()
	for it.HasNext() {
		if doc, ok := s.reader.Document(it.Next()); ok {
			out = append(out, doc)
		}
	}
	return out
}

// Query selects documents from an index view.
type Query interface {
	// Match returns the matching document ids. The caller owns the bitmap.
	Match(r *index.Reader) *roaring.Bitmap
}

// TermQuery matches documents containing term in field.
type TermQuery struct {
	Field string
	Term  string
}

// Match implements Query.
func (q TermQuery) Match(r *index.Reader) *roaring.Bitmap {
	return r.Postings(q.Field, q.Term)
}

// MatchAllQuery matches every live document.
type MatchAllQuery struct{}

// Match implements Query.
func (MatchAllQuery) Match(r *index.Reader) *roaring.Bitmap {
	return r.All()
}

// BooleanQuery combines sub-queries: all Must clauses AND together,
// Should clauses OR together, and both groups AND when both are set.
type BooleanQuery struct {
	Must   []Query
	Should []Query
}

// Match implements Query.
func (q BooleanQuery) Match(r *index.Reader) *roaring.Bitmap {
	var must *roaring.Bitmap
	for _, sub := range q.Must {
		bm := sub.Match(r)
		if must == nil {
			must = bm
		} else {
			must.And(bm)
		}
		if must.IsEmpty() {
			return must
		}
	}

	var should *roaring.Bitmap
	if len(q.Should) > 0 {
		bms := make([]*roaring.Bitmap, 0, len(q.Should))
		for _, sub := range q.Should {
			bms = append(bms, sub.Match(r))
		}
		should = roaring.FastOr(bms...)
	}

	switch {
	case must == nil && should == nil:
		return roaring.New()
	case must == nil:
		return should
	case should == nil:
		return must
	default:
		must.And(should)
		return must
	}
}
