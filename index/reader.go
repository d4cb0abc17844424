package index

import (
	"iter"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
)

// Reader is an immutable, point-in-time view of an index. It is safe
// for concurrent use without locking and is unaffected by writer
// mutations that happen after it was opened.
type Reader struct {
	version  uint64
	postings map[string]map[string]*roaring.Bitmap
	docs     map[uint32]Document
	deleted  *roaring.Bitmap
}

// Version returns the writer mutation version this reader reflects.
func (r *Reader) Version() uint64 {
	return r.version
}

// NumDocs returns the number of live documents in this view.
func (r *Reader) NumDocs() int {
	return len(r.docs)
}

// Postings returns the live document ids matching (field, term).
// The returned bitmap is owned by the caller.
func (r *Reader) Postings(field, term string) *roaring.Bitmap {
	terms := r.postings[field]
	if terms == nil {
		return roaring.New()
	}
	bm := terms[term]
	if bm == nil {
		return roaring.New()
	}
	return roaring.AndNot(bm, r.deleted)
}

// All returns the ids of every live document in this view.
func (r *Reader) All() *roaring.Bitmap {
	bm := roaring.New()
	for id := range r.docs {
		bm.Add(id)
	}
	return bm
}

// Document returns the stored document for an internal id.
func (r *Reader) Document(id uint32) (Document, bool) {
	doc, ok := r.docs[id]
	return doc, ok
}

// Fields returns the indexed field names, sorted.
func (r *Reader) Fields() []string {
	fields := make([]string, 0, len(r.postings))
	for f := range r.postings {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	return fields
}

// Terms returns the terms indexed under field, sorted.
func (r *Reader) Terms(field string) []string {
	tm := r.postings[field]
	terms := make([]string, 0, len(tm))
	for t := range tm {
		terms = append(terms, t)
	}
	slices.Sort(terms)
	return terms
}

// Docs iterates over all live documents with their internal ids.
func (r *Reader) Docs() iter.Seq2[uint32, Document] {
	return func(yield func(uint32, Document) bool) {
		for id, doc := range r.docs {
			if !yield(id, doc) {
				return
			}
		}
	}
}

// State captures the live contents of this view for persistence.
// Tombstoned ids are subtracted from postings, so the result contains
// no deletion state.
func (r *Reader) State() *State {
	st := &State{
		Docs:     make(map[uint32]Document, len(r.docs)),
		Postings: make(map[string]map[string]*roaring.Bitmap, len(r.postings)),
	}
	for id, doc := range r.docs {
		st.Docs[id] = doc.Clone()
	}
	for field, terms := range r.postings {
		tm := make(map[string]*roaring.Bitmap, len(terms))
		for term, bm := range terms {
			live := roaring.AndNot(bm, r.deleted)
			if live.IsEmpty() {
				continue
			}
			tm[term] = live
		}
		if len(tm) > 0 {
			st.Postings[field] = tm
		}
	}
	return st
}
