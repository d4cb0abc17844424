package index

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/lexgo/analysis"
)

// Writer is the single mutator of an in-memory inverted index.
//
// All mutations are serialized under an exclusive lock; Reader() takes
// a shared lock and returns an immutable snapshot. The last snapshot
// is cached, so opening a reader with no intervening mutation is free.
type Writer struct {
	mu       sync.RWMutex
	analyzer analysis.Analyzer

	postings map[string]map[string]*roaring.Bitmap // field -> term -> doc ids
	docs     map[uint32]Document
	byID     map[string]uint32 // external ID -> internal id
	deleted  *roaring.Bitmap

	nextID  uint32
	version uint64 // bumped on every applied mutation
	closed  bool

	lastReader atomic.Pointer[Reader]
}

// WriterOption configures a Writer.
type WriterOption func(*Writer)

// WithAnalyzer sets the analyzer used to turn field text into terms.
func WithAnalyzer(a analysis.Analyzer) WriterOption {
	return func(w *Writer) {
		w.analyzer = a
	}
}

// NewWriter creates an empty Writer.
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{
		analyzer: analysis.Simple{},
		postings: make(map[string]map[string]*roaring.Bitmap),
		docs:     make(map[uint32]Document),
		byID:     make(map[string]uint32),
		deleted:  roaring.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// State is a serializable copy of the live contents of an index.
// Deleted documents are compacted away; Postings bitmaps reference the
// internal ids in Docs.
type State struct {
	Docs     map[uint32]Document
	Postings map[string]map[string]*roaring.Bitmap
}

// FromState reconstructs a Writer from a previously captured State.
func FromState(st *State, opts ...WriterOption) (*Writer, error) {
	if st == nil {
		return nil, fmt.Errorf("index: %w: nil state", ErrInvalidArgument)
	}

	w := NewWriter(opts...)
	var maxID uint32
	for id, doc := range st.Docs {
		if doc.ID == "" {
			return nil, fmt.Errorf("index: %w: document %d has empty ID", ErrInvalidArgument, id)
		}
		if _, dup := w.byID[doc.ID]; dup {
			return nil, fmt.Errorf("index: %w: duplicate document ID %q", ErrInvalidArgument, doc.ID)
		}
		w.docs[id] = doc.Clone()
		w.byID[doc.ID] = id
		if id >= maxID {
			maxID = id + 1
		}
	}
	for field, terms := range st.Postings {
		tm := make(map[string]*roaring.Bitmap, len(terms))
		for term, bm := range terms {
			tm[term] = bm.Clone()
		}
		w.postings[field] = tm
	}
	w.nextID = maxID
	w.version = 1
	return w, nil
}

// Add indexes a new document. The document ID must be non-empty and
// must not already be present; use Update to replace.
func (w *Writer) Add(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("index: %w: empty document ID", ErrInvalidArgument)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if _, ok := w.byID[doc.ID]; ok {
		return fmt.Errorf("index: %w: document %q already exists", ErrInvalidArgument, doc.ID)
	}

	w.addLocked(doc)
	w.version++
	return nil
}

// Update replaces the document with the same ID, or adds it if absent.
func (w *Writer) Update(doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("index: %w: empty document ID", ErrInvalidArgument)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	if old, ok := w.byID[doc.ID]; ok {
		w.deleteLocked(old)
	}
	w.addLocked(doc)
	w.version++
	return nil
}

// Delete removes the document with the given external ID.
func (w *Writer) Delete(id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	internal, ok := w.byID[id]
	if !ok {
		return fmt.Errorf("index: delete %q: %w", id, ErrNotFound)
	}
	w.deleteLocked(internal)
	delete(w.byID, id)
	w.version++
	return nil
}

// DeleteAll removes every document.
func (w *Writer) DeleteAll() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	w.postings = make(map[string]map[string]*roaring.Bitmap)
	w.docs = make(map[uint32]Document)
	w.byID = make(map[string]uint32)
	w.deleted = roaring.New()
	w.version++
	return nil
}

// addLocked assigns an internal id and indexes the document fields.
func (w *Writer) addLocked(doc Document) {
	id := w.nextID
	w.nextID++

	w.docs[id] = doc.Clone()
	w.byID[doc.ID] = id

	for field, text := range doc.Fields {
		terms := w.postings[field]
		if terms == nil {
			terms = make(map[string]*roaring.Bitmap)
			w.postings[field] = terms
		}
		for _, term := range w.analyzer.Analyze(text) {
			bm := terms[term]
			if bm == nil {
				bm = roaring.New()
				terms[term] = bm
			}
			bm.Add(id)
		}
	}
}

// deleteLocked tombstones an internal id. Postings keep the id; readers
// subtract the tombstone set.
func (w *Writer) deleteLocked(internal uint32) {
	delete(w.docs, internal)
	w.deleted.Add(internal)
}

// Reader returns an immutable snapshot of the current index contents.
// The snapshot is cached per version: repeated calls with no
// intervening mutation return the same Reader.
func (w *Writer) Reader() (*Reader, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return nil, ErrClosed
	}
	return w.readerLocked(), nil
}

// OpenIfChanged returns a fresh Reader, or nil if the index has not
// changed since prev was opened. A nil prev always opens a Reader.
func (w *Writer) OpenIfChanged(prev *Reader) (*Reader, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return nil, ErrClosed
	}
	if prev != nil && prev.version == w.version {
		return nil, nil
	}
	return w.readerLocked(), nil
}

func (w *Writer) readerLocked() *Reader {
	if cached := w.lastReader.Load(); cached != nil && cached.version == w.version {
		return cached
	}

	r := &Reader{
		version:  w.version,
		postings: make(map[string]map[string]*roaring.Bitmap, len(w.postings)),
		docs:     make(map[uint32]Document, len(w.docs)),
		deleted:  w.deleted.Clone(),
	}
	for field, terms := range w.postings {
		tm := make(map[string]*roaring.Bitmap, len(terms))
		for term, bm := range terms {
			tm[term] = bm.Clone()
		}
		r.postings[field] = tm
	}
	for id, doc := range w.docs {
		r.docs[id] = doc
	}

	w.lastReader.Store(r)
	return r
}

// Version returns the writer's current mutation version.
func (w *Writer) Version() uint64 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.version
}

// NumDocs returns the number of live documents.
func (w *Writer) NumDocs() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.docs)
}

// Close marks the writer closed. Further mutations and reader opens
// fail with ErrClosed; existing readers remain usable.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	w.closed = true
	w.lastReader.Store(nil)
	return nil
}
