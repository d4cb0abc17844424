// Package index implements lexgo's in-memory inverted index.
//
// A Writer accepts document mutations and hands out immutable,
// point-in-time Readers. Postings lists and the tombstone set are
// roaring bitmaps; a Reader owns private clones of both, so it needs
// no locking and is unaffected by later writes.
//
// TrackingWriter wraps a Writer and stamps every mutation with a
// strictly increasing generation. The stamp is assigned after the
// mutation's effects are applied, so a Reader opened while the
// tracker reports generation G contains every mutation stamped <= G.
package index
