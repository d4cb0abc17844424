// Package lexgo provides an embedded near-real-time full-text index for Go.
//
// Writes go through a single writer; searches run against immutable
// point-in-time snapshots. A background scheduler reopens snapshots on
// a bounded cadence, so new documents become searchable within a
// configurable staleness window without coupling every write to a
// reopen.
//
// # Quick Start
//
//	ctx := context.Background()
//	lx, err := lexgo.Open(ctx,
//	    lexgo.WithRefreshInterval(25*time.Millisecond, time.Second),
//	)
//	if err != nil {
//	    panic(err)
//	}
//	defer lx.Close()
//
//	gen, err := lx.Add(ctx, index.Document{
//	    ID:     "order-17",
//	    Fields: map[string]string{"status": "open", "note": "rush delivery"},
//	})
//
// A write is not immediately visible. Wait for it when read-your-write
// semantics are needed:
//
//	if err := lx.WaitSearchable(ctx, gen, time.Second); err != nil {
//	    // timed out, cancelled, or closed
//	}
//	hits, err := lx.Search(searcher.TermQuery{Field: "status", Term: "open"})
//
// For long-lived searches, acquire a snapshot explicitly and release
// it when done:
//
//	s, err := lx.Acquire()
//	if err != nil { ... }
//	defer lx.Release(s)
//
// # Durability
//
// Configure a blob store to persist commits; Open restores the latest
// committed snapshot automatically:
//
//	store, _ := blobstore.NewLocalStore("./data")
//	lx, err := lexgo.Open(ctx, lexgo.WithBlobStore(store))
//	...
//	gen, err := lx.Commit(ctx) // snapshot everything indexed so far
package lexgo
