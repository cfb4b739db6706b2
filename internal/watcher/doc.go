// Package watcher turns fsnotify events under one or more document roots
// into debounced batches for incremental ingestion.
//
// Rapid editor and sync-tool writes are coalesced per path, and paths the
// Filter rejects (excluded directories, ignored files, unlisted extensions)
// are dropped before they reach the debouncer.
//
// Usage:
//
//	w, err := watcher.New(scanner, watcher.DefaultOptions())
//	if err != nil {
//	    return err
//	}
//	defer w.Stop()
//	if err := w.Add("/home/me/notes"); err != nil {
//	    return err
//	}
//	go w.Run(ctx)
//	for batch := range w.Batches() {
//	    // ingest batch
//	}
package watcher
