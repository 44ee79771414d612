package vecsync

// Close flushes and releases the backing file. Further calls fail with
// ErrNotInitialized. Close is idempotent.
func (e *Engine) Close() error {
	if e == nil || !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	return translateError(e.store.Close())
}
