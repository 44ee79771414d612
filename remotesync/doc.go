// Package remotesync keeps a slotstore.Store in step with one primary object
// in a remote.ObjectStore.
//
// A Syncer moves through Uninitialized, Authenticated, Synced and Diverged.
// Push uploads a flushed copy of the whole backing file; Pull downloads the
// remote object next to the backing file and only swaps it in once it is
// complete and verified. Remote failures never touch local state: they leave
// the store serving reads and writes and come back as ErrRemoteUnavailable.
//
// Usage:
//
//	s, err := remotesync.New(store, connect, remotesync.Options{ObjectName: "memory.bin"})
//	if err := s.Authenticate(ctx); err != nil {
//		// keep running local-only
//	}
//	err = s.Push(ctx)
package remotesync
