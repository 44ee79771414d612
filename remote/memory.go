package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Op names an ObjectStore method for MemoryStore fault injection.
type Op string

// Ops, one per ObjectStore method.
const (
	OpCreate Op = "create" // Create
	OpUpdate Op = "update" // Update
	OpGet    Op = "get"    // Get
	OpCopy   Op = "copy"   // Copy
	OpList   Op = "list"   // List
	OpDelete Op = "delete" // Delete
)

type memoryObject struct {
	name     string
	parentID string
	data     []byte
	modTime  time.Time
}

// MemoryStore is an in-memory ObjectStore implementation for testing.
// Ids are random UUIDs and names need not be unique, like a cloud drive.
// Thread-safe for concurrent reads and writes.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]*memoryObject
	faults  map[Op]error
	calls   map[Op]int
	now     func() time.Time
}

// NewMemoryStore creates a new in-memory object store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		objects: make(map[string]*memoryObject),
		faults:  make(map[Op]error),
		calls:   make(map[Op]int),
		now:     time.Now,
	}
}

// Fail makes every later call of op return err. A nil err clears the fault.
func (m *MemoryStore) Fail(op Op, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.faults, op)
		return
	}
	m.faults[op] = err
}

// Calls returns how often op was invoked, failed calls included.
func (m *MemoryStore) Calls(op Op) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[op]
}

// Bytes returns a copy of an object's content, for assertions.
func (m *MemoryStore) Bytes(id string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	if !ok {
		return nil, false
	}
	return bytes.Clone(obj.data), true
}

// Len returns the number of stored objects.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

// enter records the call and returns the injected fault. Callers hold mu.
func (m *MemoryStore) enter(op Op) error {
	m.calls[op]++
	return m.faults[op]
}

// Create stores a new object.
func (m *MemoryStore) Create(ctx context.Context, name, parentID string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCreate); err != nil {
		return "", err
	}

	id := uuid.NewString()
	m.objects[id] = &memoryObject{name: name, parentID: parentID, data: data, modTime: m.now()}
	return id, nil
}

// Update replaces an object's content.
func (m *MemoryStore) Update(ctx context.Context, id string, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpUpdate); err != nil {
		return err
	}

	obj, ok := m.objects[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	obj.data = data
	obj.modTime = m.now()
	return nil
}

// Get returns a reader over a copy of the object's content.
func (m *MemoryStore) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpGet); err != nil {
		return nil, err
	}

	obj, ok := m.objects[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return io.NopCloser(bytes.NewReader(bytes.Clone(obj.data))), nil
}

// Copy duplicates an object.
func (m *MemoryStore) Copy(ctx context.Context, id, newName, parentID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpCopy); err != nil {
		return "", err
	}

	obj, ok := m.objects[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	newID := uuid.NewString()
	m.objects[newID] = &memoryObject{name: newName, parentID: parentID, data: bytes.Clone(obj.data), modTime: m.now()}
	return newID, nil
}

// List returns matching objects sorted by name.
func (m *MemoryStore) List(ctx context.Context, nameFilter string) ([]ObjectInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpList); err != nil {
		return nil, err
	}

	var out []ObjectInfo
	for id, obj := range m.objects {
		if MatchName(obj.name, nameFilter) {
			out = append(out, ObjectInfo{ID: id, Name: obj.name, ModifiedTime: obj.modTime, Size: int64(len(obj.data))})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes an object.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(OpDelete); err != nil {
		return err
	}

	if _, ok := m.objects[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(m.objects, id)
	return nil
}

// ParentOf returns the folder an object was created in.
func (m *MemoryStore) ParentOf(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[id]
	if !ok {
		return "", false
	}
	return obj.parentID, true
}
