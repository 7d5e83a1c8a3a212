package pipeline

import (
	"sort"

	"github.com/teranos/dealflow/errors"
)

// ErrKeyExists is returned when a bag key would be written twice.
var ErrKeyExists = errors.New("context bag key already written")

// ErrUndeclaredTask is returned when a merge carries a task name the stage
// never declared.
var ErrUndeclaredTask = errors.New("result for undeclared task")

// Key addresses one task result: the stage that produced it and the task name.
type Key struct {
	Stage string `json:"stage"`
	Task  string `json:"task"`
}

func (k Key) String() string { return k.Stage + "/" + k.Task }

// Bag is the append-only store of task results for one run. It is owned by
// the runner goroutine and is not safe for concurrent writers; tasks only
// ever see Snapshots.
type Bag struct {
	input   any
	entries map[Key]TaskResult
	order   []Key
}

// NewBag creates an empty bag seeded with the case input.
func NewBag(input any) *Bag {
	return &Bag{input: input, entries: make(map[Key]TaskResult)}
}

// Put writes a single result. Writing an existing key is an invariant violation.
func (b *Bag) Put(key Key, r TaskResult) error {
	if _, exists := b.entries[key]; exists {
		return errors.Wrapf(ErrKeyExists, "key %s", key)
	}
	b.entries[key] = r
	b.order = append(b.order, key)
	return nil
}

// Get returns the result stored under key.
func (b *Bag) Get(key Key) (TaskResult, bool) {
	r, ok := b.entries[key]
	return r, ok
}

// Len returns the number of stored results.
func (b *Bag) Len() int { return len(b.entries) }

// Merge writes one stage's results. Every result must belong to a declared
// task and no key may already exist; on error nothing is written.
func (b *Bag) Merge(stage string, declared []string, results map[string]TaskResult) error {
	allowed := make(map[string]struct{}, len(declared))
	for _, name := range declared {
		allowed[name] = struct{}{}
	}

	names := make([]string, 0, len(results))
	for name := range results {
		if _, ok := allowed[name]; !ok {
			return errors.Wrapf(ErrUndeclaredTask, "stage %s task %s", stage, name)
		}
		if _, exists := b.entries[Key{Stage: stage, Task: name}]; exists {
			return errors.Wrapf(ErrKeyExists, "key %s/%s", stage, name)
		}
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := Key{Stage: stage, Task: name}
		b.entries[key] = results[name]
		b.order = append(b.order, key)
	}
	return nil
}

// Snapshot returns an immutable copy of the bag's current contents.
func (b *Bag) Snapshot() Snapshot {
	entries := make(map[Key]TaskResult, len(b.entries))
	for k, v := range b.entries {
		entries[k] = v
	}
	order := make([]Key, len(b.order))
	copy(order, b.order)
	return Snapshot{input: b.input, entries: entries, order: order}
}

// Snapshot is a read-only view of the bag at a point in time.
type Snapshot struct {
	input   any
	entries map[Key]TaskResult
	order   []Key
}

// Input returns the case input the run was started with.
func (s Snapshot) Input() any { return s.input }

// Get returns the result under key.
func (s Snapshot) Get(key Key) (TaskResult, bool) {
	r, ok := s.entries[key]
	return r, ok
}

// Lookup is Get with the key spelled out.
func (s Snapshot) Lookup(stage, task string) (TaskResult, bool) {
	return s.Get(Key{Stage: stage, Task: task})
}

// Find returns the first result written for task in any stage.
func (s Snapshot) Find(task string) (TaskResult, bool) {
	for _, k := range s.order {
		if k.Task == task {
			return s.entries[k], true
		}
	}
	return TaskResult{}, false
}

// Keys returns all keys in write order.
func (s Snapshot) Keys() []Key {
	out := make([]Key, len(s.order))
	copy(out, s.order)
	return out
}

// Stage returns the results written by one stage, keyed by task name.
func (s Snapshot) Stage(stage string) map[string]TaskResult {
	out := make(map[string]TaskResult)
	for k, v := range s.entries {
		if k.Stage == stage {
			out[k.Task] = v
		}
	}
	return out
}

// Len returns the number of results in the snapshot.
func (s Snapshot) Len() int { return len(s.entries) }

// InputAs returns the snapshot's case input as T.
func InputAs[T any](s Snapshot) (T, bool) {
	v, ok := s.input.(T)
	return v, ok
}
