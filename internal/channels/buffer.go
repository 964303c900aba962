package channels

import (
	"sort"
	"sync"

	"github.com/declwidgets/declwidgets/internal/serialize"
)

// DefaultChannel is the channel used when none is named
const DefaultChannel = "default"

// Handler is invoked with the previous and new value of a watched variable
type Handler func(oldVal, newVal any) error

// Entry is a value waiting to be published with its serialization options
type Entry struct {
	Value   any
	Options []serialize.Option
}

// Pending is a buffered entry together with its address
type Pending struct {
	Channel string
	Key     string
	Entry
}

// watcherTable maps channel -> variable name -> handler. The table outlives
// any single live registry.
type watcherTable struct {
	mu       sync.RWMutex
	handlers map[string]map[string]Handler
}

func newWatcherTable() *watcherTable {
	return &watcherTable{handlers: make(map[string]map[string]Handler)}
}

func (w *watcherTable) set(channel, key string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()

	byKey, ok := w.handlers[channel]
	if !ok {
		byKey = make(map[string]Handler)
		w.handlers[channel] = byKey
	}
	byKey[key] = h
}

func (w *watcherTable) lookup(channel, key string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	byKey, ok := w.handlers[channel]
	if !ok {
		return nil, false
	}
	h, ok := byKey[key]
	return h, ok
}

func (w *watcherTable) len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()

	n := 0
	for _, byKey := range w.handlers {
		n += len(byKey)
	}
	return n
}

// Buffer holds channel state recorded before a front end is connected
type Buffer struct {
	mu       sync.Mutex
	data     map[string]map[string]Entry
	watchers *watcherTable
}

// NewBuffer creates an empty buffer
func NewBuffer() *Buffer {
	return &Buffer{
		data:     make(map[string]map[string]Entry),
		watchers: newWatcherTable(),
	}
}

// Set records value under (channel, key), replacing any earlier entry
func (b *Buffer) Set(channel, key string, value any, opts ...serialize.Option) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byKey, ok := b.data[channel]
	if !ok {
		byKey = make(map[string]Entry)
		b.data[channel] = byKey
	}
	byKey[key] = Entry{Value: value, Options: opts}
}

// Watch records handler for (channel, key), replacing any earlier handler
func (b *Buffer) Watch(channel, key string, handler Handler) {
	b.watchers.set(channel, key, handler)
}

// Len returns the number of buffered values
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for _, byKey := range b.data {
		n += len(byKey)
	}
	return n
}

// Drain empties the value table and returns its entries ordered by channel
// then key
func (b *Buffer) Drain() []Pending {
	b.mu.Lock()
	data := b.data
	b.data = make(map[string]map[string]Entry)
	b.mu.Unlock()

	var out []Pending
	for channel, byKey := range data {
		for key, entry := range byKey {
			out = append(out, Pending{Channel: channel, Key: key, Entry: entry})
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Channel != out[j].Channel {
			return out[i].Channel < out[j].Channel
		}
		return out[i].Key < out[j].Key
	})
	return out
}
