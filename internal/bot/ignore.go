package bot

import (
	"sort"
	"sync"
)

// ignoreList is the per-transport set of speakers whose messages are
// silently dropped. Process lifetime only; never persisted.
type ignoreList struct {
	mu    sync.Mutex
	names map[string]struct{}
}

func newIgnoreList() *ignoreList {
	return &ignoreList{names: make(map[string]struct{})}
}

// Toggle flips the name in or out of the set and reports whether it is
// ignored afterwards.
func (l *ignoreList) Toggle(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.names[name]; ok {
		delete(l.names, name)
		return false
	}
	l.names[name] = struct{}{}
	return true
}

// Contains reports whether the name is currently ignored.
func (l *ignoreList) Contains(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.names[name]
	return ok
}

// Names returns the ignored names, sorted for stable output.
func (l *ignoreList) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	names := make([]string, 0, len(l.names))
	for name := range l.names {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
