// Package tables is a process-wide cache of remote data tables. Consumers
// declare the tables they depend on, the store fetches whichever are not yet
// loaded, and every consumer reads the same snapshots.
package tables

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/fvbommel/sortorder"

	"github.com/Its-donkey/campus-portal/logging"
)

var (
	// ErrInvalidTableName is returned for names outside [A-Za-z0-9_]+.
	ErrInvalidTableName = errors.New("tables: invalid table name")
	// ErrNoTables is returned by fetchers asked for nothing.
	ErrNoTables = errors.New("tables: no table names given")
	// ErrNoStore is returned when a context carries no *Store.
	ErrNoStore = errors.New("tables: no store in context")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func validName(name string) bool {
	return namePattern.MatchString(name)
}

const logCategory = "tables"

// EventKind says what happened to the tables named in an Event.
type EventKind int

const (
	// Replaced means new snapshots were stored.
	Replaced EventKind = iota
	// Invalidated means snapshots were dropped.
	Invalidated
)

// Event is delivered to subscribers after a change is applied.
type Event struct {
	Kind  EventKind
	Names []string
}

type entry struct {
	rows   []Row
	loaded bool
}

// call is one fetch in flight. Other Ensure callers needing the same names
// wait on done instead of fetching again.
type call struct {
	done chan struct{}
	err  error
}

// Store holds the table snapshots. It is safe for concurrent use; a
// snapshot is replaced as a whole so readers see either the old or the new
// rows.
type Store struct {
	fetcher Fetcher
	logger  *logging.Logger

	mu        sync.RWMutex
	entries   map[string]*entry
	versions  map[string]uint64
	inflight  map[string]*call
	loading   int
	lastError string

	listenMu  sync.Mutex
	listeners map[int]func(Event)
	nextID    int
}

// NewStore builds an empty store. A nil logger discards.
func NewStore(fetcher Fetcher, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Store{
		fetcher:   fetcher,
		logger:    logger,
		entries:   make(map[string]*entry),
		versions:  make(map[string]uint64),
		inflight:  make(map[string]*call),
		listeners: make(map[int]func(Event)),
	}
}

// Ensure makes sure every name is loaded. Without force, names already
// loaded are skipped and names being fetched by another caller are awaited.
// With force, all names are fetched again.
//
// Once issued, a fetch runs to completion even if ctx is cancelled; ctx only
// bounds how long this caller waits on fetches issued by others.
func (s *Store) Ensure(ctx context.Context, names []string, force bool) error {
	names, err := normaliseNames(names)
	if err != nil {
		return err
	}

	s.mu.Lock()
	var fetch []string
	var waits []*call
	seen := make(map[*call]bool)
	for _, name := range names {
		if force {
			fetch = append(fetch, name)
			continue
		}
		if e := s.entries[name]; e != nil && e.loaded {
			continue
		}
		if c := s.inflight[name]; c != nil {
			if !seen[c] {
				seen[c] = true
				waits = append(waits, c)
			}
			continue
		}
		fetch = append(fetch, name)
	}
	var own *call
	if len(fetch) > 0 {
		own = &call{done: make(chan struct{})}
		for _, name := range fetch {
			s.inflight[name] = own
		}
		s.loading++
	}
	s.mu.Unlock()

	var errs []error
	if own != nil {
		if err := s.fetch(context.WithoutCancel(ctx), fetch, own); err != nil {
			errs = append(errs, err)
		}
	}
	for _, c := range waits {
		select {
		case <-c.done:
			if c.err != nil {
				errs = append(errs, c.err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return errors.Join(errs...)
}

func (s *Store) fetch(ctx context.Context, names []string, c *call) error {
	result, err := s.fetcher.FetchTables(ctx, names)

	s.mu.Lock()
	var replaced []string
	if err != nil {
		c.err = fmt.Errorf("load tables %s: %w", strings.Join(names, ","), err)
		s.lastError = errorMessage(err)
	} else {
		for name, rows := range result {
			if rows == nil {
				rows = []Row{}
			}
			s.entries[name] = &entry{rows: rows, loaded: true}
			s.versions[name]++
			replaced = append(replaced, name)
		}
		s.lastError = ""
	}
	for _, name := range names {
		if s.inflight[name] == c {
			delete(s.inflight, name)
		}
	}
	s.loading--
	s.mu.Unlock()
	close(c.done)

	if err != nil {
		s.logger.Error(logCategory, "table fetch failed", err, map[string]any{"tables": names})
		return c.err
	}
	s.logger.Debug(logCategory, "tables loaded", map[string]any{"requested": names, "loaded": replaced})
	if len(replaced) > 0 {
		s.notify(Event{Kind: Replaced, Names: sortedNames(replaced)})
	}
	return nil
}

// Rows returns the snapshot for name, or nil when it is not loaded. It never
// fetches. The returned slice must not be modified.
func (s *Store) Rows(name string) []Row {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.entries[name]
	if e == nil {
		return nil
	}
	return e.rows[:len(e.rows):len(e.rows)]
}

// Loaded reports whether name holds a snapshot.
func (s *Store) Loaded(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.entries[name]
	return e != nil && e.loaded
}

// Version increases every time name's snapshot is replaced or dropped.
func (s *Store) Version(name string) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.versions[name]
}

// Loading reports whether any fetch is outstanding.
func (s *Store) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading > 0
}

// LastError is the message of the most recent failed fetch, cleared by the
// next successful one.
func (s *Store) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

// Invalidate drops the named snapshots, or all of them when no name is
// given. The next Ensure fetches them again.
func (s *Store) Invalidate(names ...string) {
	s.mu.Lock()
	var dropped []string
	if len(names) == 0 {
		for name := range s.entries {
			dropped = append(dropped, name)
		}
		s.entries = make(map[string]*entry)
	} else {
		for _, name := range names {
			if _, ok := s.entries[name]; ok {
				delete(s.entries, name)
				dropped = append(dropped, name)
			}
		}
	}
	for _, name := range dropped {
		s.versions[name]++
	}
	s.mu.Unlock()

	if len(dropped) > 0 {
		s.logger.Debug(logCategory, "tables invalidated", map[string]any{"tables": dropped})
		s.notify(Event{Kind: Invalidated, Names: sortedNames(dropped)})
	}
}

// Subscribe registers fn for change events. Events are delivered on the
// goroutine that made the change. The returned func removes fn.
func (s *Store) Subscribe(fn func(Event)) func() {
	s.listenMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	s.listenMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenMu.Lock()
			delete(s.listeners, id)
			s.listenMu.Unlock()
		})
	}
}

func (s *Store) notify(ev Event) {
	s.listenMu.Lock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenMu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}

func normaliseNames(names []string) ([]string, error) {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if !validName(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidTableName, name)
		}
		if seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

// sortedNames orders names naturally, so "t2" sorts before "t10".
func sortedNames(names []string) []string {
	sort.Sort(sortorder.Natural(names))
	return names
}

type storeKey struct{}

// WithStore returns a context carrying s.
func WithStore(ctx context.Context, s *Store) context.Context {
	return context.WithValue(ctx, storeKey{}, s)
}

// FromContext returns the store carried by ctx.
func FromContext(ctx context.Context) (*Store, error) {
	s, ok := ctx.Value(storeKey{}).(*Store)
	if !ok || s == nil {
		return nil, ErrNoStore
	}
	return s, nil
}
