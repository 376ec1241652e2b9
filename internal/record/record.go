// Package record keeps per-player progress: best times, attempts and
// completed levels.
package record

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"

	"github.com/labstack/gommon/log"
)

// Backend persists record books as raw JSON.
type Backend interface {
	GetObject(key string) ([]byte, error)
	PutObject(key string, data []byte) error
}

// LevelKey returns the map key used for a level.
func LevelKey(levelID int) string {
	return "level_" + strconv.Itoa(levelID)
}

// Record is the progress on one level.
type Record struct {
	LevelID   int  `json:"levelId"`
	BestTime  int  `json:"bestTime"`
	HasBest   bool `json:"hasBest"`
	Attempts  int  `json:"attempts"`
	Completed bool `json:"completed"`
}

// Totals summarises progress over all levels.
type Totals struct {
	CompletedCount int `json:"completedCount"`
	TotalAttempts  int `json:"totalAttempts"`
	TotalLevels    int `json:"totalLevels"`
	Remaining      int `json:"remaining"`
	Percent        int `json:"percent"`
}

// Book holds one player's progress, keyed by LevelKey.
type Book struct {
	BestTimes map[string]int  `json:"bestTimes"`
	Attempts  map[string]int  `json:"attempts"`
	Completed map[string]bool `json:"completed"`
}

// NewBook creates an empty Book.
func NewBook() *Book {
	return &Book{
		BestTimes: make(map[string]int),
		Attempts:  make(map[string]int),
		Completed: make(map[string]bool),
	}
}

func (b *Book) ensure() {
	if b.BestTimes == nil {
		b.BestTimes = make(map[string]int)
	}
	if b.Attempts == nil {
		b.Attempts = make(map[string]int)
	}
	if b.Completed == nil {
		b.Completed = make(map[string]bool)
	}
}

// Get returns the record for a level.
func (b *Book) Get(levelID int) Record {
	key := LevelKey(levelID)
	best, ok := b.BestTimes[key]
	return Record{
		LevelID:   levelID,
		BestTime:  best,
		HasBest:   ok,
		Attempts:  b.Attempts[key],
		Completed: b.Completed[key],
	}
}

// AddAttempt counts one attempt and returns the new count.
func (b *Book) AddAttempt(levelID int) int {
	b.ensure()
	key := LevelKey(levelID)
	b.Attempts[key]++
	return b.Attempts[key]
}

// AddWin marks the level completed and keeps seconds as the best time if
// it beats the previous one. It reports whether a new best was set.
func (b *Book) AddWin(levelID, seconds int) bool {
	b.ensure()
	key := LevelKey(levelID)
	b.Completed[key] = true

	best, ok := b.BestTimes[key]
	if ok && seconds >= best {
		return false
	}
	b.BestTimes[key] = seconds
	return true
}

// Totals summarises the book against totalLevels levels.
func (b *Book) Totals(totalLevels int) Totals {
	t := Totals{TotalLevels: totalLevels}
	for _, done := range b.Completed {
		if done {
			t.CompletedCount++
		}
	}
	for _, n := range b.Attempts {
		t.TotalAttempts += n
	}
	t.Remaining = max(totalLevels-t.CompletedCount, 0)
	if t.CompletedCount > 0 {
		t.Percent = int(math.Round(float64(t.CompletedCount) / float64(max(totalLevels, 1)) * 100))
	}
	return t
}

func (b *Book) clone() *Book {
	cp := NewBook()
	for k, v := range b.BestTimes {
		cp.BestTimes[k] = v
	}
	for k, v := range b.Attempts {
		cp.Attempts[k] = v
	}
	for k, v := range b.Completed {
		cp.Completed[k] = v
	}
	return cp
}

// Store caches record books in memory and writes them through to a
// Backend in the background. A nil Backend keeps records in memory only.
// Players never wait on each other: each book has its own lock, and only
// the first access to a book reads the backend.
type Store struct {
	backend Backend
	keyFn   func(playerID string) string
	logger  *log.Logger

	mu      sync.Mutex
	entries map[string]*entry
	errs    []error

	writes sync.WaitGroup
}

type entry struct {
	mu     sync.Mutex
	book   *Book
	loaded bool

	// saveMu orders the writes of one book so the last one stored is the
	// latest.
	saveMu sync.Mutex
}

// NewStore creates a Store. keyFn maps a player id to its backend key.
func NewStore(backend Backend, keyFn func(string) string, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New("record")
	}
	return &Store{
		backend: backend,
		keyFn:   keyFn,
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// Book returns a copy of a player's book.
func (s *Store) Book(playerID string) *Book {
	e := s.entry(playerID)
	e.mu.Lock()
	defer e.mu.Unlock()
	s.load(playerID, e)
	return e.book.clone()
}

// AddAttempt counts an attempt for the player and schedules a write.
func (s *Store) AddAttempt(playerID string, levelID int) (int, error) {
	var n int
	err := s.update(playerID, func(b *Book) {
		n = b.AddAttempt(levelID)
	})
	return n, err
}

// AddWin records a win for the player and schedules a write.
func (s *Store) AddWin(playerID string, levelID, seconds int) (bool, error) {
	var newBest bool
	err := s.update(playerID, func(b *Book) {
		newBest = b.AddWin(levelID, seconds)
	})
	return newBest, err
}

// Flush waits for scheduled writes and returns the errors of writes that
// failed since the last Flush.
func (s *Store) Flush() error {
	s.writes.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	err := errors.Join(s.errs...)
	s.errs = nil
	return err
}

func (s *Store) entry(playerID string) *entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[playerID]
	if !ok {
		e = &entry{}
		s.entries[playerID] = e
	}
	return e
}

func (s *Store) update(playerID string, fn func(*Book)) error {
	e := s.entry(playerID)
	e.mu.Lock()
	s.load(playerID, e)
	fn(e.book)
	e.mu.Unlock()

	if s.backend == nil {
		return nil
	}
	if playerID == "" {
		return errors.New("empty player id")
	}
	s.writes.Add(1)
	go s.save(playerID, e)
	return nil
}

// load reads the book from the backend on first use. A missing or
// unreadable book starts empty. e.mu must be held.
func (s *Store) load(playerID string, e *entry) {
	if e.loaded {
		return
	}
	e.loaded = true
	b := NewBook()
	if s.backend != nil {
		data, err := s.backend.GetObject(s.keyFn(playerID))
		switch {
		case err != nil:
			s.logger.Debugf("no stored records for %s: %v", playerID, err)
		case json.Unmarshal(data, b) != nil:
			s.logger.Warnf("discarding unreadable records for %s", playerID)
			b = NewBook()
		}
		b.ensure()
	}
	e.book = b
}

func (s *Store) save(playerID string, e *entry) {
	defer s.writes.Done()

	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	data, err := json.Marshal(e.book)
	e.mu.Unlock()
	if err == nil {
		err = s.backend.PutObject(s.keyFn(playerID), data)
	}
	if err != nil {
		err = fmt.Errorf("failed to save records for %s: %w", playerID, err)
		s.logger.Warnf("%v", err)
		s.mu.Lock()
		s.errs = append(s.errs, err)
		s.mu.Unlock()
	}
}
