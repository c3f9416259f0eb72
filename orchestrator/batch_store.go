package orchestrator

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type BatchStatus string

const (
	BatchStarted   BatchStatus = "started"
	BatchCompleted BatchStatus = "completed"
)

// Batch is the record of one background batch.
type Batch struct {
	ID          string      `json:"batch_id"`
	ScriptID    string      `json:"script_id"`
	Status      BatchStatus `json:"status"`
	Report      *Report     `json:"report,omitempty"`
	SubmittedAt time.Time   `json:"submitted_at"`
	CompletedAt time.Time   `json:"completed_at,omitempty"`
}

// BatchStore keeps batch records in memory until they expire.
type BatchStore struct {
	sync.RWMutex
	batches map[string]*Batch
	logger  *slog.Logger
	now     func() time.Time

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
}

func NewBatchStore(logger *slog.Logger) *BatchStore {
	return &BatchStore{
		batches: make(map[string]*Batch),
		logger:  logger,
		now:     time.Now,
	}
}

// Start records a new running batch and returns its id.
func (s *BatchStore) Start(scriptID string) string {
	id := uuid.New().String()
	s.Lock()
	defer s.Unlock()
	s.batches[id] = &Batch{ID: id, ScriptID: scriptID, Status: BatchStarted, SubmittedAt: s.now()}
	return id
}

func (s *BatchStore) Complete(id string, report *Report) {
	s.Lock()
	defer s.Unlock()
	b, ok := s.batches[id]
	if !ok {
		return
	}
	b.Status = BatchCompleted
	b.Report = report.snapshot()
	b.CompletedAt = s.now()
}

// Get returns a copy of a batch record.
func (s *BatchStore) Get(id string) (Batch, bool) {
	s.RLock()
	defer s.RUnlock()
	b, ok := s.batches[id]
	if !ok {
		return Batch{}, false
	}
	return *b, true
}

// List returns the batches of a script, oldest first.
func (s *BatchStore) List(scriptID string) []Batch {
	s.RLock()
	out := make([]Batch, 0)
	for _, b := range s.batches {
		if b.ScriptID == scriptID {
			out = append(out, *b)
		}
	}
	s.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.Before(out[j].SubmittedAt) })
	return out
}

// StartCleanup drops completed batches older than threshold every interval.
func (s *BatchStore) StartCleanup(threshold, interval time.Duration) {
	s.stopCleanup = make(chan struct{})
	s.cleanupTicker = time.NewTicker(interval)

	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				s.performCleanup(threshold)
			case <-s.stopCleanup:
				s.cleanupTicker.Stop()
				return
			}
		}
	}()
}

func (s *BatchStore) StopCleanup() {
	s.stopOnce.Do(func() {
		if s.stopCleanup != nil {
			close(s.stopCleanup)
		}
	})
}

func (s *BatchStore) performCleanup(threshold time.Duration) int {
	now := s.now()
	s.Lock()
	defer s.Unlock()

	removed := 0
	for id, b := range s.batches {
		if b.Status == BatchCompleted && now.Sub(b.CompletedAt) > threshold {
			delete(s.batches, id)
			removed++
			s.logger.Debug("Deleted batch record due to expiration", slog.String("batch_id", id))
		}
	}
	return removed
}
