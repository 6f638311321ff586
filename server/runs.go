package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"echeq/automation"
)

// Run status constants. A run's Status tracks the automation stages as they
// are reported; these three are the terminal/initial states around them.
const (
	RunStatusPending   = "pending"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
)

// Run is one dispatch of a batch through the portal.
type Run struct {
	ID          string                  `json:"id"`
	Flavor      string                  `json:"flavor"`
	BatchID     string                  `json:"batchId"`
	Status      string                  `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Result      *automation.BatchResult `json:"result,omitempty"`
	Error       string                  `json:"error,omitempty"`
}

// RunStore tracks runs in memory. Runs are operational records, not payment
// data; the durable instruction statuses live in Redis.
type RunStore struct {
	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[string]*Run)}
}

func (s *RunStore) Create(flavor, batchID string) *Run {
	s.mu.Lock()
	defer s.mu.Unlock()

	run := &Run{
		ID:        uuid.New().String(),
		Flavor:    flavor,
		BatchID:   batchID,
		Status:    RunStatusPending,
		CreatedAt: time.Now(),
	}
	s.runs[run.ID] = run
	return run
}

func (s *RunStore) Get(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return nil, false
	}
	cp := *run
	return &cp, true
}

// SetStage records a mid-run stage name reported by the engine.
func (s *RunStore) SetStage(id, stage string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok {
		run.Status = stage
		if run.StartedAt == nil {
			now := time.Now()
			run.StartedAt = &now
		}
	}
}

// Complete finalizes a run with its result. A run whose batch confirmed ends
// completed; anything else ends failed.
func (s *RunStore) Complete(id string, result *automation.BatchResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return
	}
	now := time.Now()
	run.CompletedAt = &now
	run.Result = result
	if result != nil && result.ConfirmedAt != "" {
		run.Status = RunStatusCompleted
	} else {
		run.Status = RunStatusFailed
		if result != nil && len(result.Results) > 0 {
			run.Error = firstError(result.Results)
		}
	}
}

func firstError(results []automation.ItemResult) string {
	for _, r := range results {
		if !r.Success && r.Error != "" {
			return r.Error
		}
	}
	return ""
}

// CleanupOld drops finished runs older than maxAge.
func (s *RunStore) CleanupOld(maxAge time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, run := range s.runs {
		if run.CompletedAt != nil && run.CompletedAt.Before(cutoff) {
			delete(s.runs, id)
		}
	}
}
