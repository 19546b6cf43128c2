package sync

import (
	"fmt"
	"sync"
	"time"
)

const recordEventBufferSize = 64

// RecordState is the position of a record in the push state machine
type RecordState string

const (
	StatePending          RecordState = "pending"
	StateBuilding         RecordState = "building"
	StateBuildFailed      RecordState = "build_failed"
	StateBuilt            RecordState = "built"
	StateConflictChecking RecordState = "conflict_checking"
	StateConflicted       RecordState = "conflicted"
	StateConflictClear    RecordState = "conflict_clear"
	StateUploading        RecordState = "uploading"
	StateRetryWait        RecordState = "retry_wait"
	StateUploaded         RecordState = "uploaded"
	StateFailed           RecordState = "failed"
)

// Terminal reports whether no further transitions follow the state
func (s RecordState) Terminal() bool {
	switch s {
	case StateBuildFailed, StateConflicted, StateFailed, StateUploaded:
		return true
	}
	return false
}

// RecordStatus is the latest known state of one record
type RecordStatus struct {
	State       RecordState
	Error       error
	Retries     int
	LastUpdated time.Time
}

func (s *RecordStatus) String() string {
	return fmt.Sprintf("State: %s, Retries: %d, Error: %v", s.State, s.Retries, s.Error)
}

// RecordStatusEvent is broadcast on every transition
type RecordStatusEvent struct {
	Key    string
	Status RecordStatus
}

// StatusTracker records the state of every record pushed in this session
type StatusTracker struct {
	records map[string]*RecordStatus
	mu      sync.RWMutex

	eventSubs []chan *RecordStatusEvent
	eventMu   sync.RWMutex
}

func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		records:   make(map[string]*RecordStatus),
		eventSubs: make([]chan *RecordStatusEvent, 0),
	}
}

// Subscribe returns a channel for receiving status events
func (s *StatusTracker) Subscribe() <-chan *RecordStatusEvent {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	ch := make(chan *RecordStatusEvent, recordEventBufferSize)
	s.eventSubs = append(s.eventSubs, ch)
	return ch
}

// Unsubscribe removes a subscription channel
func (s *StatusTracker) Unsubscribe(ch <-chan *RecordStatusEvent) {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()

	for i, sub := range s.eventSubs {
		if sub == ch {
			close(sub)
			s.eventSubs = append(s.eventSubs[:i], s.eventSubs[i+1:]...)
			break
		}
	}
}

func (s *StatusTracker) broadcast(key string, status RecordStatus) {
	s.eventMu.RLock()
	defer s.eventMu.RUnlock()

	event := &RecordStatusEvent{Key: key, Status: status}
	for _, sub := range s.eventSubs {
		select {
		case sub <- event:
		default:
			// Channel is full, skip to avoid blocking
		}
	}
}

// Set moves a record to state. err is kept for failed states.
func (s *StatusTracker) Set(key string, state RecordState, err error) {
	if s == nil {
		return
	}

	s.mu.Lock()
	status, ok := s.records[key]
	if !ok || (status.State.Terminal() && state == StatePending) {
		status = &RecordStatus{}
		s.records[key] = status
	}
	status.State = state
	status.Error = err
	if state == StateRetryWait {
		status.Retries++
	}
	status.LastUpdated = time.Now()
	snapshot := *status
	s.mu.Unlock()

	s.broadcast(key, snapshot)
}

// Get returns the status of a record
func (s *StatusTracker) Get(key string) (RecordStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.records[key]
	if !ok {
		return RecordStatus{}, false
	}
	return *status, true
}

// Counts returns the number of records per state
func (s *StatusTracker) Counts() map[RecordState]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	counts := make(map[RecordState]int)
	for _, status := range s.records {
		counts[status.State]++
	}
	return counts
}
