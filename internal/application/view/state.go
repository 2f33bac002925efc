package view

import (
	"time"

	"rayview/internal/core/model"
)

// uiState is the interaction state of the terminal view. It is only
// touched from the orchestrator loop goroutine.
type uiState struct {
	screenIdx  int
	follow     bool // view tracks the screen new entries land on
	selectedID model.EntryID
	filterIdx  int // index into the color cycle, -1 for none
	paused     bool
	status     string
	statusAt   time.Time
}

func newUIState() *uiState {
	return &uiState{follow: true, filterIdx: -1}
}

// setStatus shows a transient footer message.
func (s *uiState) setStatus(msg string) {
	s.status = msg
	s.statusAt = time.Now()
}

// currentStatus returns the footer message while it is fresh.
func (s *uiState) currentStatus() string {
	if s.status == "" || time.Since(s.statusAt) > 3*time.Second {
		return ""
	}
	return s.status
}

// clearTransient drops selection and filter, returning to follow mode.
func (s *uiState) clearTransient() {
	s.selectedID = 0
	s.filterIdx = -1
	s.follow = true
}
