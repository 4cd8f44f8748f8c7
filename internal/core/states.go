package core

import "scenegraph/pkg/domain"

// StartState pushes state onto the lifecycle stack. Listeners see the batch
// start first when state newly implies batch processing, then the state's
// own start unless it was already active.
func (s *Scene) StartState(state domain.StateFlag) {
	wasBatch := s.IsBatchProcessing()
	wasInState := s.inState(state)
	s.states = append(s.states, state)
	if !wasBatch && s.IsBatchProcessing() {
		s.emit(domain.Event{Type: domain.EventStateStarted, State: domain.StateBatchProcess})
	}
	if state != domain.StateBatchProcess && !wasInState {
		s.emit(domain.Event{Type: domain.EventStateStarted, State: state})
	}
}

// EndState pops the most recent matching entry. Ending a state that is not
// active only logs a warning.
func (s *Scene) EndState(state domain.StateFlag) {
	idx := -1
	for i := len(s.states) - 1; i >= 0; i-- {
		if s.states[i] == state {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.logger.Warn("end of lifecycle state that was never started", "state", state.String())
		return
	}
	wasBatch := s.IsBatchProcessing()
	s.states = append(s.states[:idx], s.states[idx+1:]...)
	if state != domain.StateBatchProcess && !s.inState(state) {
		s.emit(domain.Event{Type: domain.EventStateEnded, State: state})
	}
	if wasBatch && !s.IsBatchProcessing() {
		s.emit(domain.Event{Type: domain.EventStateEnded, State: domain.StateBatchProcess})
	}
}

// ProgressState reports progress within a running state.
func (s *Scene) ProgressState(state domain.StateFlag, progress int) {
	if state.Has(domain.StateBatchProcess) {
		s.emit(domain.Event{Type: domain.EventStateProgress, State: domain.StateBatchProcess, Progress: progress})
	}
	if state != domain.StateBatchProcess {
		s.emit(domain.Event{Type: domain.EventStateProgress, State: state, Progress: progress})
	}
}

// States returns the aggregate of every active state.
func (s *Scene) States() domain.StateFlag {
	var agg domain.StateFlag
	for _, st := range s.states {
		agg |= st
	}
	return agg
}

func (s *Scene) inState(state domain.StateFlag) bool {
	return s.States().Has(state)
}

func (s *Scene) IsBatchProcessing() bool { return s.inState(domain.StateBatchProcess) }
func (s *Scene) IsClosing() bool         { return s.inState(domain.StateClose) }
func (s *Scene) IsImporting() bool       { return s.inState(domain.StateImport) }
func (s *Scene) IsRestoring() bool       { return s.inState(domain.StateRestore) }
func (s *Scene) IsUndoing() bool         { return s.inState(domain.StateUndo) }
func (s *Scene) IsRedoing() bool         { return s.inState(domain.StateRedo) }
