package app

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"shad-prep/metrics"
	"shad-prep/model"
)

const undoStackLimit = 20

var (
	ErrStageNotFound = errors.New("stage not found")
	ErrTaskNotFound  = errors.New("task not found")
	ErrEntryNotFound = errors.New("diary entry not found")
	ErrNothingToUndo = errors.New("nothing to undo")
)

// Service is the single mutation surface over the app state. Every action
// rebuilds the affected part of the tree, re-derives the stats block and
// leaves the previous tree on the undo stack. Actions never panic: invalid
// input is clamped or ignored.
type Service struct {
	state model.AppState
	undo  []model.AppState
}

// NewService creates a service owning a normalized copy of the given state.
// Stats are re-derived immediately so a stale snapshot cannot smuggle in an
// inconsistent stats block.
func NewService(state model.AppState) *Service {
	state = model.Normalize(copyState(state))
	state.Stats = metrics.Recompute(state.Plan, state.Motivation, time.Now())
	return &Service{state: state, undo: []model.AppState{}}
}

// State returns a deep copy of the current state.
func (s *Service) State() model.AppState {
	return copyState(s.state)
}

// Stages returns the ordered stages as a copy.
func (s *Service) Stages() []model.Stage {
	return copyStages(s.state.Plan.Stages)
}

// Diary returns the diary entries, newest first, as a copy.
func (s *Service) Diary() []model.DiaryEntry {
	out := make([]model.DiaryEntry, len(s.state.Motivation.Diary))
	copy(out, s.state.Motivation.Diary)
	return out
}

// Stats returns the current derived stats block.
func (s *Service) Stats() model.StatsState {
	return s.state.Stats
}

// GetStage returns a stage by id.
func (s *Service) GetStage(id string) (model.Stage, error) {
	for i := range s.state.Plan.Stages {
		if s.state.Plan.Stages[i].ID == id {
			return copyStage(s.state.Plan.Stages[i]), nil
		}
	}
	return model.Stage{}, ErrStageNotFound
}

// AddStage appends an empty stage. Title is taken as-is; rejecting blank
// titles is the caller's job.
func (s *Service) AddStage(title string) model.Stage {
	stage := model.Stage{
		ID:    uuid.NewString(),
		Title: title,
		Tasks: []model.Task{},
	}
	s.pushUndo()
	s.state.Plan.Stages = append(s.state.Plan.Stages, stage)
	s.recompute()
	return copyStage(stage)
}

// RemoveStage deletes a stage and, with it, every task it contains.
func (s *Service) RemoveStage(stageID string) error {
	for i := range s.state.Plan.Stages {
		if s.state.Plan.Stages[i].ID != stageID {
			continue
		}
		s.pushUndo()
		s.state.Plan.Stages = append(s.state.Plan.Stages[:i], s.state.Plan.Stages[i+1:]...)
		s.recompute()
		return nil
	}
	return ErrStageNotFound
}

// SetStageDeadline sets or clears a stage deadline. Past dates are allowed.
func (s *Service) SetStageDeadline(stageID string, deadline *time.Time) error {
	for i := range s.state.Plan.Stages {
		if s.state.Plan.Stages[i].ID != stageID {
			continue
		}
		s.pushUndo()
		if deadline == nil {
			s.state.Plan.Stages[i].Deadline = nil
		} else {
			d := *deadline
			s.state.Plan.Stages[i].Deadline = &d
		}
		return nil
	}
	return ErrStageNotFound
}

// AddTask appends a task built from the discriminated input. Chapter page
// totals are clamped to at least one page; an input with an unknown type is
// ignored.
func (s *Service) AddTask(stageID string, input model.TaskInput) (model.Task, error) {
	idx := s.stageIndex(stageID)
	if idx == -1 {
		return model.Task{}, ErrStageNotFound
	}

	task := model.Task{
		ID:    uuid.NewString(),
		Title: input.Title,
	}
	switch input.Type {
	case model.TaskProblem:
		task.Type = model.TaskProblem
	case model.TaskChapter:
		task.Type = model.TaskChapter
		task.PagesTotal = input.PagesTotal
		if task.PagesTotal < 1 {
			task.PagesTotal = 1
		}
		task.PagesDone = 0
	case model.TaskVideo:
		task.Type = model.TaskVideo
		task.URL = input.URL
	default:
		return model.Task{}, nil
	}

	s.pushUndo()
	s.state.Plan.Stages[idx].Tasks = append(s.state.Plan.Stages[idx].Tasks, task)
	s.recompute()
	return task, nil
}

// RemoveTask deletes a task from its stage.
func (s *Service) RemoveTask(stageID, taskID string) error {
	idx := s.stageIndex(stageID)
	if idx == -1 {
		return ErrStageNotFound
	}
	tasks := s.state.Plan.Stages[idx].Tasks
	for i := range tasks {
		if tasks[i].ID != taskID {
			continue
		}
		s.pushUndo()
		s.state.Plan.Stages[idx].Tasks = append(tasks[:i], tasks[i+1:]...)
		s.recompute()
		return nil
	}
	return ErrTaskNotFound
}

// ToggleTask sets the completion flag. Completing stamps completedAt,
// un-completing clears it. A chapter is toggled through its page count so
// completed always agrees with pagesDone.
func (s *Service) ToggleTask(stageID, taskID string, completed bool) (model.Task, error) {
	idx, ti := s.taskIndex(stageID, taskID)
	if idx == -1 {
		return model.Task{}, ErrStageNotFound
	}
	if ti == -1 {
		return model.Task{}, ErrTaskNotFound
	}

	s.pushUndo()
	t := &s.state.Plan.Stages[idx].Tasks[ti]
	switch t.Type {
	case model.TaskChapter:
		if completed {
			t.PagesDone = t.PagesTotal
		} else {
			t.PagesDone = 0
		}
	case model.TaskProblem, model.TaskVideo:
		// Completion is set directly; no derived fields.
	}
	t.Completed = completed
	if completed {
		now := time.Now()
		t.CompletedAt = &now
	} else {
		t.CompletedAt = nil
	}
	s.recompute()
	return *t, nil
}

// UpdateChapterProgress clamps pagesDone into [0, pagesTotal] and derives
// completion from it. Silently ignored for non-chapter tasks.
func (s *Service) UpdateChapterProgress(stageID, taskID string, pagesDone int) (model.Task, error) {
	idx, ti := s.taskIndex(stageID, taskID)
	if idx == -1 {
		return model.Task{}, ErrStageNotFound
	}
	if ti == -1 {
		return model.Task{}, ErrTaskNotFound
	}

	t := &s.state.Plan.Stages[idx].Tasks[ti]
	if t.Type != model.TaskChapter {
		return *t, nil
	}

	s.pushUndo()
	if pagesDone < 0 {
		pagesDone = 0
	}
	if pagesDone > t.PagesTotal {
		pagesDone = t.PagesTotal
	}
	wasCompleted := t.Completed
	t.PagesDone = pagesDone
	t.Completed = pagesDone >= t.PagesTotal
	switch {
	case t.Completed && !wasCompleted:
		now := time.Now()
		t.CompletedAt = &now
	case !t.Completed:
		t.CompletedAt = nil
	}
	s.recompute()
	return *t, nil
}

// SetQuote replaces the motivational quote.
func (s *Service) SetQuote(quote string) {
	s.pushUndo()
	s.state.Motivation.Quote = quote
}

// SetWhy replaces the "why" free text.
func (s *Service) SetWhy(why string) {
	s.pushUndo()
	s.state.Motivation.Why = why
}

// AddDiaryEntry prepends a new entry dated now. Negative hours are clamped
// to zero.
func (s *Service) AddDiaryEntry(hours float64, text string) model.DiaryEntry {
	if hours < 0 {
		hours = 0
	}
	entry := model.DiaryEntry{
		ID:    uuid.NewString(),
		Date:  time.Now(),
		Hours: hours,
		Text:  text,
	}
	s.pushUndo()
	s.state.Motivation.Diary = append([]model.DiaryEntry{entry}, s.state.Motivation.Diary...)
	s.recompute()
	return entry
}

// UpdateDiaryEntry replaces hours and text of an entry in place, keeping
// its original date.
func (s *Service) UpdateDiaryEntry(entryID string, hours float64, text string) (model.DiaryEntry, error) {
	if hours < 0 {
		hours = 0
	}
	for i := range s.state.Motivation.Diary {
		if s.state.Motivation.Diary[i].ID != entryID {
			continue
		}
		s.pushUndo()
		s.state.Motivation.Diary[i].Hours = hours
		s.state.Motivation.Diary[i].Text = text
		s.recompute()
		return s.state.Motivation.Diary[i], nil
	}
	return model.DiaryEntry{}, ErrEntryNotFound
}

// RemoveDiaryEntry deletes an entry.
func (s *Service) RemoveDiaryEntry(entryID string) error {
	for i := range s.state.Motivation.Diary {
		if s.state.Motivation.Diary[i].ID != entryID {
			continue
		}
		s.pushUndo()
		s.state.Motivation.Diary = append(s.state.Motivation.Diary[:i], s.state.Motivation.Diary[i+1:]...)
		s.recompute()
		return nil
	}
	return ErrEntryNotFound
}

// ResetAll replaces the whole state with the built-in default. The undo
// stack is cleared: reset is irreversible.
func (s *Service) ResetAll() {
	s.state = model.NewState()
	s.undo = s.undo[:0]
	s.recompute()
}

// ImportState replaces the whole state with an externally supplied tree.
// The tree is normalized and its stats block re-derived; the imported stats
// are never trusted.
func (s *Service) ImportState(state model.AppState) {
	s.pushUndo()
	s.state = model.Normalize(copyState(state))
	s.recompute()
}

// Undo reverts the latest action from the undo stack.
func (s *Service) Undo() error {
	if len(s.undo) == 0 {
		return ErrNothingToUndo
	}
	last := s.undo[len(s.undo)-1]
	s.undo = s.undo[:len(s.undo)-1]
	s.state = copyState(last)
	return nil
}

func (s *Service) recompute() {
	s.state.Stats = metrics.Recompute(s.state.Plan, s.state.Motivation, time.Now())
}

func (s *Service) pushUndo() {
	s.undo = append(s.undo, copyState(s.state))
	if len(s.undo) > undoStackLimit {
		s.undo = s.undo[len(s.undo)-undoStackLimit:]
	}
}

func (s *Service) stageIndex(stageID string) int {
	for i := range s.state.Plan.Stages {
		if s.state.Plan.Stages[i].ID == stageID {
			return i
		}
	}
	return -1
}

func (s *Service) taskIndex(stageID, taskID string) (stage, task int) {
	idx := s.stageIndex(stageID)
	if idx == -1 {
		return -1, -1
	}
	for i := range s.state.Plan.Stages[idx].Tasks {
		if s.state.Plan.Stages[idx].Tasks[i].ID == taskID {
			return idx, i
		}
	}
	return idx, -1
}

func copyState(state model.AppState) model.AppState {
	out := state
	out.Plan.Stages = copyStages(state.Plan.Stages)
	out.Motivation.Diary = make([]model.DiaryEntry, len(state.Motivation.Diary))
	copy(out.Motivation.Diary, state.Motivation.Diary)
	if state.User != nil {
		u := *state.User
		out.User = &u
	}
	return out
}

func copyStages(stages []model.Stage) []model.Stage {
	out := make([]model.Stage, len(stages))
	for i, st := range stages {
		out[i] = copyStage(st)
	}
	return out
}

func copyStage(st model.Stage) model.Stage {
	out := st
	out.Tasks = make([]model.Task, len(st.Tasks))
	for i, t := range st.Tasks {
		if t.CompletedAt != nil {
			at := *t.CompletedAt
			t.CompletedAt = &at
		}
		out.Tasks[i] = t
	}
	if st.Deadline != nil {
		d := *st.Deadline
		out.Deadline = &d
	}
	return out
}
