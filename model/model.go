package model

import "time"

// TaskType discriminates the task variants.
// The set is closed: problem, chapter, video. Every switch over a TaskType
// must list all three cases explicitly so a new variant breaks review, not
// runtime behavior.
type TaskType string

const (
	TaskProblem TaskType = "problem"
	TaskChapter TaskType = "chapter"
	TaskVideo   TaskType = "video"
)

// Valid reports whether t is one of the known variants.
func (t TaskType) Valid() bool {
	switch t {
	case TaskProblem, TaskChapter, TaskVideo:
		return true
	}
	return false
}

// Task is a unit of study work inside a stage.
// PagesTotal/PagesDone are meaningful only for chapters, URL only for videos.
// CompletedAt is present iff Completed. For chapters Completed is derived:
// it holds exactly when PagesDone >= PagesTotal.
type Task struct {
	ID          string     `json:"id"`
	Type        TaskType   `json:"type"`
	Title       string     `json:"title"`
	Completed   bool       `json:"completed"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	PagesTotal  int        `json:"pagesTotal,omitempty"`
	PagesDone   int        `json:"pagesDone,omitempty"`
	URL         string     `json:"url,omitempty"`
}

// Stage is a named phase of the plan. Task order is display order.
type Stage struct {
	ID       string     `json:"id"`
	Title    string     `json:"title"`
	Tasks    []Task     `json:"tasks"`
	Deadline *time.Time `json:"deadline,omitempty"`
}

// DiaryEntry logs hours of effort with a free-text note.
type DiaryEntry struct {
	ID    string    `json:"id"`
	Date  time.Time `json:"date"`
	Hours float64   `json:"hours"`
	Text  string    `json:"text"`
}

// PlanState holds the ordered stages.
type PlanState struct {
	Stages []Stage `json:"stages"`
}

// MotivationState holds the quote, the diary (newest first) and the "why"
// free text. Why has no screen yet but survives in the snapshot.
type MotivationState struct {
	Quote string       `json:"quote"`
	Diary []DiaryEntry `json:"diary"`
	Why   string       `json:"why"`
}

// StatsState is fully derived from plan and motivation; it is recomputed
// after every mutation and never maintained incrementally.
type StatsState struct {
	TotalTasks  int     `json:"totalTasks"`
	SolvedTasks int     `json:"solvedTasks"`
	TotalHours  float64 `json:"totalHours"`
	StreakDays  int     `json:"streakDays"`
}

// User is optional profile data carried in the snapshot.
type User struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// AppState is the aggregate root and the full persisted snapshot.
type AppState struct {
	User       *User           `json:"user,omitempty"`
	Plan       PlanState       `json:"plan"`
	Motivation MotivationState `json:"motivation"`
	Stats      StatsState      `json:"stats"`
}

// TaskInput is the discriminated payload for adding a task.
// PagesTotal applies to chapters, URL to videos.
type TaskInput struct {
	Type       TaskType
	Title      string
	PagesTotal int
	URL        string
}

// DefaultQuote is the canned motivational quote of a fresh state.
const DefaultQuote = "ШАД — это инвестиция в себя. Продолжай!"

// NewState returns an initialized default state.
func NewState() AppState {
	return AppState{
		Plan: PlanState{Stages: []Stage{}},
		Motivation: MotivationState{
			Quote: DefaultQuote,
			Diary: []DiaryEntry{},
			Why:   "",
		},
		Stats: StatsState{},
	}
}

// Normalize repairs a state decoded from an external source: nil slices
// become empty, chapter pages are clamped into range and chapter completion
// is re-derived, negative hours are zeroed. It never rejects.
func Normalize(state AppState) AppState {
	if state.Plan.Stages == nil {
		state.Plan.Stages = []Stage{}
	}
	for i := range state.Plan.Stages {
		st := &state.Plan.Stages[i]
		if st.Tasks == nil {
			st.Tasks = []Task{}
		}
		for j := range st.Tasks {
			normalizeTask(&st.Tasks[j])
		}
	}
	if state.Motivation.Diary == nil {
		state.Motivation.Diary = []DiaryEntry{}
	}
	for i := range state.Motivation.Diary {
		if state.Motivation.Diary[i].Hours < 0 {
			state.Motivation.Diary[i].Hours = 0
		}
	}
	return state
}

func normalizeTask(t *Task) {
	switch t.Type {
	case TaskChapter:
		if t.PagesTotal < 1 {
			t.PagesTotal = 1
		}
		if t.PagesDone < 0 {
			t.PagesDone = 0
		}
		if t.PagesDone > t.PagesTotal {
			t.PagesDone = t.PagesTotal
		}
		t.Completed = t.PagesDone >= t.PagesTotal
	case TaskProblem, TaskVideo:
		t.PagesTotal = 0
		t.PagesDone = 0
	default:
		// Unknown variant in a foreign snapshot; fold into problem so the
		// closed set holds everywhere downstream.
		t.Type = TaskProblem
		t.PagesTotal = 0
		t.PagesDone = 0
	}
	if !t.Completed {
		t.CompletedAt = nil
	}
}
