package app

import (
	"errors"
	"testing"
	"time"

	"shad-prep/metrics"
	"shad-prep/model"
)

func mustAddTask(t *testing.T, svc *Service, stageID string, input model.TaskInput) model.Task {
	t.Helper()
	task, err := svc.AddTask(stageID, input)
	if err != nil {
		t.Fatalf("add task failed: %v", err)
	}
	return task
}

func solvedCount(state model.AppState) int {
	count := 0
	for _, st := range state.Plan.Stages {
		for _, task := range st.Tasks {
			if task.Completed {
				count++
			}
		}
	}
	return count
}

func TestAddStageScenario(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Матан")

	state := svc.State()
	if len(state.Plan.Stages) != 1 {
		t.Fatalf("expected 1 stage, got %d", len(state.Plan.Stages))
	}
	if state.Plan.Stages[0].Title != "Матан" {
		t.Fatalf("unexpected stage title: %q", state.Plan.Stages[0].Title)
	}
	if stage.ID == "" {
		t.Fatalf("expected generated stage id")
	}
	if len(stage.Tasks) != 0 {
		t.Fatalf("new stage must start empty, got %d tasks", len(stage.Tasks))
	}
	if got := metrics.OverallProgress(state.Plan); got != 0 {
		t.Fatalf("expected overall progress 0, got %d", got)
	}
	if state.Stats.TotalTasks != 0 || state.Stats.SolvedTasks != 0 {
		t.Fatalf("unexpected stats: %+v", state.Stats)
	}
}

func TestChapterProgressScenario(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Алгебра")
	task := mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskChapter, Title: "Глава 1", PagesTotal: 50})

	if task.PagesDone != 0 || task.Completed {
		t.Fatalf("new chapter must start unread: %+v", task)
	}

	updated, err := svc.UpdateChapterProgress(stage.ID, task.ID, 50)
	if err != nil {
		t.Fatalf("update chapter progress failed: %v", err)
	}
	if !updated.Completed {
		t.Fatalf("expected chapter completed at full pages")
	}
	if updated.CompletedAt == nil {
		t.Fatalf("expected completedAt to be set")
	}
	if got := svc.Stats().SolvedTasks; got != 1 {
		t.Fatalf("expected solvedTasks 1, got %d", got)
	}
}

func TestChapterProgressClampAndRegress(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Анализ")
	task := mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskChapter, Title: "Пределы", PagesTotal: 30})

	updated, err := svc.UpdateChapterProgress(stage.ID, task.ID, 999)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.PagesDone != 30 || !updated.Completed {
		t.Fatalf("expected clamp to pagesTotal, got %+v", updated)
	}

	updated, err = svc.UpdateChapterProgress(stage.ID, task.ID, -5)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.PagesDone != 0 {
		t.Fatalf("expected clamp to 0, got %d", updated.PagesDone)
	}
	if updated.Completed {
		t.Fatalf("chapter must not stay completed after regress")
	}
	if updated.CompletedAt != nil {
		t.Fatalf("completedAt must be cleared when no longer completed")
	}
	if got := svc.Stats().SolvedTasks; got != 0 {
		t.Fatalf("expected solvedTasks 0, got %d", got)
	}
}

func TestChapterPagesTotalClampedToOne(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Теорвер")
	task := mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskChapter, Title: "Пустая глава", PagesTotal: 0})
	if task.PagesTotal != 1 {
		t.Fatalf("expected pagesTotal clamped to 1, got %d", task.PagesTotal)
	}
}

func TestUpdateChapterProgressIgnoresOtherTypes(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Задачи")
	task := mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskProblem, Title: "Интеграл"})

	updated, err := svc.UpdateChapterProgress(stage.ID, task.ID, 10)
	if err != nil {
		t.Fatalf("expected silent no-op, got error: %v", err)
	}
	if updated.PagesDone != 0 || updated.Completed {
		t.Fatalf("problem task must be untouched: %+v", updated)
	}
}

func TestToggleTaskSetsAndClearsCompletedAt(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Видео")
	task := mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskVideo, Title: "Лекция 1", URL: "https://example.com"})

	updated, err := svc.ToggleTask(stage.ID, task.ID, true)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if !updated.Completed || updated.CompletedAt == nil {
		t.Fatalf("expected completed with timestamp: %+v", updated)
	}

	updated, err = svc.ToggleTask(stage.ID, task.ID, false)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if updated.Completed || updated.CompletedAt != nil {
		t.Fatalf("expected cleared completion: %+v", updated)
	}
}

func TestToggleChapterRoutesThroughPages(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Книга")
	task := mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskChapter, Title: "Глава 2", PagesTotal: 40})

	updated, err := svc.ToggleTask(stage.ID, task.ID, true)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if updated.PagesDone != 40 || !updated.Completed {
		t.Fatalf("toggling a chapter on must fill its pages: %+v", updated)
	}

	updated, err = svc.ToggleTask(stage.ID, task.ID, false)
	if err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if updated.PagesDone != 0 || updated.Completed {
		t.Fatalf("toggling a chapter off must reset its pages: %+v", updated)
	}
}

func TestSolvedTasksAlwaysMatchesCompletedCount(t *testing.T) {
	svc := NewService(model.NewState())
	a := svc.AddStage("A")
	b := svc.AddStage("B")

	t1 := mustAddTask(t, svc, a.ID, model.TaskInput{Type: model.TaskProblem, Title: "1"})
	t2 := mustAddTask(t, svc, a.ID, model.TaskInput{Type: model.TaskChapter, Title: "2", PagesTotal: 10})
	t3 := mustAddTask(t, svc, b.ID, model.TaskInput{Type: model.TaskVideo, Title: "3"})

	steps := []func(){
		func() { _, _ = svc.ToggleTask(a.ID, t1.ID, true) },
		func() { _, _ = svc.UpdateChapterProgress(a.ID, t2.ID, 10) },
		func() { _, _ = svc.ToggleTask(b.ID, t3.ID, true) },
		func() { _, _ = svc.ToggleTask(a.ID, t1.ID, false) },
		func() { _ = svc.RemoveTask(a.ID, t2.ID) },
	}
	for i, step := range steps {
		step()
		state := svc.State()
		if state.Stats.SolvedTasks != solvedCount(state) {
			t.Fatalf("step %d: solvedTasks %d does not match completed count %d",
				i, state.Stats.SolvedTasks, solvedCount(state))
		}
	}
}

func TestRemoveStageCascades(t *testing.T) {
	svc := NewService(model.NewState())
	keep := svc.AddStage("Остаётся")
	doomed := svc.AddStage("Удаляется")

	mustAddTask(t, svc, keep.ID, model.TaskInput{Type: model.TaskProblem, Title: "k1"})
	d1 := mustAddTask(t, svc, doomed.ID, model.TaskInput{Type: model.TaskProblem, Title: "d1"})
	d2 := mustAddTask(t, svc, doomed.ID, model.TaskInput{Type: model.TaskProblem, Title: "d2"})
	mustAddTask(t, svc, doomed.ID, model.TaskInput{Type: model.TaskVideo, Title: "d3"})
	if _, err := svc.ToggleTask(doomed.ID, d1.ID, true); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}
	if _, err := svc.ToggleTask(doomed.ID, d2.ID, true); err != nil {
		t.Fatalf("toggle failed: %v", err)
	}

	before := svc.Stats()
	if err := svc.RemoveStage(doomed.ID); err != nil {
		t.Fatalf("remove stage failed: %v", err)
	}

	after := svc.Stats()
	if after.TotalTasks != before.TotalTasks-3 {
		t.Fatalf("expected 3 tasks removed, stats %+v -> %+v", before, after)
	}
	if after.SolvedTasks != before.SolvedTasks-2 {
		t.Fatalf("expected solvedTasks to drop by 2, stats %+v -> %+v", before, after)
	}
	if _, err := svc.GetStage(doomed.ID); !errors.Is(err, ErrStageNotFound) {
		t.Fatalf("expected ErrStageNotFound, got %v", err)
	}
}

func TestAddTaskUnknownTypeIgnored(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Этап")
	if _, err := svc.AddTask(stage.ID, model.TaskInput{Type: "quiz", Title: "???"}); err != nil {
		t.Fatalf("unknown type must be ignored, got error: %v", err)
	}
	if got := svc.Stats().TotalTasks; got != 0 {
		t.Fatalf("unknown type must not create a task, totalTasks %d", got)
	}
}

func TestDiaryHoursAddUpdateRemove(t *testing.T) {
	svc := NewService(model.NewState())
	base := svc.Stats().TotalHours

	entry := svc.AddDiaryEntry(2, "разбор задач")
	if got := svc.Stats().TotalHours; got != base+2 {
		t.Fatalf("expected totalHours %v, got %v", base+2, got)
	}

	if _, err := svc.UpdateDiaryEntry(entry.ID, 3.5, "разбор задач и теория"); err != nil {
		t.Fatalf("update entry failed: %v", err)
	}
	if got := svc.Stats().TotalHours; got != base+3.5 {
		t.Fatalf("expected totalHours %v, got %v", base+3.5, got)
	}

	if err := svc.RemoveDiaryEntry(entry.ID); err != nil {
		t.Fatalf("remove entry failed: %v", err)
	}
	if got := svc.Stats().TotalHours; got != base {
		t.Fatalf("totalHours must return to %v exactly, got %v", base, got)
	}
}

func TestDiaryNegativeHoursClamped(t *testing.T) {
	svc := NewService(model.NewState())
	entry := svc.AddDiaryEntry(-4, "опечатка")
	if entry.Hours != 0 {
		t.Fatalf("expected clamped hours 0, got %v", entry.Hours)
	}
	if got := svc.Stats().TotalHours; got != 0 {
		t.Fatalf("expected totalHours 0, got %v", got)
	}
}

func TestDiaryEntryOrderNewestFirst(t *testing.T) {
	svc := NewService(model.NewState())
	svc.AddDiaryEntry(1, "первая")
	second := svc.AddDiaryEntry(2, "вторая")

	diary := svc.Diary()
	if len(diary) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(diary))
	}
	if diary[0].ID != second.ID {
		t.Fatalf("expected newest entry first, got %q", diary[0].Text)
	}
}

func TestDiaryMissingEntryErrors(t *testing.T) {
	svc := NewService(model.NewState())
	if _, err := svc.UpdateDiaryEntry("missing", 1, "x"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
	if err := svc.RemoveDiaryEntry("missing"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected ErrEntryNotFound, got %v", err)
	}
}

func TestTodayActivityYieldsStreakOne(t *testing.T) {
	svc := NewService(model.NewState())
	if got := svc.Stats().StreakDays; got != 0 {
		t.Fatalf("fresh state must have streak 0, got %d", got)
	}
	svc.AddDiaryEntry(1, "сегодняшняя запись")
	if got := svc.Stats().StreakDays; got != 1 {
		t.Fatalf("expected streak 1 after logging today, got %d", got)
	}
}

func TestSetStageDeadline(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Экзамен")

	deadline := time.Now().AddDate(0, 0, 3)
	if err := svc.SetStageDeadline(stage.ID, &deadline); err != nil {
		t.Fatalf("set deadline failed: %v", err)
	}
	got, err := svc.GetStage(stage.ID)
	if err != nil {
		t.Fatalf("get stage failed: %v", err)
	}
	if got.Deadline == nil || !got.Deadline.Equal(deadline) {
		t.Fatalf("unexpected deadline: %v", got.Deadline)
	}

	if err := svc.SetStageDeadline(stage.ID, nil); err != nil {
		t.Fatalf("clear deadline failed: %v", err)
	}
	got, err = svc.GetStage(stage.ID)
	if err != nil {
		t.Fatalf("get stage failed: %v", err)
	}
	if got.Deadline != nil {
		t.Fatalf("expected deadline cleared, got %v", got.Deadline)
	}
}

func TestResetAll(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Этап")
	mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskProblem, Title: "1"})
	svc.AddDiaryEntry(2, "x")
	svc.SetQuote("своя цитата")

	svc.ResetAll()

	state := svc.State()
	if len(state.Plan.Stages) != 0 || len(state.Motivation.Diary) != 0 {
		t.Fatalf("expected empty state after reset: %+v", state)
	}
	if state.Motivation.Quote != model.DefaultQuote {
		t.Fatalf("expected default quote, got %q", state.Motivation.Quote)
	}
	if state.Stats != (model.StatsState{}) {
		t.Fatalf("expected zeroed stats, got %+v", state.Stats)
	}
	if err := svc.Undo(); !errors.Is(err, ErrNothingToUndo) {
		t.Fatalf("reset must clear the undo stack, got %v", err)
	}
}

func TestImportStateRederivesStats(t *testing.T) {
	svc := NewService(model.NewState())

	imported := model.NewState()
	imported.Plan.Stages = []model.Stage{{
		ID:    "s1",
		Title: "Импортированный",
		Tasks: []model.Task{
			{ID: "t1", Type: model.TaskProblem, Title: "a", Completed: false},
			{ID: "t2", Type: model.TaskChapter, Title: "b", PagesTotal: 10, PagesDone: 10},
		},
	}}
	imported.Motivation.Diary = []model.DiaryEntry{
		{ID: "e1", Date: time.Now(), Hours: 2.5, Text: "x"},
	}
	// A stale stats block that must not survive the import.
	imported.Stats = model.StatsState{TotalTasks: 99, SolvedTasks: 99, TotalHours: 99, StreakDays: 99}

	svc.ImportState(imported)

	stats := svc.Stats()
	if stats.TotalTasks != 2 || stats.SolvedTasks != 1 {
		t.Fatalf("expected re-derived task stats, got %+v", stats)
	}
	if stats.TotalHours != 2.5 {
		t.Fatalf("expected re-derived totalHours 2.5, got %v", stats.TotalHours)
	}
	if stats.StreakDays != 1 {
		t.Fatalf("expected re-derived streak 1, got %d", stats.StreakDays)
	}
}

func TestUndoRevertsLastAction(t *testing.T) {
	svc := NewService(model.NewState())
	svc.AddStage("Первый")
	svc.AddStage("Второй")

	if err := svc.Undo(); err != nil {
		t.Fatalf("undo failed: %v", err)
	}
	stages := svc.Stages()
	if len(stages) != 1 || stages[0].Title != "Первый" {
		t.Fatalf("unexpected stages after undo: %+v", stages)
	}
}

func TestStateReturnsIsolatedCopy(t *testing.T) {
	svc := NewService(model.NewState())
	stage := svc.AddStage("Этап")
	mustAddTask(t, svc, stage.ID, model.TaskInput{Type: model.TaskProblem, Title: "x"})

	state := svc.State()
	state.Plan.Stages[0].Title = "подмена"
	state.Plan.Stages[0].Tasks[0].Title = "подмена"

	fresh := svc.State()
	if fresh.Plan.Stages[0].Title != "Этап" || fresh.Plan.Stages[0].Tasks[0].Title != "x" {
		t.Fatalf("State() must return an isolated copy, got %+v", fresh.Plan.Stages[0])
	}
}
