// Package metrics computes every derived number in the app: progress
// percentages, deadline buckets, the activity streak and the stats block.
// All functions are pure; the caller supplies the state and the clock.
package metrics

import (
	"fmt"
	"math"
	"time"

	"shad-prep/model"
)

const dayKeyLayout = "2006-01-02"

// Progress is the rounded completion percentage, 0 when total is 0.
func Progress(done, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// TaskCounts returns completed and total task counts across all stages.
func TaskCounts(plan model.PlanState) (done, total int) {
	for _, st := range plan.Stages {
		total += len(st.Tasks)
		for _, t := range st.Tasks {
			if t.Completed {
				done++
			}
		}
	}
	return done, total
}

// OverallProgress is the plan-wide completion percentage.
func OverallProgress(plan model.PlanState) int {
	done, total := TaskCounts(plan)
	return Progress(done, total)
}

// StageProgress is the completion percentage of a single stage.
func StageProgress(stage model.Stage) int {
	done := 0
	for _, t := range stage.Tasks {
		if t.Completed {
			done++
		}
	}
	return Progress(done, len(stage.Tasks))
}

// StreakDays counts consecutive local calendar days ending today with at
// least one activity: a diary entry or a task completion. Today itself may
// be inactive, yielding 0. Recomputed from scratch on every call.
func StreakDays(diary []model.DiaryEntry, stages []model.Stage, now time.Time) int {
	loc := now.Location()
	days := make(map[string]struct{})
	for _, e := range diary {
		days[e.Date.In(loc).Format(dayKeyLayout)] = struct{}{}
	}
	for _, st := range stages {
		for _, t := range st.Tasks {
			if t.CompletedAt != nil {
				days[t.CompletedAt.In(loc).Format(dayKeyLayout)] = struct{}{}
			}
		}
	}

	count := 0
	for {
		key := now.AddDate(0, 0, -count).In(loc).Format(dayKeyLayout)
		if _, ok := days[key]; !ok {
			break
		}
		count++
	}
	return count
}

// Recompute derives the full stats block from plan and motivation.
func Recompute(plan model.PlanState, motivation model.MotivationState, now time.Time) model.StatsState {
	done, total := TaskCounts(plan)
	var hours float64
	for _, e := range motivation.Diary {
		hours += e.Hours
	}
	return model.StatsState{
		TotalTasks:  total,
		SolvedTasks: done,
		TotalHours:  hours,
		StreakDays:  StreakDays(motivation.Diary, plan.Stages, now),
	}
}

// DeadlineBucket classifies how close a stage deadline is.
type DeadlineBucket int

const (
	BucketOverdue DeadlineBucket = iota
	BucketDueToday
	BucketDueSoon
	BucketNormal
)

// DaysLeft is the whole-day distance between the calendar date of now and
// the calendar date of the deadline, negative when past.
func DaysLeft(deadline, now time.Time) int {
	loc := now.Location()
	d := deadline.In(loc)
	a := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	b := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	// Rounding absorbs DST-shortened or -lengthened days.
	return int(math.Round(b.Sub(a).Hours() / 24))
}

// Bucket maps a deadline to its display classification.
func Bucket(deadline, now time.Time) DeadlineBucket {
	days := DaysLeft(deadline, now)
	switch {
	case days < 0:
		return BucketOverdue
	case days == 0:
		return BucketDueToday
	case days <= 7:
		return BucketDueSoon
	default:
		return BucketNormal
	}
}

// DayHours is one bar of the weekly effort chart.
type DayHours struct {
	Date  time.Time
	Label string
	Hours float64
}

var weekdayLabels = map[time.Weekday]string{
	time.Monday:    "Пн",
	time.Tuesday:   "Вт",
	time.Wednesday: "Ср",
	time.Thursday:  "Чт",
	time.Friday:    "Пт",
	time.Saturday:  "Сб",
	time.Sunday:    "Вс",
}

// WeeklyHours sums diary hours per local calendar day over the last seven
// days, oldest first, today last.
func WeeklyHours(diary []model.DiaryEntry, now time.Time) [7]DayHours {
	loc := now.Location()
	var out [7]DayHours
	index := make(map[string]int, 7)
	for i := 0; i < 7; i++ {
		d := now.AddDate(0, 0, i-6)
		day := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
		out[i] = DayHours{Date: day, Label: weekdayLabels[day.Weekday()]}
		index[day.Format(dayKeyLayout)] = i
	}
	for _, e := range diary {
		if i, ok := index[e.Date.In(loc).Format(dayKeyLayout)]; ok {
			out[i].Hours += e.Hours
		}
	}
	return out
}

// TodayActivity returns tasks completed and hours logged today.
func TodayActivity(plan model.PlanState, diary []model.DiaryEntry, now time.Time) (tasks int, hours float64) {
	loc := now.Location()
	today := now.In(loc).Format(dayKeyLayout)
	for _, st := range plan.Stages {
		for _, t := range st.Tasks {
			if t.CompletedAt != nil && t.CompletedAt.In(loc).Format(dayKeyLayout) == today {
				tasks++
			}
		}
	}
	for _, e := range diary {
		if e.Date.In(loc).Format(dayKeyLayout) == today {
			hours += e.Hours
		}
	}
	return tasks, hours
}

// ShareText builds the shareable progress summary.
func ShareText(state model.AppState, now time.Time) string {
	done, total := TaskCounts(state.Plan)
	todayTasks, todayHours := TodayActivity(state.Plan, state.Motivation.Diary, now)
	quote := state.Motivation.Quote
	if quote == "" {
		quote = "ШАД — это инвестиция в себя!"
	}
	return fmt.Sprintf(`🎯 Мой прогресс подготовки к ШАД:

✅ Решено задач: %d/%d (%d%%)
⏱️ Всего часов: %s
🔥 Серия дней: %d
📅 За сегодня: %d задач, %s часов

%s`,
		done, total, Progress(done, total),
		FormatHours(state.Stats.TotalHours),
		state.Stats.StreakDays,
		todayTasks, FormatHours(todayHours),
		quote,
	)
}

// FormatHours renders an hour amount without a trailing ".0".
func FormatHours(h float64) string {
	if h == math.Trunc(h) {
		return fmt.Sprintf("%d", int64(h))
	}
	return fmt.Sprintf("%.1f", h)
}
