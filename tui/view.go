package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"shad-prep/codec"
	"shad-prep/metrics"
	"shad-prep/model"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
	accentStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("229")).Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("70"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	barFillStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	barRestStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
)

func (m *Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "загрузка..."
	}

	viewW := m.viewportWidth()

	header := m.renderHeader(viewW)

	panelH := m.height - 5
	if panelH < 8 {
		panelH = 8
	}

	var content string
	switch m.page {
	case pageDashboard:
		content = m.renderDashboard(viewW - 4)
	case pagePlan:
		content = m.renderPlan(viewW-4, panelH-2)
	case pageDiary:
		content = m.renderDiary(viewW - 4)
	case pagePomodoro:
		content = m.renderPomodoro(viewW - 4)
	case pageSettings:
		content = m.renderSettings(viewW - 4)
	}

	frameColor := lipgloss.Color("240")
	if m.mode == modeNormal {
		frameColor = lipgloss.Color("39")
	}
	panel := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(frameColor).
		Width(viewW - 2).
		Height(panelH).
		Render(content)

	if m.showHelp {
		popupW := viewW - 8
		if popupW > 80 {
			popupW = 80
		}
		if popupW < 40 {
			popupW = 40
		}
		panel = lipgloss.Place(viewW, panelH, lipgloss.Center, lipgloss.Center, m.renderHelpOverlay(popupW))
	}

	footer := m.renderFooter(viewW)
	prompt := m.renderPrompt(viewW)

	parts := []string{header, panel, footer}
	if prompt != "" && !m.showHelp {
		parts = append(parts, prompt)
	}
	return strings.Join(parts, "\n")
}

func (m *Model) viewportWidth() int {
	// One column reserved against last-character clipping in some terminals.
	if m.width > 1 {
		return m.width - 1
	}
	return m.width
}

func (m *Model) renderHeader(width int) string {
	tabs := make([]string, 0, int(pageCount))
	for p := pageDashboard; p < pageCount; p++ {
		label := fmt.Sprintf("%d %s", int(p)+1, p.String())
		if p == m.page {
			tabs = append(tabs, accentStyle.Render(label))
		} else {
			tabs = append(tabs, mutedStyle.Render(label))
		}
	}
	line := lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("shad-prep"),
		mutedStyle.Render("  "),
		strings.Join(tabs, mutedStyle.Render(" • ")),
	)
	return lipgloss.NewStyle().Width(width).Render(line)
}

func (m *Model) renderDashboard(width int) string {
	st := m.svc.State()
	now := time.Now()
	done, total := metrics.TaskCounts(st.Plan)
	overall := metrics.Progress(done, total)
	todayTasks, todayHours := metrics.TodayActivity(st.Plan, st.Motivation.Diary, now)

	barW := width - 8
	if barW > 50 {
		barW = 50
	}
	if barW < 10 {
		barW = 10
	}

	lines := []string{
		titleStyle.Render("Ваш прогресс"),
		"",
		fmt.Sprintf("Общий план  %s %3d%%  (%d/%d задач)", progressBar(barW, overall), overall, done, total),
		"",
		fmt.Sprintf("🔥 Серия: %s   ⏱️ Всего часов: %s   📅 Сегодня: %d задач, %s ч",
			accentStyle.Render(fmt.Sprintf("%d дн.", st.Stats.StreakDays)),
			metrics.FormatHours(st.Stats.TotalHours),
			todayTasks, metrics.FormatHours(todayHours)),
		"",
	}

	if len(st.Plan.Stages) == 0 {
		lines = append(lines, mutedStyle.Render("Этапов пока нет. Откройте План (2) и нажмите 'a'."))
	} else {
		lines = append(lines, titleStyle.Render("Этапы"))
		for _, stage := range st.Plan.Stages {
			pct := metrics.StageProgress(stage)
			row := fmt.Sprintf("%s %3d%%  %s", progressBar(barW/2, pct), pct, truncateRunes(stage.Title, width/2))
			if stage.Deadline != nil {
				row += "  " + deadlineBadge(*stage.Deadline, now)
			}
			lines = append(lines, row)
		}
	}

	if q := strings.TrimSpace(st.Motivation.Quote); q != "" {
		lines = append(lines, "", mutedStyle.Render("«"+truncateRunes(q, width-4)+"»"))
	}
	lines = append(lines, "", mutedStyle.Render("s — поделиться прогрессом"))
	return strings.Join(lines, "\n")
}

func (m *Model) renderPlan(width, height int) string {
	stages := m.svc.Stages()

	leftW := width / 3
	if leftW < 18 {
		leftW = 18
	}
	rightW := width - leftW - 3
	if rightW < 20 {
		rightW = 20
	}

	left := make([]string, 0, len(stages)+2)
	left = append(left, panelTitleStyled("Этапы", m.focus == focusStages))
	if len(stages) == 0 {
		left = append(left, mutedStyle.Render("Нажмите 'a', чтобы создать этап."))
	}
	now := time.Now()
	for i, stage := range stages {
		cursor := " "
		if i == m.stageCursor {
			cursor = "▸"
		}
		pct := metrics.StageProgress(stage)
		line := fmt.Sprintf("%s %s %d%%", cursor, truncateRunes(stage.Title, leftW-8), pct)
		if stage.Deadline != nil {
			line += " " + deadlineBadge(*stage.Deadline, now)
		}
		if i == m.stageCursor {
			style := lipgloss.NewStyle().Bold(true)
			if m.focus == focusStages {
				style = style.Foreground(lipgloss.Color("229"))
			}
			line = style.Render(line)
		}
		left = append(left, line)
	}

	right := make([]string, 0, 8)
	stage, hasStage := m.activeStage()
	title := "Задачи"
	if hasStage {
		title = "Задачи — " + stage.Title
	}
	right = append(right, panelTitleStyled(title, m.focus == focusTasks))
	switch {
	case !hasStage:
		right = append(right, mutedStyle.Render("Нет активного этапа."))
	case len(stage.Tasks) == 0:
		right = append(right, mutedStyle.Render("Этап пуст. Tab и 'a' — добавить задачу."))
	default:
		for i, t := range stage.Tasks {
			cursor := " "
			if i == m.taskCursor {
				cursor = "▸"
			}
			check := "[ ]"
			if t.Completed {
				check = "[x]"
			}
			line := fmt.Sprintf("%s %s %s %s", cursor, check, taskIcon(t.Type), taskLabel(t, rightW-12))
			style := lipgloss.NewStyle()
			if t.Completed {
				style = style.Faint(true)
			}
			if i == m.taskCursor {
				style = style.Bold(true)
				if m.focus == focusTasks {
					style = style.Foreground(lipgloss.Color("229"))
				}
			}
			right = append(right, style.Render(line))
		}
	}

	leftPanel := lipgloss.NewStyle().Width(leftW).Height(height).Render(strings.Join(left, "\n"))
	rightPanel := lipgloss.NewStyle().Width(rightW).Height(height).Render(strings.Join(right, "\n"))
	divider := barRestStyle.Render("│")
	return lipgloss.JoinHorizontal(lipgloss.Top, leftPanel, divider, rightPanel)
}

func (m *Model) renderDiary(width int) string {
	diary := m.svc.Diary()
	week := metrics.WeeklyHours(diary, time.Now())

	var peak float64
	for _, d := range week {
		if d.Hours > peak {
			peak = d.Hours
		}
	}

	lines := []string{titleStyle.Render("Дневник усилий"), ""}
	barW := width - 14
	if barW > 40 {
		barW = 40
	}
	if barW < 8 {
		barW = 8
	}
	for _, d := range week {
		fill := 0
		if peak > 0 {
			fill = int(d.Hours / peak * float64(barW))
		}
		bar := barFillStyle.Render(strings.Repeat("█", fill)) + barRestStyle.Render(strings.Repeat("░", barW-fill))
		lines = append(lines, fmt.Sprintf("%s %s %s ч", d.Label, bar, metrics.FormatHours(d.Hours)))
	}
	lines = append(lines, "")

	if len(diary) == 0 {
		lines = append(lines, mutedStyle.Render("Записей пока нет. Нажмите 'a', чтобы записать часы."))
	}
	for i, e := range diary {
		cursor := " "
		if i == m.diaryCursor {
			cursor = "▸"
		}
		header := fmt.Sprintf("%s %s • %s ч", cursor, e.Date.Local().Format("02.01.2006 15:04"), metrics.FormatHours(e.Hours))
		if i == m.diaryCursor {
			header = accentStyle.Render(header)
		}
		lines = append(lines, header)
		if text := strings.TrimSpace(e.Text); text != "" {
			lines = append(lines, "    "+mutedStyle.Render(truncateRunes(text, width-6)))
		}
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderPomodoro(width int) string {
	phase := "Фокус"
	totalSec := workSeconds
	if m.pomoBreak {
		phase = "Перерыв"
		totalSec = breakSeconds
	}
	barW := width - 10
	if barW > 40 {
		barW = 40
	}
	if barW < 10 {
		barW = 10
	}
	pct := (totalSec - m.pomoLeft) * 100 / totalSec

	state := "на паузе"
	if m.pomoRunning {
		state = "идёт"
	}

	lines := []string{
		titleStyle.Render("Pomodoro Таймер"),
		"",
		mutedStyle.Render(phase + " • " + state),
		"",
		accentStyle.Render(fmt.Sprintf("  %02d:%02d", m.pomoLeft/60, m.pomoLeft%60)),
		"",
		progressBar(barW, pct),
		"",
		fmt.Sprintf("Сессий завершено: %d", m.pomoSessions),
		"",
		mutedStyle.Render("space — старт/пауза, r — сброс"),
		"",
		mutedStyle.Render("25 минут фокуса, 5 минут перерыва. После цикла — награди себя!"),
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderSettings(width int) string {
	st := m.svc.State()
	lines := []string{
		titleStyle.Render("Настройки"),
		"",
		"Цитата: " + mutedStyle.Render(truncateRunes(st.Motivation.Quote, width-10)),
		"",
		"m — изменить цитату",
		"e — экспорт данных (shad-backup-ГГГГ-ММ-ДД.json)",
		"i — импорт данных из файла",
		errStyle.Render("R — сбросить все данные"),
		"",
		mutedStyle.Render("Файл состояния: " + m.statePath),
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHelpOverlay(width int) string {
	rows := []string{
		accentStyle.Render("Горячие клавиши"),
		"",
		"1-5 / [ ]   страницы приложения",
		"Tab         фокус этапы/задачи (План)",
		"j/k, ↑/↓    перемещение курсора",
		"a           добавить (этап, задачу, запись)",
		"d           удалить выбранное",
		"space       выполнено / не выполнено",
		"+/-, p      страницы главы",
		"D           дедлайн этапа",
		"e           изменить запись дневника / экспорт",
		"u           отменить действие",
		"s           поделиться прогрессом",
		"?           эта справка, q — выход",
	}
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("39")).
		Padding(0, 2).
		Width(width).
		Render(strings.Join(rows, "\n"))
}

func (m *Model) renderFooter(width int) string {
	statusText := m.status
	if statusText == "" {
		statusText = "Готово"
	}
	style := okStyle
	if m.statusErr {
		style = errStyle
	}
	left := style.Render(truncateRunes(statusText, width-12))
	right := mutedStyle.Render("? справка")
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func (m *Model) renderPrompt(width int) string {
	prompt := ""
	switch m.mode {
	case modeAddStage:
		prompt = "Новый этап: " + m.input + "▌"
	case modeTaskType:
		prompt = "Тип задачи: [p] задача  [c] глава  [v] видео  (Esc — отмена)"
	case modeTaskTitle:
		prompt = "Название: " + m.input + "▌"
	case modeTaskPages:
		prompt = "Всего страниц: " + m.input + "▌"
	case modeTaskURL:
		prompt = "Ссылка (необязательно): " + m.input + "▌"
	case modeEditPages:
		prompt = "Прочитано страниц: " + m.input + "▌"
	case modeSetDeadline:
		prompt = "Дедлайн (ГГГГ-ММ-ДД, пусто — снять): " + m.input + "▌"
	case modeDiaryHours:
		prompt = "Часы: " + m.input + "▌"
	case modeDiaryText:
		prompt = "Заметка: " + m.input + "▌"
	case modeEditQuote:
		prompt = "Цитата: " + m.input + "▌"
	case modeImportPath:
		prompt = "Путь к файлу импорта: " + m.input + "▌"
	case modeConfirmDelete:
		target := "элемент"
		switch m.confirmKind {
		case deleteStage:
			target = "этап (вместе с задачами)"
		case deleteTask:
			target = "задачу"
		case deleteEntry:
			target = "запись"
		case deleteNone:
		}
		prompt = fmt.Sprintf("Удалить %s \"%s\"? [y/N]", target, truncateRunes(m.confirmName, 40))
	case modeConfirmReset:
		prompt = "Сбросить ВСЕ данные без возможности восстановления? [y/N]"
	case modeNormal:
	}
	if prompt == "" {
		return ""
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Width(width).Render(prompt)
}

func panelTitleStyled(title string, active bool) string {
	base := lipgloss.NewStyle().Bold(true)
	if !active {
		return base.Render(title)
	}
	text := base.Foreground(lipgloss.Color("229")).Render(title)
	marker := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10")).Render("*")
	return lipgloss.JoinHorizontal(lipgloss.Left, text, " ", marker)
}

func progressBar(width, pct int) string {
	if width < 1 {
		width = 1
	}
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	fill := width * pct / 100
	return barFillStyle.Render(strings.Repeat("█", fill)) + barRestStyle.Render(strings.Repeat("░", width-fill))
}

func taskIcon(t model.TaskType) string {
	switch t {
	case model.TaskProblem:
		return "∑"
	case model.TaskChapter:
		return "📖"
	case model.TaskVideo:
		return "▶"
	}
	return "?"
}

func taskLabel(t model.Task, max int) string {
	label := t.Title
	switch t.Type {
	case model.TaskChapter:
		label = fmt.Sprintf("%s (%d/%d стр.)", t.Title, t.PagesDone, t.PagesTotal)
	case model.TaskVideo:
		if t.URL != "" {
			label = t.Title + " ↗"
		}
	case model.TaskProblem:
	}
	return truncateRunes(label, max)
}

func deadlineBadge(deadline, now time.Time) string {
	days := metrics.DaysLeft(deadline, now)
	switch metrics.Bucket(deadline, now) {
	case metrics.BucketOverdue:
		return errStyle.Render("просрочено")
	case metrics.BucketDueToday:
		return errStyle.Render("сегодня!")
	case metrics.BucketDueSoon:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("220")).Render(fmt.Sprintf("осталось %d дн.", days))
	default:
		return mutedStyle.Render(fmt.Sprintf("осталось %d дн.", days))
	}
}

func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 1 {
		return "…"
	}
	r := []rune(s)
	return string(r[:max-1]) + "…"
}

func exportState(state model.AppState) (string, error) {
	return codec.ExportFile(state, ".", time.Now())
}

func importState(path string) (model.AppState, error) {
	return codec.ImportFile(path)
}
