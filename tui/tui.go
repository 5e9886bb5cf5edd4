package tui

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"

	"shad-prep/app"
	"shad-prep/metrics"
	"shad-prep/model"
	"shad-prep/store"
)

type page int

const (
	pageDashboard page = iota
	pagePlan
	pageDiary
	pagePomodoro
	pageSettings
	pageCount
)

func (p page) String() string {
	switch p {
	case pageDashboard:
		return "Прогресс"
	case pagePlan:
		return "План"
	case pageDiary:
		return "Дневник"
	case pagePomodoro:
		return "Pomodoro"
	case pageSettings:
		return "Настройки"
	}
	return ""
}

type focusPane int

const (
	focusStages focusPane = iota
	focusTasks
)

type uiMode int

const (
	modeNormal uiMode = iota
	modeAddStage
	modeTaskType
	modeTaskTitle
	modeTaskPages
	modeTaskURL
	modeEditPages
	modeSetDeadline
	modeDiaryHours
	modeDiaryText
	modeEditQuote
	modeImportPath
	modeConfirmDelete
	modeConfirmReset
)

type deleteKind int

const (
	deleteNone deleteKind = iota
	deleteStage
	deleteTask
	deleteEntry
)

// Pomodoro timing, same as the original: 25 minutes focus, 5 break.
const (
	workSeconds  = 25 * 60
	breakSeconds = 5 * 60
)

type tickMsg time.Time

type Model struct {
	svc       *app.Service
	statePath string

	page  page
	mode  uiMode
	focus focusPane

	stageCursor int
	taskCursor  int
	diaryCursor int

	input string

	pendingTask    model.TaskInput
	pendingEntryID string
	pendingHours   float64

	confirmKind deleteKind
	confirmID   string
	confirmName string

	pomoRunning  bool
	pomoBreak    bool
	pomoLeft     int
	pomoSessions int

	showHelp bool

	status    string
	statusErr bool

	width  int
	height int
}

func NewModel(svc *app.Service, statePath, startupStatus string) *Model {
	status := strings.TrimSpace(startupStatus)
	if status == "" {
		status = "Готово"
	}
	return &Model{
		svc:       svc,
		statePath: statePath,
		page:      pageDashboard,
		mode:      modeNormal,
		status:    status,
		pomoLeft:  workSeconds,
	}
}

// Run starts the interactive program.
func Run(svc *app.Service, statePath, startupStatus string) error {
	_, err := tea.NewProgram(NewModel(svc, statePath, startupStatus), tea.WithAltScreen()).Run()
	return err
}

func (m *Model) Init() tea.Cmd {
	return nil
}

func tick() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case tickMsg:
		return m, m.advancePomodoro()
	case tea.KeyMsg:
		switch m.mode {
		case modeConfirmDelete, modeConfirmReset:
			m.updateConfirmMode(msg)
		case modeTaskType:
			m.updateTaskTypeMode(msg)
		case modeNormal:
			if quit, cmd := m.updateNormalMode(msg); quit {
				return m, tea.Quit
			} else if cmd != nil {
				return m, cmd
			}
		default:
			m.updateInputMode(msg)
		}
	}
	return m, nil
}

func (m *Model) advancePomodoro() tea.Cmd {
	if !m.pomoRunning {
		return nil
	}
	m.pomoLeft--
	if m.pomoLeft > 0 {
		return tick()
	}
	if m.pomoBreak {
		m.pomoBreak = false
		m.pomoLeft = workSeconds
		m.setStatus("Перерыв окончен. Снова фокус!", false)
	} else {
		m.pomoSessions++
		m.pomoBreak = true
		m.pomoLeft = breakSeconds
		m.setStatus("Сессия завершена. Перерыв 5 минут.", false)
	}
	m.pomoRunning = false
	return nil
}

func (m *Model) updateNormalMode(msg tea.KeyMsg) (bool, tea.Cmd) {
	key := msg.String()

	if m.showHelp {
		switch key {
		case "esc", "?", "q":
			m.showHelp = false
		}
		return false, nil
	}

	switch key {
	case "ctrl+c", "q":
		return true, nil
	case "?":
		m.showHelp = true
		return false, nil
	case "1":
		m.page = pageDashboard
	case "2":
		m.page = pagePlan
	case "3":
		m.page = pageDiary
	case "4":
		m.page = pagePomodoro
	case "5":
		m.page = pageSettings
	case "[":
		m.page = (m.page + pageCount - 1) % pageCount
	case "]":
		m.page = (m.page + 1) % pageCount
	case "u":
		m.undo()
		return false, nil
	}

	switch m.page {
	case pageDashboard:
		if key == "s" {
			m.sharePrompt()
		}
	case pagePlan:
		m.updatePlanKeys(key)
	case pageDiary:
		m.updateDiaryKeys(key)
	case pagePomodoro:
		if cmd := m.updatePomodoroKeys(key); cmd != nil {
			return false, cmd
		}
	case pageSettings:
		m.updateSettingsKeys(key)
	}
	return false, nil
}

func (m *Model) updatePlanKeys(key string) {
	switch key {
	case "tab":
		if m.focus == focusStages {
			m.focus = focusTasks
		} else {
			m.focus = focusStages
		}
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "a":
		if m.focus == focusStages {
			m.mode = modeAddStage
			m.input = ""
		} else {
			if _, ok := m.activeStage(); !ok {
				m.setStatus("Сначала создайте этап (Tab, затем 'a')", true)
				return
			}
			m.mode = modeTaskType
		}
	case "d":
		m.startDeleteConfirm()
	case " ", "space":
		m.toggleSelectedTask()
	case "+", "=":
		m.bumpPages(1)
	case "-":
		m.bumpPages(-1)
	case "p":
		m.startEditPages()
	case "D":
		m.startSetDeadline()
	}
}

func (m *Model) updateDiaryKeys(key string) {
	switch key {
	case "up", "k":
		m.moveCursor(-1)
	case "down", "j":
		m.moveCursor(1)
	case "a":
		m.pendingEntryID = ""
		m.mode = modeDiaryHours
		m.input = ""
	case "e":
		entry, ok := m.selectedEntry()
		if !ok {
			m.setStatus("Нет выбранной записи", true)
			return
		}
		m.pendingEntryID = entry.ID
		m.mode = modeDiaryHours
		m.input = metrics.FormatHours(entry.Hours)
	case "d":
		m.startDeleteConfirm()
	}
}

func (m *Model) updatePomodoroKeys(key string) tea.Cmd {
	switch key {
	case " ", "space":
		m.pomoRunning = !m.pomoRunning
		if m.pomoRunning {
			return tick()
		}
	case "r":
		m.pomoRunning = false
		m.pomoBreak = false
		m.pomoLeft = workSeconds
		m.setStatus("Таймер сброшен", false)
	}
	return nil
}

func (m *Model) updateSettingsKeys(key string) {
	switch key {
	case "m":
		m.mode = modeEditQuote
		m.input = m.svc.State().Motivation.Quote
	case "e":
		m.exportData()
	case "i":
		m.mode = modeImportPath
		m.input = ""
	case "R":
		m.mode = modeConfirmReset
	}
}

func (m *Model) updateTaskTypeMode(msg tea.KeyMsg) {
	switch msg.String() {
	case "esc", "ctrl+c":
		m.mode = modeNormal
		m.setStatus("Отменено", false)
	case "p":
		m.pendingTask = model.TaskInput{Type: model.TaskProblem}
		m.mode = modeTaskTitle
		m.input = ""
	case "c":
		m.pendingTask = model.TaskInput{Type: model.TaskChapter}
		m.mode = modeTaskTitle
		m.input = ""
	case "v":
		m.pendingTask = model.TaskInput{Type: model.TaskVideo}
		m.mode = modeTaskTitle
		m.input = ""
	}
}

func (m *Model) updateInputMode(msg tea.KeyMsg) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.mode = modeNormal
		m.input = ""
		m.setStatus("Отменено", false)
		return
	case "enter":
		m.applyInput()
		return
	}

	switch msg.Type {
	case tea.KeyBackspace, tea.KeyCtrlH:
		m.input = trimLastRune(m.input)
	case tea.KeySpace:
		m.input += " "
	case tea.KeyRunes:
		m.input += string(msg.Runes)
	}
}

func (m *Model) updateConfirmMode(msg tea.KeyMsg) {
	switch strings.ToLower(msg.String()) {
	case "y":
		if m.mode == modeConfirmReset {
			m.svc.ResetAll()
			m.mode = modeNormal
			m.stageCursor, m.taskCursor, m.diaryCursor = 0, 0, 0
			m.persist("Все данные сброшены")
			return
		}
		m.confirmDelete()
	case "n", "esc", "enter":
		m.confirmKind = deleteNone
		m.confirmID = ""
		m.confirmName = ""
		m.mode = modeNormal
		m.setStatus("Действие отменено", false)
	}
}

func (m *Model) applyInput() {
	text := strings.TrimSpace(m.input)

	switch m.mode {
	case modeAddStage:
		if text == "" {
			m.setStatus("Название этапа не может быть пустым", true)
			return
		}
		m.svc.AddStage(text)
		m.mode = modeNormal
		m.input = ""
		m.stageCursor = len(m.svc.Stages()) - 1
		m.persist("Этап добавлен: " + text)

	case modeTaskTitle:
		if text == "" {
			m.setStatus("Название задачи не может быть пустым", true)
			return
		}
		m.pendingTask.Title = text
		m.input = ""
		switch m.pendingTask.Type {
		case model.TaskChapter:
			m.mode = modeTaskPages
		case model.TaskVideo:
			m.mode = modeTaskURL
		case model.TaskProblem:
			m.finishAddTask()
		}

	case modeTaskPages:
		pages, err := strconv.Atoi(text)
		if err != nil || pages < 1 {
			m.setStatus("Укажите число страниц (минимум 1)", true)
			return
		}
		m.pendingTask.PagesTotal = pages
		m.finishAddTask()

	case modeTaskURL:
		m.pendingTask.URL = text
		m.finishAddTask()

	case modeEditPages:
		pages, err := strconv.Atoi(text)
		if err != nil {
			m.setStatus("Укажите число прочитанных страниц", true)
			return
		}
		stage, ok := m.activeStage()
		if !ok {
			m.mode = modeNormal
			return
		}
		task, ok := m.selectedTask()
		if !ok {
			m.mode = modeNormal
			return
		}
		updated, err := m.svc.UpdateChapterProgress(stage.ID, task.ID, pages)
		if err != nil {
			m.setStatus("Ошибка: "+err.Error(), true)
			return
		}
		m.mode = modeNormal
		m.input = ""
		m.persist(fmt.Sprintf("Страницы: %d/%d", updated.PagesDone, updated.PagesTotal))

	case modeSetDeadline:
		stage, ok := m.activeStage()
		if !ok {
			m.mode = modeNormal
			return
		}
		if text == "" {
			if err := m.svc.SetStageDeadline(stage.ID, nil); err != nil {
				m.setStatus("Ошибка: "+err.Error(), true)
				return
			}
			m.mode = modeNormal
			m.input = ""
			m.persist("Дедлайн снят")
			return
		}
		day, err := time.ParseInLocation("2006-01-02", text, time.Local)
		if err != nil {
			m.setStatus("Формат даты: ГГГГ-ММ-ДД", true)
			return
		}
		// End of day, as the original stored it.
		deadline := day.Add(24*time.Hour - time.Second)
		if err := m.svc.SetStageDeadline(stage.ID, &deadline); err != nil {
			m.setStatus("Ошибка: "+err.Error(), true)
			return
		}
		m.mode = modeNormal
		m.input = ""
		m.persist("Дедлайн: " + day.Format("02.01.2006"))

	case modeDiaryHours:
		hours, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
		if err != nil || hours < 0 {
			m.setStatus("Укажите часы, например 1.5", true)
			return
		}
		m.pendingHours = hours
		m.mode = modeDiaryText
		if m.pendingEntryID != "" {
			if entry, ok := m.entryByID(m.pendingEntryID); ok {
				m.input = entry.Text
				return
			}
		}
		m.input = ""

	case modeDiaryText:
		if m.pendingEntryID == "" {
			m.svc.AddDiaryEntry(m.pendingHours, text)
			m.diaryCursor = 0
			m.persist("Запись добавлена")
		} else {
			if _, err := m.svc.UpdateDiaryEntry(m.pendingEntryID, m.pendingHours, text); err != nil {
				m.setStatus("Ошибка: "+err.Error(), true)
				return
			}
			m.persist("Запись обновлена")
		}
		m.mode = modeNormal
		m.input = ""
		m.pendingEntryID = ""

	case modeEditQuote:
		m.svc.SetQuote(text)
		m.mode = modeNormal
		m.input = ""
		m.persist("Цитата обновлена")

	case modeImportPath:
		if text == "" {
			m.setStatus("Укажите путь к файлу", true)
			return
		}
		m.importData(text)
	}
}

func (m *Model) finishAddTask() {
	stage, ok := m.activeStage()
	if !ok {
		m.mode = modeNormal
		return
	}
	task, err := m.svc.AddTask(stage.ID, m.pendingTask)
	if err != nil {
		m.setStatus("Ошибка: "+err.Error(), true)
		m.mode = modeNormal
		return
	}
	m.mode = modeNormal
	m.input = ""
	m.pendingTask = model.TaskInput{}
	m.taskCursor = len(m.mustStageTasks(stage.ID)) - 1
	m.persist("Задача добавлена: " + task.Title)
}

func (m *Model) toggleSelectedTask() {
	if m.focus != focusTasks {
		return
	}
	stage, ok := m.activeStage()
	if !ok {
		return
	}
	task, ok := m.selectedTask()
	if !ok {
		return
	}
	updated, err := m.svc.ToggleTask(stage.ID, task.ID, !task.Completed)
	if err != nil {
		m.setStatus("Ошибка: "+err.Error(), true)
		return
	}
	if updated.Completed {
		m.persist("Выполнено: " + updated.Title)
	} else {
		m.persist("Снова в работе: " + updated.Title)
	}
}

func (m *Model) bumpPages(delta int) {
	if m.focus != focusTasks {
		return
	}
	stage, ok := m.activeStage()
	if !ok {
		return
	}
	task, ok := m.selectedTask()
	if !ok || task.Type != model.TaskChapter {
		return
	}
	updated, err := m.svc.UpdateChapterProgress(stage.ID, task.ID, task.PagesDone+delta)
	if err != nil {
		m.setStatus("Ошибка: "+err.Error(), true)
		return
	}
	m.persist(fmt.Sprintf("Страницы: %d/%d", updated.PagesDone, updated.PagesTotal))
}

func (m *Model) startEditPages() {
	if m.focus != focusTasks {
		return
	}
	task, ok := m.selectedTask()
	if !ok {
		m.setStatus("Нет выбранной задачи", true)
		return
	}
	if task.Type != model.TaskChapter {
		m.setStatus("Страницы есть только у глав", false)
		return
	}
	m.mode = modeEditPages
	m.input = strconv.Itoa(task.PagesDone)
}

func (m *Model) startSetDeadline() {
	stage, ok := m.activeStage()
	if !ok {
		m.setStatus("Нет выбранного этапа", true)
		return
	}
	m.mode = modeSetDeadline
	if stage.Deadline != nil {
		m.input = stage.Deadline.Local().Format("2006-01-02")
	} else {
		m.input = time.Now().AddDate(0, 0, 7).Format("2006-01-02")
	}
}

func (m *Model) startDeleteConfirm() {
	switch m.page {
	case pagePlan:
		if m.focus == focusStages {
			stage, ok := m.activeStage()
			if !ok {
				m.setStatus("Нет выбранного этапа", true)
				return
			}
			m.confirmKind = deleteStage
			m.confirmID = stage.ID
			m.confirmName = stage.Title
		} else {
			task, ok := m.selectedTask()
			if !ok {
				m.setStatus("Нет выбранной задачи", true)
				return
			}
			m.confirmKind = deleteTask
			m.confirmID = task.ID
			m.confirmName = task.Title
		}
	case pageDiary:
		entry, ok := m.selectedEntry()
		if !ok {
			m.setStatus("Нет выбранной записи", true)
			return
		}
		m.confirmKind = deleteEntry
		m.confirmID = entry.ID
		m.confirmName = entry.Text
	default:
		return
	}
	m.mode = modeConfirmDelete
}

func (m *Model) confirmDelete() {
	var err error
	var done string
	switch m.confirmKind {
	case deleteStage:
		err = m.svc.RemoveStage(m.confirmID)
		done = "Этап удалён вместе с задачами"
	case deleteTask:
		stage, ok := m.activeStage()
		if !ok {
			err = app.ErrStageNotFound
			break
		}
		err = m.svc.RemoveTask(stage.ID, m.confirmID)
		done = "Задача удалена"
	case deleteEntry:
		err = m.svc.RemoveDiaryEntry(m.confirmID)
		done = "Запись удалена"
	case deleteNone:
		return
	}

	m.confirmKind = deleteNone
	m.confirmID = ""
	m.confirmName = ""
	m.mode = modeNormal

	if err != nil {
		m.setStatus("Ошибка: "+err.Error(), true)
		return
	}
	m.ensureSelection()
	m.persist(done)
}

func (m *Model) undo() {
	if err := m.svc.Undo(); err != nil {
		m.setStatus("Нечего отменять", false)
		return
	}
	m.ensureSelection()
	m.persist("Действие отменено")
}

func (m *Model) sharePrompt() {
	text := metrics.ShareText(m.svc.State(), time.Now())
	if err := copyToClipboard(text); err != nil {
		m.setStatus("Не удалось скопировать: "+err.Error(), true)
		return
	}
	m.setStatus("Прогресс скопирован в буфер обмена", false)
}

func (m *Model) exportData() {
	state := m.svc.State()
	path, err := exportState(state)
	if err != nil {
		m.setStatus("Экспорт не удался: "+err.Error(), true)
		return
	}
	m.setStatus("Экспортировано: "+path, false)
}

func (m *Model) importData(path string) {
	state, err := importState(path)
	if err != nil {
		m.setStatus("Импорт не удался: "+err.Error(), true)
		return
	}
	m.svc.ImportState(state)
	m.mode = modeNormal
	m.input = ""
	m.stageCursor, m.taskCursor, m.diaryCursor = 0, 0, 0
	m.persist("Данные импортированы")
}

// persist autosaves after a successful mutation. A storage failure is
// logged and shown in the footer; the in-memory state stands either way.
func (m *Model) persist(success string) {
	if err := store.Autosave(m.statePath, m.svc.State()); err != nil {
		slog.Warn("autosave failed", "path", m.statePath, "error", err)
		m.setStatus("Сохранение не удалось: "+err.Error(), true)
		return
	}
	m.setStatus(success, false)
}

func (m *Model) setStatus(text string, isErr bool) {
	m.status = text
	m.statusErr = isErr
}

func (m *Model) moveCursor(delta int) {
	switch m.page {
	case pagePlan:
		if m.focus == focusStages {
			m.stageCursor = clamp(m.stageCursor+delta, 0, maxIndex(len(m.svc.Stages())))
			m.taskCursor = 0
		} else {
			stage, ok := m.activeStage()
			if !ok {
				return
			}
			m.taskCursor = clamp(m.taskCursor+delta, 0, maxIndex(len(m.mustStageTasks(stage.ID))))
		}
	case pageDiary:
		m.diaryCursor = clamp(m.diaryCursor+delta, 0, maxIndex(len(m.svc.Diary())))
	}
}

func (m *Model) ensureSelection() {
	m.stageCursor = clamp(m.stageCursor, 0, maxIndex(len(m.svc.Stages())))
	if stage, ok := m.activeStage(); ok {
		m.taskCursor = clamp(m.taskCursor, 0, maxIndex(len(m.mustStageTasks(stage.ID))))
	} else {
		m.taskCursor = 0
	}
	m.diaryCursor = clamp(m.diaryCursor, 0, maxIndex(len(m.svc.Diary())))
}

func (m *Model) activeStage() (model.Stage, bool) {
	stages := m.svc.Stages()
	if len(stages) == 0 || m.stageCursor < 0 || m.stageCursor >= len(stages) {
		return model.Stage{}, false
	}
	return stages[m.stageCursor], true
}

func (m *Model) mustStageTasks(stageID string) []model.Task {
	stage, err := m.svc.GetStage(stageID)
	if err != nil {
		return nil
	}
	return stage.Tasks
}

func (m *Model) selectedTask() (model.Task, bool) {
	stage, ok := m.activeStage()
	if !ok {
		return model.Task{}, false
	}
	tasks := m.mustStageTasks(stage.ID)
	if len(tasks) == 0 || m.taskCursor < 0 || m.taskCursor >= len(tasks) {
		return model.Task{}, false
	}
	return tasks[m.taskCursor], true
}

func (m *Model) selectedEntry() (model.DiaryEntry, bool) {
	diary := m.svc.Diary()
	if len(diary) == 0 || m.diaryCursor < 0 || m.diaryCursor >= len(diary) {
		return model.DiaryEntry{}, false
	}
	return diary[m.diaryCursor], true
}

func (m *Model) entryByID(id string) (model.DiaryEntry, bool) {
	for _, e := range m.svc.Diary() {
		if e.ID == id {
			return e, true
		}
	}
	return model.DiaryEntry{}, false
}

func maxIndex(n int) int {
	if n == 0 {
		return 0
	}
	return n - 1
}

func clamp(v, min, max int) int {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func trimLastRune(s string) string {
	if s == "" {
		return s
	}
	_, size := utf8.DecodeLastRuneInString(s)
	return s[:len(s)-size]
}

func copyToClipboard(text string) error {
	candidates := []struct {
		name string
		args []string
	}{
		{name: "wl-copy", args: []string{"--type", "text/plain"}},
		{name: "xclip", args: []string{"-in", "-selection", "clipboard"}},
		{name: "xsel", args: []string{"--clipboard", "--input"}},
		{name: "pbcopy"},
	}

	for _, c := range candidates {
		if _, err := exec.LookPath(c.name); err != nil {
			continue
		}
		go runClipboardCommand(c.name, c.args, text)
		return nil
	}
	return fmt.Errorf("нет доступной команды буфера обмена (установите wl-copy или xclip)")
}

func runClipboardCommand(name string, args []string, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(text)
	_ = cmd.Run()
}
