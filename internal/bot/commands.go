package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/shrimpsizemoose/trekker/logger"

	"github.com/shrimpsizemoose/semla/internal/models"
)

const (
	studentHelp = `Доступные команды:
/token <department> - Получить токен для доступа к API
/help - Показать это сообщение`

	adminHelp = `Доступные команды:
/token <department> - Получить токен для доступа к API
/task add <department> <task_id> deadline <date> -- Добавить задание с дедлайном
/task list <department> - Список заданий
/board <department> - Текущий лидерборд
/attend <department> <event_id> <user>... - Отметить посещение мероприятия (+20)
/winner <department> <event_id> <user>... - Отметить победителей мероприятия (+30)
/help - Показать это сообщение

Примеры:
/task add CS t-042 deadline "2025-03-01"
/task list CS
/board CS
/attend CS hackathon-1 ivan.petrov anna.sidorova
/winner CS hackathon-1 ivan.petrov`
)

type commandHandler func(*tgbotapi.Message) error

func (b *Bot) routeStudentCommands(cmd string) (commandHandler, bool) {
	commands := map[string]commandHandler{
		"start": b.handleStart,
		"token": b.handleToken,
		"help":  b.handleHelp,
	}
	handler, found := commands[cmd]
	return handler, found
}

func (b *Bot) routeAdminCommands(cmd string) (commandHandler, bool) {
	commands := map[string]commandHandler{
		"task":   b.handleTask,
		"board":  b.handleBoard,
		"attend": b.handleAttend,
		"winner": b.handleWinner,
	}
	handler, found := commands[cmd]
	return handler, found
}

func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		b.sendHelp(msg.Chat.ID)
		return
	}

	cmd := msg.Command()

	if handler, ok := b.routeStudentCommands(cmd); ok {
		if err := handler(msg); err != nil {
			logger.Error.Printf("Command error: %v", err)
			b.sendMessage(msg.Chat.ID, fmt.Sprintf("Error: %v", err))
		}
		return
	}

	if b.admins[msg.From.ID] {
		if handler, ok := b.routeAdminCommands(cmd); ok {
			if err := handler(msg); err != nil {
				logger.Error.Printf("Command error: %v", err)
				b.sendMessage(msg.Chat.ID, fmt.Sprintf("Error: %v", err))
			}
		}
		return
	}

	b.sendHelp(msg.Chat.ID)
}

func (b *Bot) handleHelp(msg *tgbotapi.Message) error {
	var text string
	if b.admins[msg.From.ID] {
		text = adminHelp
	} else {
		text = studentHelp
	}

	return b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) sendHelp(chatID int64) error {
	return b.sendMessage(chatID, "Используйте команды для взаимодействия с ботом. Отправьте /help для списка команд.")
}

func (b *Bot) handleStart(msg *tgbotapi.Message) error {
	text := "Привет! Я слежу за очками и лидербордом.\n\n"
	if b.admins[msg.From.ID] {
		text += "Ты администратор. Используй /help для списка команд."
	} else {
		text += "Используй /token чтобы получить токен."
	}

	return b.sendMessage(msg.Chat.ID, text)
}

func (b *Bot) handleToken(msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		return b.sendMessage(msg.Chat.ID, "Использование: /token <department>")
	}
	department := args[0]

	ctx := context.Background()
	userID, err := b.tokens.FetchUserIDByTelegram(ctx, department, msg.From.UserName)
	if err != nil {
		return fmt.Errorf("не нашёл тебя в списке %s, попроси администратора добавить", department)
	}

	info, isNew, err := b.tokens.FetchOrCreateUserToken(ctx, department, userID)
	if err != nil {
		return fmt.Errorf("ошибка получения токена: %v", err)
	}

	status := "твой текущий токен"
	if isNew {
		status = "сгенерировал новый токен"
	}

	return b.sendMessage(msg.Chat.ID, fmt.Sprintf("✅ %s:\n%s", status, info.Token))
}

func (b *Bot) handleTask(msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		return b.sendMessage(msg.Chat.ID, "Использование:\n"+
			"/task add <department> <task_id> deadline <date> - Добавить задание\n"+
			"/task list <department> - Показать список заданий")
	}

	switch args[0] {
	case "add":
		return b.handleTaskAdd(msg.Chat.ID, args[1:])
	case "list":
		if len(args) < 2 {
			return fmt.Errorf("укажи департамент: /task list CS")
		}
		return b.handleTaskList(msg.Chat.ID, args[1])
	default:
		return fmt.Errorf("неизвестная подкоманда: %s", args[0])
	}
}

func (b *Bot) handleTaskAdd(chatID int64, args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("использование: add <department> <task_id> deadline <date>")
	}

	department := args[0]
	taskID := args[1]

	var deadline time.Time
	var title string
	var err error

	for i := 2; i < len(args); i += 2 {
		if i+1 >= len(args) {
			return fmt.Errorf("пропущено значение для %s", args[i])
		}

		switch args[i] {
		case "deadline":
			deadline, err = time.Parse("2006-01-02", strings.Trim(args[i+1], `"`))
			if err != nil {
				return fmt.Errorf("некорректная дата (используйте YYYY-MM-DD): %v", err)
			}
			deadline = time.Date(
				deadline.Year(),
				deadline.Month(),
				deadline.Day(),
				23, 59, 59, 0,
				time.UTC,
			)
		case "title":
			title = strings.Trim(args[i+1], `"`)
		default:
			return fmt.Errorf("неизвестный параметр: %s", args[i])
		}
	}

	if deadline.IsZero() {
		return fmt.Errorf("дедлайн обязателен: add <department> <task_id> deadline <date>")
	}

	task := models.TaskDeadline{
		TaskID:     taskID,
		Department: department,
		Title:      title,
		Deadline:   deadline.UnixMicro(),
	}

	existing, err := b.store.GetTaskDeadline(taskID)
	if err != nil {
		return fmt.Errorf("ошибка проверки существования задания %s: %v", taskID, err)
	}

	if err := b.store.CreateTaskDeadline(task); err != nil {
		return fmt.Errorf("ошибка сохранения: %v", err)
	}

	action := "добавлено"
	if existing != nil {
		action = "обновлено"
	}

	return b.sendMessage(chatID, fmt.Sprintf("✅ Задание %s для %s %s:\n"+
		"Дедлайн: %s UTC",
		taskID,
		department,
		action,
		deadline.Format("2006-01-02 15:04"),
	))
}

func (b *Bot) handleTaskList(chatID int64, department string) error {
	tasks, err := b.store.ListTaskDeadlines(department)
	if err != nil {
		return fmt.Errorf("ошибка получения списка заданий: %v", err)
	}

	if len(tasks) == 0 {
		return b.sendMessage(chatID, "Задания не найдены")
	}

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("Задания департамента %s:\n\n", department))
	for _, task := range tasks {
		deadline := time.UnixMicro(task.Deadline)
		msg.WriteString(fmt.Sprintf("📝 %s %s\n"+
			"📅 %s UTC\n\n",
			task.TaskID,
			task.Title,
			deadline.UTC().Format("2006-Jan-02 Mon 15:04"),
		))
	}

	return b.sendMessage(chatID, msg.String())
}

func (b *Bot) handleBoard(msg *tgbotapi.Message) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 1 {
		return b.sendMessage(msg.Chat.ID, "Использование: /board <department>")
	}
	department := args[0]
	semester := models.CurrentSemester()

	entries, err := b.store.TopEntries(department, semester, "", 10)
	if err != nil {
		return fmt.Errorf("ошибка получения лидерборда: %v", err)
	}

	if len(entries) == 0 {
		return b.sendMessage(msg.Chat.ID, "Лидерборд пока пуст")
	}

	var text strings.Builder
	text.WriteString(fmt.Sprintf("Лидерборд %s, семестр %s:\n\n", department, semester))
	for _, entry := range entries {
		change := ""
		if entry.RankChange > 0 {
			change = fmt.Sprintf(" ⬆%d", entry.RankChange)
		} else if entry.RankChange < 0 {
			change = fmt.Sprintf(" ⬇%d", -entry.RankChange)
		}
		text.WriteString(fmt.Sprintf("#%d %s — %d очков%s\n",
			entry.Rank,
			entry.UserID,
			entry.TotalPoints,
			change,
		))
	}

	return b.sendMessage(msg.Chat.ID, text.String())
}

func (b *Bot) handleAttend(msg *tgbotapi.Message) error {
	return b.handleEventMark(msg, models.KindEventParticipation, "посещение")
}

func (b *Bot) handleWinner(msg *tgbotapi.Message) error {
	return b.handleEventMark(msg, models.KindEventWinning, "победу")
}

func (b *Bot) handleEventMark(msg *tgbotapi.Message, kind, what string) error {
	args := strings.Fields(msg.CommandArguments())
	if len(args) < 3 {
		return fmt.Errorf("использование: <department> <event_id> <user>...")
	}

	department := args[0]
	eventID := args[1]
	users := args[2:]

	now := time.Now().UTC()
	var scored int
	for _, userID := range users {
		event := models.NewScoringEvent(kind, eventID, userID, department, now)
		if _, err := b.ledger.Record(event); err != nil {
			return fmt.Errorf("ошибка записи для %s: %v", userID, err)
		}
		scored++
	}

	return b.sendMessage(msg.Chat.ID, fmt.Sprintf(
		"✅ Отметил %s %s для %s",
		what,
		eventID,
		strconv.Itoa(scored)+" студентов",
	))
}

func (b *Bot) sendMessage(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	_, err := b.api.Send(msg)
	return err
}
