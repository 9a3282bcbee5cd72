package service

import (
	"fmt"
	"strconv"

	"github.com/spec-kit/support-bot/internal/domain"
)

// User-facing texts. Matching on the category callbacks is exact-string, so
// the keyboard below is built from the same closed set the validator uses.
const (
	msgGreeting        = "Шалом! Как к вам обращаться? (можно пропустить)"
	msgChooseCategory  = "Выберите тему вопроса:"
	msgWriteQuestion   = "Напишите ваш вопрос:"
	msgCategoryInvalid = "Пожалуйста, выберите тему кнопкой ниже:"
	msgQuestionEmpty   = "Пожалуйста, отправьте вопрос одним текстовым сообщением."
	msgAnnounceFailed  = "Не удалось передать вопрос операторам. Пожалуйста, отправьте вопрос ещё раз."
	msgGenericFailure  = "Произошла ошибка. Попробуйте позже."
	msgTicketGone      = "Вопрос не найден — возможно, он был удалён."
	msgReplyNoTicket   = "Это сообщение не привязано к вопросу."
	msgReplySent       = "Ответ отправлен пользователю."
	msgDeliverFailed   = "Не удалось доставить ответ пользователю."

	btnSkipName      = "Пропустить"
	btnAnswerPrivate = "Ответить в ЛС"
	btnAnswerGroup   = "Ответить в группе"
)

func confirmationText(ticketID int64) string {
	return fmt.Sprintf("Спасибо! Вопрос принят. №%d", ticketID)
}

func announcementText(t *domain.Ticket) string {
	return fmt.Sprintf(
		"🆕 Вопрос #%d\nТема: %s\nОт: %s\n\n%s\n\nОтветьте reply — ответ уйдёт пользователю.",
		t.ID, t.Category, t.DisplayName(), t.Question,
	)
}

func answerText(ticketID int64, body string) string {
	return fmt.Sprintf("Ответ по вопросу #%d:\n\n%s", ticketID, body)
}

func answeredPrivatelyText(ticketID int64) string {
	return fmt.Sprintf("Ответ по вопросу #%d отправлен пользователю в ЛС.", ticketID)
}

func answerPrivatePrompt(ticketID int64) string {
	return fmt.Sprintf("Напишите ответ на вопрос #%d — я отправлю его пользователю в ЛС.", ticketID)
}

func answerGroupPrompt(ticketID int64) string {
	return fmt.Sprintf("Напишите ответ на вопрос #%d следующим сообщением — он уйдёт пользователю и в тему группы.", ticketID)
}

func skipNameKeyboard() Keyboard {
	return Keyboard{{Button{Label: btnSkipName, Data: CallbackSkipName}}}
}

// categoriesKeyboard lays the closed category set out two buttons per row.
func categoriesKeyboard() Keyboard {
	var kb Keyboard
	var row []Button
	for _, c := range domain.Categories() {
		row = append(row, Button{Label: string(c), Data: CallbackCategoryPrefix + string(c)})
		if len(row) == 2 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return kb
}

func announcementKeyboard(ticketID int64) Keyboard {
	id := strconv.FormatInt(ticketID, 10)
	return Keyboard{{
		Button{Label: btnAnswerPrivate, Data: CallbackAnswerPrivatePrefix + id},
		Button{Label: btnAnswerGroup, Data: CallbackAnswerGroupPrefix + id},
	}}
}
