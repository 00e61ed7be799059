package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"partner_bitrix/internal/partner"
	"partner_bitrix/internal/repo"
	"partner_bitrix/internal/stats"
)

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start":
			b.handleStart(ctx, msg)
		case "cancel", "stop":
			b.sessions.clear(chatID)
			out := tgbotapi.NewMessage(chatID, "Диалог сброшен. Отправьте /start, чтобы начать заново.")
			out.ReplyMarkup = hideKeyboard()
			b.send(out)
		default:
			b.reply(chatID, "Неизвестная команда. Отправьте /start.")
		}
		return
	}

	sess := b.sessions.get(chatID)
	switch sess.state {
	case statePhone:
		b.handlePhoneStep(ctx, msg, sess)
	case stateCode:
		b.handleCodeStep(ctx, msg, sess)
	case stateAuthorized:
		b.replyWithMarkup(chatID, "Выберите период статистики:", statsKeyboard())
	case stateName:
		b.handleNameStep(msg, sess)
	case stateUserPhone:
		b.handleUserPhoneStep(ctx, msg, sess)
	case stateUserMenu:
		b.replyWithMarkup(chatID, "Выберите действие:", userMenuKeyboard())
	default:
		b.reply(chatID, "Отправьте /start, чтобы начать.")
	}
}

// handleStart routes by deep-link payload: /start with a partner code opens
// the end-user menu, a bare /start starts or resumes partner onboarding.
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	chatID := msg.Chat.ID
	arg := strings.TrimSpace(msg.CommandArguments())

	if arg != "" {
		sess := b.sessions.get(chatID)
		*sess = session{state: stateUserMenu, partnerCode: partner.NormalizeCode(arg)}
		b.replyWithMarkup(chatID, "Здравствуйте! Вы перешли по партнёрской ссылке.\nВыберите действие:", userMenuKeyboard())
		return
	}

	if b.db != nil {
		sub, err := b.db.GetByUser(ctx, chatID)
		if err != nil {
			b.log.WithError(err).Warn("чтение регистрации")
		}
		if sub != nil {
			sess := b.sessions.get(chatID)
			sess.state = stateAuthorized
			sess.expectedCode = sub.PartnerCode
			if sub.BitrixContactID != nil {
				sess.contactID = *sub.BitrixContactID
			}
			if sub.EntityType != nil {
				sess.kind = partner.Kind(*sub.EntityType)
			}
			if sess.kind != partner.KindCompany && sess.contactID != 0 {
				if percent, err := b.dir.PartnerPercent(ctx, sess.contactID); err == nil {
					sess.percent = percent
				}
			}
			b.replyWithMarkup(chatID, "С возвращением! Выберите период статистики:", statsKeyboard())
			return
		}
	}

	sess := b.sessions.get(chatID)
	*sess = session{state: statePhone}
	out := tgbotapi.NewMessage(chatID, "Здравствуйте! Для доступа к партнёрской статистике поделитесь номером телефона.")
	out.ReplyMarkup = requestPhoneKeyboard
	b.send(out)
}

func (b *Bot) handlePhoneStep(ctx context.Context, msg *tgbotapi.Message, sess *session) {
	chatID := msg.Chat.ID

	var raw string
	if msg.Contact != nil {
		raw = msg.Contact.PhoneNumber
	} else {
		raw = msg.Text
	}

	phone := partner.NormalizePhone(raw)
	if !partner.IsValidPhone(phone) {
		b.reply(chatID, "Не удалось распознать номер. Отправьте его в формате +79XXXXXXXXX или нажмите кнопку ниже.")
		return
	}

	found, err := b.dir.FindByPhone(ctx, phone)
	if err != nil {
		b.log.WithError(err).Warnf("поиск партнёра по телефону %s", phone)
		b.reply(chatID, "Не удалось проверить номер, попробуйте позже.")
		return
	}
	if found == nil {
		b.reply(chatID, "Партнёр с таким номером не найден. Проверьте номер или обратитесь к менеджеру.")
		return
	}

	sess.phone = phone
	sess.expectedCode = found.Code
	sess.contactID = found.ID
	sess.kind = found.Kind
	sess.percent = found.Percent
	sess.state = stateCode

	out := tgbotapi.NewMessage(chatID, "Номер найден. Теперь введите ваш партнёрский код для подтверждения.")
	out.ReplyMarkup = hideKeyboard()
	b.send(out)
}

func (b *Bot) handleCodeStep(ctx context.Context, msg *tgbotapi.Message, sess *session) {
	chatID := msg.Chat.ID

	code := partner.NormalizeCode(msg.Text)
	if code == "" || code != partner.NormalizeCode(sess.expectedCode) {
		b.reply(chatID, "Код не совпадает. Проверьте код из вашей карточки партнёра и введите ещё раз.")
		return
	}

	if b.db != nil {
		sub := repo.Submission{
			UserID:          chatID,
			PhoneNumber:     sess.phone,
			PartnerCode:     sess.expectedCode,
			BitrixContactID: &sess.contactID,
		}
		if msg.From != nil {
			sub.Username = optional(msg.From.UserName)
			sub.FirstName = optional(msg.From.FirstName)
			sub.LastName = optional(msg.From.LastName)
		}
		kind := string(sess.kind)
		sub.EntityType = &kind
		if err := b.db.SaveSubmission(ctx, sub); err != nil {
			b.log.WithError(err).Warn("сохранение регистрации")
		}
	}

	sess.state = stateAuthorized
	b.replyWithMarkup(chatID, "Код подтверждён! Вы авторизованы.\nВыберите период статистики:", statsKeyboard())
}

func (b *Bot) handleNameStep(msg *tgbotapi.Message, sess *session) {
	chatID := msg.Chat.ID

	name := strings.TrimSpace(msg.Text)
	if !partner.IsValidName(name) {
		b.reply(chatID, "Пожалуйста, введите имя (от 2 символов).")
		return
	}

	sess.name = name
	sess.state = stateUserPhone
	out := tgbotapi.NewMessage(chatID, "Спасибо! Теперь отправьте номер телефона для связи.")
	out.ReplyMarkup = requestPhoneKeyboard
	b.send(out)
}

func (b *Bot) handleUserPhoneStep(ctx context.Context, msg *tgbotapi.Message, sess *session) {
	chatID := msg.Chat.ID

	var raw string
	if msg.Contact != nil {
		raw = msg.Contact.PhoneNumber
	} else {
		raw = msg.Text
	}

	phone := partner.NormalizePhone(raw)
	if !partner.IsValidPhone(phone) {
		b.reply(chatID, "Не удалось распознать номер. Отправьте его в формате +79XXXXXXXXX или нажмите кнопку ниже.")
		return
	}

	leadID, err := b.rec.CreateLead(ctx, sess.name, phone, sess.partnerCode)
	if err != nil {
		b.log.WithError(err).Warn("создание лида")
		out := tgbotapi.NewMessage(chatID, "Не удалось оформить заявку, попробуйте позже.")
		out.ReplyMarkup = hideKeyboard()
		b.send(out)
		sess.state = stateUserMenu
		return
	}

	b.log.Infof("заявка на консультацию %s из чата %d", leadID, chatID)
	out := tgbotapi.NewMessage(chatID, "Заявка принята! Менеджер свяжется с вами в ближайшее время.")
	out.ReplyMarkup = hideKeyboard()
	b.send(out)
	sess.state = stateUserMenu
	b.replyWithMarkup(chatID, "Чем ещё можем помочь?", userMenuKeyboard())
}

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := b.api.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		b.log.WithError(err).Warn("подтверждение callback")
	}
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID
	data := cb.Data

	switch {
	case strings.HasPrefix(data, "stats:"):
		b.handleStatsCallback(ctx, chatID, strings.TrimPrefix(data, "stats:"))
	case strings.HasPrefix(data, "detailed_stats:"):
		b.handleDetailedStatsCallback(ctx, chatID, strings.TrimPrefix(data, "detailed_stats:"))
	case strings.HasPrefix(data, "doc:"):
		b.handleDocumentCallback(chatID, strings.TrimPrefix(data, "doc:"))
	case data == "action:documents":
		if len(b.docs) == 0 {
			b.reply(chatID, "Документы пока не добавлены.")
			return
		}
		b.replyWithMarkup(chatID, "Выберите документ:", documentsKeyboard(b.docs))
	case data == "action:consultation":
		sess := b.sessions.get(chatID)
		sess.state = stateConsent
		b.replyWithMarkup(chatID, "Для записи на консультацию нужно согласие на обработку персональных данных.", consentKeyboard())
	case data == "consent_yes":
		sess := b.sessions.get(chatID)
		sess.state = stateName
		b.reply(chatID, "Как вас зовут?")
	case data == "consent_no":
		sess := b.sessions.get(chatID)
		sess.state = stateUserMenu
		b.replyWithMarkup(chatID, "Без согласия записаться нельзя. Вы можете вернуться к меню.", userMenuKeyboard())
	}
}

func (b *Bot) handleStatsCallback(ctx context.Context, chatID int64, rangeKey string) {
	rng, ok := stats.ParseRange(rangeKey)
	if !ok {
		return
	}

	sess := b.sessions.get(chatID)
	if sess.state != stateAuthorized {
		b.reply(chatID, "Сначала авторизуйтесь: отправьте /start.")
		return
	}

	dealStats, err := b.agg.FetchStats(ctx, sess.contactID, rng, sess.kind)
	if err != nil {
		b.log.WithError(err).Warn("получение статистики")
		b.reply(chatID, "Не удалось получить статистику, попробуйте позже.")
		return
	}

	b.replyWithMarkup(chatID, formatStats(rng, dealStats, sess.percent), detailedStatsKeyboard(rangeKey))
}

func (b *Bot) handleDetailedStatsCallback(ctx context.Context, chatID int64, rangeKey string) {
	rng, ok := stats.ParseRange(rangeKey)
	if !ok {
		return
	}

	sess := b.sessions.get(chatID)
	if sess.state != stateAuthorized {
		b.reply(chatID, "Сначала авторизуйтесь: отправьте /start.")
		return
	}

	detailed, err := b.agg.FetchDetailedStats(ctx, sess.contactID, rng, sess.kind)
	if err != nil {
		b.log.WithError(err).Warn("получение детальной статистики")
		b.reply(chatID, "Не удалось получить статистику, попробуйте позже.")
		return
	}

	b.replyWithMarkup(chatID, formatDetailedStats(rng, detailed), statsKeyboard())
}

func (b *Bot) handleDocumentCallback(chatID int64, docID string) {
	for _, doc := range b.docs {
		if doc.ID != docID {
			continue
		}
		if doc.Type == "file" && doc.Path != "" {
			file := tgbotapi.NewDocument(chatID, tgbotapi.FilePath(doc.Path))
			file.Caption = doc.Title
			b.send(file)
			return
		}
		b.reply(chatID, fmt.Sprintf("%s\n\n%s", doc.Title, doc.Content))
		return
	}
	b.reply(chatID, "Документ не найден.")
}

var rangeTitles = map[stats.Range]string{
	stats.RangeToday: "за сегодня",
	stats.RangeWeek:  "за неделю",
	stats.RangeAll:   "за всё время",
}

func formatStats(rng stats.Range, s stats.DealStats, percent *float64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Статистика %s\n\n", rangeTitles[rng])
	fmt.Fprintf(&sb, "Всего сделок: %d\n", s.Count())
	fmt.Fprintf(&sb, "🔵 В работе: %d (%.2f ₽)\n", s.InProgress, s.InProgressAmount)
	fmt.Fprintf(&sb, "🟢 Успешно: %d (%.2f ₽)\n", s.Success, s.SuccessAmount)
	fmt.Fprintf(&sb, "🔴 Провалено: %d (%.2f ₽)\n", s.Failed, s.FailedAmount)
	fmt.Fprintf(&sb, "\n💰 Общая сумма: %.2f ₽", s.TotalAmount)
	if percent != nil {
		fmt.Fprintf(&sb, "\nВаш процент: %.2f%% / Сумма по проценту: %.2f ₽", *percent, s.SuccessAmount*(*percent)/100)
	}
	return sb.String()
}

func formatDetailedStats(rng stats.Range, d stats.DetailedStats) string {
	if len(d.Clients) == 0 {
		return fmt.Sprintf("📋 Детальная статистика %s\n\nСделок не найдено.", rangeTitles[rng])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Детальная статистика %s\n", rangeTitles[rng])
	for _, client := range d.Clients {
		fmt.Fprintf(&sb, "\n👤 %s\n", client.ClientName)
		fmt.Fprintf(&sb, "Сделок: %d, сумма: %.2f ₽\n", client.DealsCount, client.Stats.TotalAmount)
		for stage, count := range client.Stages {
			fmt.Fprintf(&sb, "  • %s: %d\n", stage, count)
		}
	}
	return sb.String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
