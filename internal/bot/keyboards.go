package bot

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

var requestPhoneKeyboard = tgbotapi.ReplyKeyboardMarkup{
	Keyboard: [][]tgbotapi.KeyboardButton{
		{tgbotapi.NewKeyboardButtonContact("Поделиться номером")},
	},
	ResizeKeyboard:        true,
	OneTimeKeyboard:       true,
	InputFieldPlaceholder: "Отправьте номер телефона",
}

func hideKeyboard() tgbotapi.ReplyKeyboardRemove {
	return tgbotapi.NewRemoveKeyboard(true)
}

func statsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Сегодня", "stats:today"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📈 Неделя", "stats:week"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📆 Всё время", "stats:all"),
		),
	)
}

func detailedStatsKeyboard(rangeKey string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📋 Детальная статистика", "detailed_stats:"+rangeKey),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📊 Сегодня", "stats:today"),
			tgbotapi.NewInlineKeyboardButtonData("📈 Неделя", "stats:week"),
			tgbotapi.NewInlineKeyboardButtonData("📆 Всё время", "stats:all"),
		),
	)
}

func userMenuKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📄 Документы", "action:documents"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Записаться на консультацию", "action:consultation"),
		),
	)
}

func documentsKeyboard(docs []Document) tgbotapi.InlineKeyboardMarkup {
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(docs))
	for _, doc := range docs {
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(doc.Title, "doc:"+doc.ID),
		))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

func consentKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Согласен", "consent_yes"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❌ Отказаться", "consent_no"),
		),
	)
}
