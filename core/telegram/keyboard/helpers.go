// Package keyboard builds inline keyboards.
package keyboard

import tele "gopkg.in/telebot.v4"

// InlineBtn describes one inline button: Unique is the callback key and Data its payload.
type InlineBtn struct {
	Text   string
	Unique string
	Data   string
}

// CancelText is the label of the shared cancel button.
const CancelText = "❌ Отмена"

// InlineButtonsRows builds an inline keyboard from rows of InlineBtn.
func InlineButtonsRows(rows ...[]InlineBtn) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{}
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for j, btn := range row {
			r[j] = *markup.Data(btn.Text, btn.Unique, btn.Data).Inline()
		}
		inline = append(inline, r)
	}
	markup.InlineKeyboard = inline
	return markup
}

// InlineButtonsNPerRow splits buttons into rows of up to n, with extra rows
// appended below as is.
func InlineButtonsNPerRow(buttons []InlineBtn, n int, extra ...[]InlineBtn) *tele.ReplyMarkup {
	if n < 1 {
		n = 1
	}
	rows := make([][]InlineBtn, 0, len(buttons)/n+1+len(extra))
	for i := 0; i < len(buttons); i += n {
		rows = append(rows, buttons[i:min(i+n, len(buttons))])
	}
	rows = append(rows, extra...)
	return InlineButtonsRows(rows...)
}

// CancelButton returns the cancel button bound to action.
func CancelButton(action string) InlineBtn {
	return InlineBtn{Text: CancelText, Unique: action}
}

// Single builds a keyboard holding one button.
func Single(btn InlineBtn) *tele.ReplyMarkup {
	return InlineButtonsRows([]InlineBtn{btn})
}
