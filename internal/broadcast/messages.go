package broadcast

import (
	"strings"

	"outagebot/internal/schedule"
	"outagebot/internal/snapshot"
	kit "outagebot/internal/transport"
)

func dayOnText(tomorrow bool) string {
	label := "сьогодні"
	if tomorrow {
		label = "завтра"
	}
	return "⚠️ Увага! На " + label + " з’явились погодинні відключення.\n" +
		"Натисни кнопку нижче, щоб побачити свій графік."
}

func dayOnKeyboard() *kit.Keyboard {
	return &kit.Keyboard{Rows: [][]kit.Button{
		kit.Row(kit.Button{Text: "Сьогодні", Data: "SHOW:today"}, kit.Button{Text: "Завтра", Data: "SHOW:tomorrow"}),
		kit.Row(kit.Button{Text: "Меню", Data: "BACK_MAIN"}),
	}}
}

func checkScheduleKeyboard(tomorrow bool) *kit.Keyboard {
	btn := kit.Button{Text: "Перевірити графік на сьогодні", Data: "SHOW:today"}
	if tomorrow {
		btn = kit.Button{Text: "Перевірити графік на завтра", Data: "SHOW:tomorrow"}
	}
	return &kit.Keyboard{Rows: [][]kit.Button{
		kit.Row(btn),
		kit.Row(kit.Button{Text: "Меню", Data: "BACK_MAIN"}),
	}}
}

func queueChangeText(queue string, c snapshot.Change) string {
	adj, hasAdj := schedule.FormatAdjustmentsShort(c.Payload.Adjustments, queue, 3)

	header := "🔄 Графік оновлено"
	switch {
	case c.Appeared():
		header = "✅ З’явились відключення"
	case hasAdj:
		header = "⚠️ Оперативні зміни"
	}

	lines := []string{
		header,
		"Підчерга " + queue + " (" + schedule.FormatDateUA(c.Date) + "): " + schedule.FormatIntervalsShort(c.Payload.Outages),
	}
	if hasAdj {
		lines = append(lines, "", adj)
	}
	lines = append(lines, "", "Натисни кнопку нижче, щоб швидко перевірити графік.")
	return strings.Join(lines, "\n")
}
