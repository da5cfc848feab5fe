package telegram

import (
	"strings"
	"testing"

	kit "outagebot/internal/transport"
)

func TestSplitText(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		in    string
		limit int
		want  int
	}{
		{"short", "hello", 10, 1},
		{"exact", strings.Repeat("a", 10), 10, 1},
		{"hard split", strings.Repeat("a", 25), 10, 3},
		{"newline split", strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8), 10, 2},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got := splitText(tt.in, tt.limit)
			if len(got) != tt.want {
				t.Fatalf("chunks = %d (%q), want %d", len(got), got, tt.want)
			}
			for _, c := range got {
				if len([]rune(c)) > tt.limit {
					t.Fatalf("chunk too long: %q", c)
				}
			}
		})
	}
	if got := splitText(strings.Repeat("a", 8)+"\n"+strings.Repeat("b", 8), 10); got[0] != strings.Repeat("a", 8) {
		t.Fatalf("first chunk = %q", got[0])
	}
}

func TestMarkupKeepsRawCallbackData(t *testing.T) {
	t.Parallel()
	if markup(nil) != nil || markup(&kit.Keyboard{}) != nil {
		t.Fatal("empty keyboard should produce no markup")
	}
	rm := markup(&kit.Keyboard{Rows: [][]kit.Button{
		kit.Row(kit.Button{Text: "Сьогодні", Data: "SHOW:today"}, kit.Button{Text: "Завтра", Data: "SHOW:tomorrow"}),
		kit.Row(kit.Button{Text: "Меню", Data: "BACK_MAIN"}),
	}})
	if len(rm.InlineKeyboard) != 2 || len(rm.InlineKeyboard[0]) != 2 {
		t.Fatalf("rows = %+v", rm.InlineKeyboard)
	}
	if b := rm.InlineKeyboard[0][1]; b.Data != "SHOW:tomorrow" || b.Unique != "" {
		t.Fatalf("button = %+v", b)
	}
}
