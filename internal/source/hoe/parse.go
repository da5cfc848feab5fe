package hoe

import (
	"regexp"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"outagebot/internal/schedule"
)

var (
	reSpaces  = regexp.MustCompile(`\s+`)
	reDateAlt = regexp.MustCompile(`(?i)ГПВ-(\d{2})\.(\d{2})\.(\d{4}|\d{2})`)
	reOutage  = regexp.MustCompile(`(?i)підчерга\s+(\d+\.\d+)\s*[–-]\s*з\s*(\d{1,2}:\d{2})\s*до\s*(\d{1,2}:\d{2})`)
	reQueueID = regexp.MustCompile(`\d+\.\d+`)

	rePowerOn = regexp.MustCompile(`(?i)(?:відновлення|заживлення|з[’']явиться)[^0-9]*?о\s*(\d{1,2}:\d{2})`)
	reStartAt = regexp.MustCompile(`(?i)(?:^|\s)з\s*(\d{1,2}:\d{2})`)
	reEndAt   = regexp.MustCompile(`(?i)(?:^|\s)до\s*(\d{1,2}:\d{2})`)
)

var paragraphKeywords = []string{
	"збільшення обсягу погодинних відключень",
	"ще одне збільшення",
	"збільшено обсяг погодинних відключень",
	"відповідно",
	"розпорядження",
	"укренерго",
	"електроенергія у підчерг буде відсутня",
}

var listKeywords = []string{"підчерг", "відключ", "знеструм", "заживлен"}

func normalizeSpaces(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// dateFromAlt turns "ГПВ-27.12.25" or "ГПВ-27.12.2025" into "2025-12-27".
func dateFromAlt(alt string) (string, bool) {
	m := reDateAlt.FindStringSubmatch(strings.TrimSpace(alt))
	if m == nil {
		return "", false
	}
	year := m[3]
	if len(year) == 2 {
		year = "20" + year
	}
	return year + "-" + m[2] + "-" + m[1], true
}

// relevantText extracts the parts of the page that carry schedule meaning,
// in document order: announcement paragraphs, schedule list items and
// date-marker image captions.
func relevantText(doc *goquery.Document) string {
	var parts []string
	doc.Find("p, ul, img").Each(func(_ int, node *goquery.Selection) {
		switch {
		case node.Is("img"):
			alt := normalizeSpaces(node.AttrOr("alt", ""))
			if reDateAlt.MatchString(alt) {
				parts = append(parts, "IMG:"+alt)
			}
		case node.Is("p"):
			t := normalizeSpaces(node.Text())
			if t != "" && containsAny(strings.ToLower(t), paragraphKeywords) {
				parts = append(parts, "P:"+t)
			}
		case node.Is("ul"):
			var lis []string
			node.Find("li").Each(func(_ int, li *goquery.Selection) {
				t := normalizeSpaces(li.Text())
				if containsAny(strings.ToLower(t), listKeywords) {
					lis = append(lis, t)
				}
			})
			if len(lis) > 0 {
				parts = append(parts, "UL:"+strings.Join(lis, " | "))
			}
		}
	})
	return strings.Join(parts, "\n")
}

// parseSchedules reads every dated schedule block. A block is an image
// whose caption carries the date, followed by the first list before the
// next image. The first block for a date wins.
func parseSchedules(doc *goquery.Document) []schedule.DaySchedule {
	var (
		out  []schedule.DaySchedule
		seen = map[string]struct{}{}
	)
	doc.Find("img").Each(func(_ int, img *goquery.Selection) {
		date, ok := dateFromAlt(img.AttrOr("alt", ""))
		if !ok {
			return
		}
		if _, dup := seen[date]; dup {
			return
		}
		ul := nextListAfter(img)
		if ul == nil {
			return
		}
		seen[date] = struct{}{}
		out = append(out, parseList(date, ul))
	})
	return out
}

func nextListAfter(img *goquery.Selection) *goquery.Selection {
	block := img.Closest("p")
	if block.Length() == 0 {
		block = img.Parent()
	}
	for el := block.Next(); el.Length() > 0; el = el.Next() {
		if el.Is("ul") {
			return el
		}
		if nested := el.Find("ul"); nested.Length() > 0 {
			return nested.First()
		}
		if el.Is("img") || el.Find("img").Length() > 0 {
			return nil
		}
	}
	return nil
}

func parseList(date string, ul *goquery.Selection) schedule.DaySchedule {
	day := schedule.DaySchedule{Date: date, Queues: map[string][]schedule.Interval{}}
	ul.Find("li").Each(func(_ int, li *goquery.Selection) {
		line := normalizeSpaces(li.Text())
		if line == "" {
			return
		}
		if m := reOutage.FindStringSubmatch(line); m != nil {
			q := m[1]
			day.Queues[q] = append(day.Queues[q], schedule.Interval{From: m[2], To: m[3], Raw: line})
			return
		}
		if adj, ok := parseAdjustment(line); ok {
			day.Adjustments = append(day.Adjustments, adj)
		}
	})
	return day
}

// parseAdjustment reads an operative change line such as
// "Підчерги 1.1, 2.2 – заживлення о 15:30".
func parseAdjustment(line string) (schedule.Adjustment, bool) {
	var queues []string
	for _, q := range reQueueID.FindAllString(line, -1) {
		if slices.Contains(schedule.KnownQueues, q) && !slices.Contains(queues, q) {
			queues = append(queues, q)
		}
	}
	if len(queues) == 0 {
		return schedule.Adjustment{}, false
	}
	adj := schedule.Adjustment{Queues: queues, Text: line}
	switch {
	case rePowerOn.MatchString(line):
		adj.Kind, adj.Time = schedule.AdjustPowerOnAt, rePowerOn.FindStringSubmatch(line)[1]
	case reStartAt.MatchString(line):
		adj.Kind, adj.Time = schedule.AdjustStartAt, reStartAt.FindStringSubmatch(line)[1]
	case reEndAt.MatchString(line):
		adj.Kind, adj.Time = schedule.AdjustEndAt, reEndAt.FindStringSubmatch(line)[1]
	default:
		return schedule.Adjustment{}, false
	}
	return adj, true
}
