package crawler

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
)

var (
	clockOnly   = regexp.MustCompile(`^(\d{1,2}):(\d{2})(?::(\d{2}))?$`)
	minutesAgo  = regexp.MustCompile(`^(\d+)\s*분\s*전$`)
	hoursAgo    = regexp.MustCompile(`^(\d+)\s*시간\s*전$`)
	shortYMD    = regexp.MustCompile(`^(\d{2})[./-](\d{2})[./-](\d{2})(?:\s+(\d{1,2}):(\d{2})(?::(\d{2}))?)?$`)
	monthDay    = regexp.MustCompile(`^(\d{2})[.-](\d{2})$`)
	dotDateTime = regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})\.?(?:\s+\(?(\d{1,2}):(\d{2})(?::(\d{2}))?\)?)?$`)
)

// ResolveDate turns a board's date text into a time in loc. Boards show
// today's posts as "HH:MM", older ones as "YY.MM.DD" or full dates; relative
// Korean forms ("5분 전") are resolved against now. The boolean is false when
// nothing matched.
func ResolveDate(s string, now time.Time, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	now = now.In(loc)
	y, m, d := now.Date()

	if s == "방금" || s == "방금 전" {
		return now.Truncate(time.Second), true
	}
	if g := clockOnly.FindStringSubmatch(s); g != nil {
		return time.Date(y, m, d, atoi(g[1]), atoi(g[2]), atoi(g[3]), 0, loc), true
	}
	if g := minutesAgo.FindStringSubmatch(s); g != nil {
		return now.Add(-time.Duration(atoi(g[1])) * time.Minute).Truncate(time.Second), true
	}
	if g := hoursAgo.FindStringSubmatch(s); g != nil {
		return now.Add(-time.Duration(atoi(g[1])) * time.Hour).Truncate(time.Second), true
	}
	if g := shortYMD.FindStringSubmatch(s); g != nil {
		return time.Date(2000+atoi(g[1]), time.Month(atoi(g[2])), atoi(g[3]), atoi(g[4]), atoi(g[5]), atoi(g[6]), 0, loc), true
	}
	if g := monthDay.FindStringSubmatch(s); g != nil {
		return time.Date(y, time.Month(atoi(g[1])), atoi(g[2]), 0, 0, 0, 0, loc), true
	}
	if g := dotDateTime.FindStringSubmatch(s); g != nil {
		return time.Date(atoi(g[1]), time.Month(atoi(g[2])), atoi(g[3]), atoi(g[4]), atoi(g[5]), atoi(g[6]), 0, loc), true
	}

	t, err := dateparse.ParseIn(s, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t.In(loc), true
}

// SameDay reports whether a and b fall on the same calendar day in loc
func SameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

func atoi(s string) int {
	v, _ := strconv.Atoi(s)
	return v
}
