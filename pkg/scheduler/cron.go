package scheduler

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
)

// Cron describes when a job runs. Field values use cron syntax ("*", "*/5",
// "1-5", "1,15"). DayOfWeek counts from Sunday=0.
//
// Unset fields follow the usual cron trigger convention: fields more
// significant than the least significant set field match anything, the
// remaining ones are pinned to their minimum. Cron{Hour: "8"} therefore runs
// daily at 08:00:00, and the zero Cron runs every second.
//
// When both Day and DayOfWeek are restricted a time must match both, unlike
// plain cron where either one is enough. Cron{Day: "1", DayOfWeek: "1"} only
// fires on a Monday that is also the first of the month.
type Cron struct {
	Year      string
	Month     string
	Day       string
	Week      string // ISO week, 1-53
	DayOfWeek string
	Hour      string
	Minute    string
	Second    string

	StartDate *time.Time
	EndDate   *time.Time
	Timezone  string        // IANA name, local time when empty
	Jitter    time.Duration // runs are delayed by up to this much
}

var fieldOrder = []string{"year", "month", "day", "week", "day_of_week", "hour", "minute", "second"}

var fieldMinimum = map[string]string{
	"year":        "*",
	"month":       "1",
	"day":         "1",
	"week":        "*",
	"day_of_week": "*",
	"hour":        "0",
	"minute":      "0",
	"second":      "0",
}

func (c Cron) given() map[string]string {
	return map[string]string{
		"year":        strings.TrimSpace(c.Year),
		"month":       strings.TrimSpace(c.Month),
		"day":         strings.TrimSpace(c.Day),
		"week":        strings.TrimSpace(c.Week),
		"day_of_week": strings.TrimSpace(c.DayOfWeek),
		"hour":        strings.TrimSpace(c.Hour),
		"minute":      strings.TrimSpace(c.Minute),
		"second":      strings.TrimSpace(c.Second),
	}
}

// resolved fills in the unset fields.
func (c Cron) resolved() map[string]string {
	given := c.given()
	last := -1
	for i, name := range fieldOrder {
		if given[name] != "" {
			last = i
		}
	}

	out := make(map[string]string, len(fieldOrder))
	for i, name := range fieldOrder {
		switch {
		case given[name] != "":
			out[name] = given[name]
		case last >= 0 && i > last:
			out[name] = fieldMinimum[name]
		default:
			out[name] = "*"
		}
	}
	return out
}

// Expr returns the seven-segment cron expression
// "second minute hour day month weekday year". The ISO week is not part of it.
func (c Cron) Expr() string {
	return c.expr(c.resolved())
}

func (c Cron) expr(f map[string]string) string {
	return strings.Join([]string{
		f["second"], f["minute"], f["hour"], f["day"], f["month"], f["day_of_week"], f["year"],
	}, " ")
}

// exprs returns the expressions a time has to match. A restricted day and
// weekday are split into two expressions so that both must hold.
func (c Cron) exprs() []string {
	f := c.resolved()
	if f["day"] == "*" || f["day_of_week"] == "*" {
		return []string{c.expr(f)}
	}

	byDay := make(map[string]string, len(f))
	byWeekday := make(map[string]string, len(f))
	for k, v := range f {
		byDay[k], byWeekday[k] = v, v
	}
	byDay["day_of_week"] = "*"
	byWeekday["day"] = "*"
	return []string{c.expr(byDay), c.expr(byWeekday)}
}

// Location resolves Timezone.
func (c Cron) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// Validate reports whether the schedule can ever be evaluated.
func (c Cron) Validate() error {
	g := gronx.New()
	if !g.IsValid(c.Expr()) {
		return fmt.Errorf("invalid cron expression %q", c.Expr())
	}
	for _, expr := range c.exprs() {
		if !g.IsValid(expr) {
			return fmt.Errorf("invalid cron expression %q", expr)
		}
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if _, err := matchField(c.resolved()["week"], 1, 1, 53); err != nil {
		return fmt.Errorf("invalid week %q: %w", c.Week, err)
	}
	if c.StartDate != nil && c.EndDate != nil && c.EndDate.Before(*c.StartDate) {
		return errors.New("end date is before start date")
	}
	if c.Jitter < 0 {
		return errors.New("jitter must not be negative")
	}
	return nil
}

// IsDue reports whether the schedule fires during the second containing t.
func (c Cron) IsDue(t time.Time) (bool, error) {
	loc, err := c.Location()
	if err != nil {
		return false, err
	}
	t = t.In(loc).Truncate(time.Second)

	if c.StartDate != nil && t.Before(*c.StartDate) {
		return false, nil
	}
	if c.EndDate != nil && t.After(*c.EndDate) {
		return false, nil
	}

	_, week := t.ISOWeek()
	ok, err := matchField(c.resolved()["week"], week, 1, 53)
	if err != nil || !ok {
		return false, err
	}

	return c.matches(t)
}

func (c Cron) matches(t time.Time) (bool, error) {
	g := gronx.New()
	for _, expr := range c.exprs() {
		ok, err := g.IsDue(expr, t)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// maxNextDays bounds the day-by-day search in Next when day and weekday are
// both restricted.
const maxNextDays = 366 * 28

// Next returns the first firing time after t, ignoring the ISO week and the
// date bounds. It is used for display only.
func (c Cron) Next(t time.Time) (time.Time, error) {
	loc, err := c.Location()
	if err != nil {
		return time.Time{}, err
	}
	exprs := c.exprs()
	if len(exprs) == 1 {
		return gronx.NextTickAfter(exprs[0], t.In(loc), false)
	}

	ref, incl := t.In(loc), false
	for i := 0; i < maxNextDays; i++ {
		next, err := gronx.NextTickAfter(exprs[0], ref, incl)
		if err != nil {
			return time.Time{}, err
		}
		ok, err := gronx.New().IsDue(exprs[1], next)
		if err != nil {
			return time.Time{}, err
		}
		if ok {
			return next, nil
		}
		y, m, d := next.Date()
		ref, incl = time.Date(y, m, d+1, 0, 0, 0, 0, loc), true
	}
	return time.Time{}, fmt.Errorf("no firing time found for %s", c)
}

// String lists the fields that were set, e.g. cron[hour='8', minute='*/5'].
func (c Cron) String() string {
	given := c.given()
	var parts []string
	for _, name := range fieldOrder {
		if v := given[name]; v != "" {
			parts = append(parts, fmt.Sprintf("%s='%s'", name, v))
		}
	}
	if c.Timezone != "" {
		parts = append(parts, fmt.Sprintf("timezone='%s'", c.Timezone))
	}
	return "cron[" + strings.Join(parts, ", ") + "]"
}

// matchField evaluates a single cron field against v.
func matchField(expr string, v, min, max int) (bool, error) {
	for _, part := range strings.Split(expr, ",") {
		ok, err := matchPart(strings.TrimSpace(part), v, min, max)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func matchPart(part string, v, min, max int) (bool, error) {
	step := 1
	if base, s, found := strings.Cut(part, "/"); found {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return false, fmt.Errorf("bad step in %q", part)
		}
		part, step = base, n
	}

	lo, hi := min, max
	switch {
	case part == "*":
	case strings.Contains(part, "-"):
		a, b, _ := strings.Cut(part, "-")
		var err error
		if lo, err = strconv.Atoi(a); err != nil {
			return false, fmt.Errorf("bad range %q", part)
		}
		if hi, err = strconv.Atoi(b); err != nil {
			return false, fmt.Errorf("bad range %q", part)
		}
	default:
		n, err := strconv.Atoi(part)
		if err != nil {
			return false, fmt.Errorf("bad value %q", part)
		}
		lo, hi = n, n
		if step > 1 {
			hi = max
		}
	}

	if lo < min || hi > max || lo > hi {
		return false, fmt.Errorf("%q out of range %d-%d", part, min, max)
	}
	return v >= lo && v <= hi && (v-lo)%step == 0, nil
}
