// Package bot implements a single GroupMe bot: an ordered table of regular
// expressions mapped to handlers, a list of scheduled jobs, and helpers to
// post back into the bot's group.
//
// # Usage
//
// Build a bot, register its handlers and jobs, then hand it to a router:
//
//	b := bot.New("weather", botID, token, groupID)
//	b.HandleFunc(`^\\all`, func(c *bot.Context) error {
//		return c.Bot.MentionEveryone(c)
//	})
//	b.AddJob("morning", greet, scheduler.Cron{Hour: "8", Timezone: "America/Chicago"})
//
// Registration must finish before the bot starts serving. Once a router
// takes the bot it is frozen and further registration fails with ErrFrozen;
// the registries are read-only afterwards, so concurrent dispatch needs no
// locking.
package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"

	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/keepmind9/groupmebot/pkg/groupme"
	"github.com/keepmind9/groupmebot/pkg/scheduler"
	"github.com/sirupsen/logrus"
)

var (
	// ErrDuplicateHandler is returned when a pattern is registered twice on one bot.
	ErrDuplicateHandler = errors.New("duplicate handler")
	// ErrFrozen is returned when registering on a bot that is already serving.
	ErrFrozen = errors.New("bot is frozen")
)

// HandlerFunc handles one inbound message or one scheduled run.
type HandlerFunc func(c *Context) error

// Context is passed to every handler and job invocation. For jobs the
// Callback is empty since no message triggered the run.
type Context struct {
	context.Context
	Bot      *Bot
	Callback *groupme.Callback
}

// Job is a handler bound to a schedule.
type Job struct {
	Name     string
	Handler  HandlerFunc
	Schedule scheduler.Cron
}

type handler struct {
	pattern string
	re      *regexp.Regexp
	fn      HandlerFunc
}

// Guard decides which callbacks a bot ignores to avoid answering itself.
type Guard int

const (
	// GuardHumanOnly dispatches only messages whose sender type is "user".
	GuardHumanOnly Guard = iota
	// GuardNotSelf skips only messages sent by this bot's own ID. Other bots
	// still reach the handlers, which allows bot-to-bot loops.
	GuardNotSelf
)

// Result tells what Dispatch did with a callback.
type Result int

const (
	NoMatch Result = iota
	Matched
	GuardSkipped
)

func (r Result) String() string {
	switch r {
	case Matched:
		return "matched"
	case GuardSkipped:
		return "guard-skipped"
	default:
		return "no-match"
	}
}

// HandlerError wraps an error returned (or a panic raised) by a handler.
type HandlerError struct {
	Pattern string
	Err     error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("handler for pattern `%s` failed: %v", e.Pattern, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Bot is one GroupMe bot identity with its handler and job registries.
type Bot struct {
	Name    string
	ID      string
	GroupID string

	client   *groupme.Client
	guard    Guard
	handlers []handler
	jobs     []Job
	frozen   atomic.Bool
}

// Option configures a Bot.
type Option func(*Bot)

// WithClient replaces the platform client built from the API token.
func WithClient(c *groupme.Client) Option {
	return func(b *Bot) { b.client = c }
}

// WithGuard selects the echo guard.
func WithGuard(g Guard) Option {
	return func(b *Bot) { b.guard = g }
}

// New creates a bot. name is only used locally (logs, summaries); botID and
// groupID come from the platform and token authenticates group lookups and
// image uploads.
func New(name, botID, token, groupID string, opts ...Option) *Bot {
	b := &Bot{
		Name:    name,
		ID:      botID,
		GroupID: groupID,
		client:  groupme.NewClient(token),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// HandleFunc binds pattern to fn. Patterns are searched anywhere in the
// lower-cased, trimmed message text, in registration order.
func (b *Bot) HandleFunc(pattern string, fn HandlerFunc) error {
	if b.frozen.Load() {
		return ErrFrozen
	}
	if fn == nil {
		return fmt.Errorf("handler for pattern `%s` is nil", pattern)
	}
	for _, h := range b.handlers {
		if h.pattern == pattern {
			return fmt.Errorf("%w: the pattern `%s` is already registered to a handler", ErrDuplicateHandler, pattern)
		}
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern `%s`: %w", pattern, err)
	}

	b.handlers = append(b.handlers, handler{pattern: pattern, re: re, fn: fn})
	return nil
}

// AddJob schedules fn. The schedule is checked when the bot is registered
// with a router.
func (b *Bot) AddJob(name string, fn HandlerFunc, schedule scheduler.Cron) error {
	if b.frozen.Load() {
		return ErrFrozen
	}
	if fn == nil {
		return fmt.Errorf("job %s has no handler", name)
	}
	b.jobs = append(b.jobs, Job{Name: name, Handler: fn, Schedule: schedule})
	return nil
}

// Freeze ends the build phase.
func (b *Bot) Freeze() {
	b.frozen.Store(true)
}

// Frozen reports whether Freeze was called.
func (b *Bot) Frozen() bool {
	return b.frozen.Load()
}

// Patterns lists registered patterns in match order.
func (b *Bot) Patterns() []string {
	out := make([]string, 0, len(b.handlers))
	for _, h := range b.handlers {
		out = append(out, h.pattern)
	}
	return out
}

// Jobs lists the scheduled jobs.
func (b *Bot) Jobs() []Job {
	return append([]Job(nil), b.jobs...)
}

// Client returns the bot's platform client.
func (b *Bot) Client() *groupme.Client {
	return b.client
}

func (b *Bot) String() string {
	return fmt.Sprintf("%s: %d callback handlers, %d cron jobs", b.Name, len(b.handlers), len(b.jobs))
}

// Dispatch runs the first handler whose pattern matches the callback text.
// At most one handler runs. A callback stopped by the guard, or matching no
// pattern, is not an error.
func (b *Bot) Dispatch(ctx context.Context, cb *groupme.Callback) (Result, error) {
	if b.skip(cb) {
		logger.WithFields(logrus.Fields{
			"bot":         b.Name,
			"sender_id":   cb.SenderID,
			"sender_type": cb.SenderType,
		}).Debug("callback-skipped-by-guard")
		return GuardSkipped, nil
	}

	text := strings.TrimSpace(strings.ToLower(cb.Text))
	for _, h := range b.handlers {
		if !h.re.MatchString(text) {
			continue
		}

		logger.WithFields(logrus.Fields{
			"bot":     b.Name,
			"pattern": h.pattern,
		}).Debug("callback-matched")

		if err := b.call(h.fn, &Context{Context: ctx, Bot: b, Callback: cb}); err != nil {
			return Matched, &HandlerError{Pattern: h.pattern, Err: err}
		}
		return Matched, nil
	}
	return NoMatch, nil
}

// RunJob invokes a job's handler with an empty callback.
func (b *Bot) RunJob(ctx context.Context, j Job) error {
	return b.call(j.Handler, &Context{Context: ctx, Bot: b, Callback: &groupme.Callback{}})
}

func (b *Bot) skip(cb *groupme.Callback) bool {
	if b.guard == GuardNotSelf {
		return cb.SenderID != "" && cb.SenderID == b.ID
	}
	return !cb.FromUser()
}

func (b *Bot) call(fn HandlerFunc, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(c)
}
