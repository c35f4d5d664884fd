package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/keepmind9/groupmebot/pkg/bot"
	"github.com/keepmind9/groupmebot/pkg/constants"
	"github.com/keepmind9/groupmebot/pkg/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const userMessage = `{"sender_type":"user","sender_id":"1","name":"Al","text":%q,"attachments":[]}`

func do(a *Application, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	a.ServeHTTP(rec, req)
	return rec
}

func message(text string) string {
	b, _ := json.Marshal(text)
	return strings.Replace(userMessage, "%q", string(b), 1)
}

func newApp(t *testing.T) *Application {
	t.Helper()
	a := New()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		a.Shutdown(ctx)
	})
	return a
}

func TestRegister_ReservedPaths(t *testing.T) {
	a := newApp(t)
	for _, path := range []string{"/", "/_health"} {
		err := a.Register(bot.New("b", "id", "tok", "g"), path)
		assert.ErrorIs(t, err, ErrRouteExists, path)
	}
	assert.Empty(t, a.Paths())
}

func TestRegister_DuplicatePath(t *testing.T) {
	a := newApp(t)
	first := bot.New("first", "id1", "tok", "g")
	require.NoError(t, a.Register(first, "/bot"))

	err := a.Register(bot.New("second", "id2", "tok", "g"), "/bot")
	assert.ErrorIs(t, err, ErrRouteExists)

	got, ok := a.Bot("/bot")
	require.True(t, ok)
	assert.Same(t, first, got)
}

func TestRegister_PathMustBeAbsolute(t *testing.T) {
	a := newApp(t)
	assert.Error(t, a.Register(bot.New("b", "id", "tok", "g"), "bot"))
}

func TestRegister_FreezesBot(t *testing.T) {
	a := newApp(t)
	b := bot.New("b", "id", "tok", "g")
	require.NoError(t, a.Register(b, "/b"))
	assert.True(t, b.Frozen())
	assert.ErrorIs(t, b.HandleFunc(`^x`, func(*bot.Context) error { return nil }), bot.ErrFrozen)
}

func TestRegister_InvalidScheduleRejected(t *testing.T) {
	a := newApp(t)
	b := bot.New("b", "id", "tok", "g")
	require.NoError(t, b.AddJob("bad", func(*bot.Context) error { return nil }, scheduler.Cron{Hour: "x"}))

	assert.Error(t, a.Register(b, "/b"))
	_, ok := a.Bot("/b")
	assert.False(t, ok)
	assert.Empty(t, a.Scheduler().Jobs())
}

func TestRegister_JobsStartScheduler(t *testing.T) {
	a := newApp(t)
	b := bot.New("morning", "id", "tok", "g")
	require.NoError(t, b.AddJob("wake", func(*bot.Context) error { return nil }, scheduler.Cron{Hour: "8", Timezone: "UTC"}))

	assert.Equal(t, Unstarted, a.State())
	require.NoError(t, a.Register(b, "/morning"))
	assert.Equal(t, Running, a.State())
	assert.True(t, a.Scheduler().Running())

	jobs := a.Scheduler().Jobs()
	require.Len(t, jobs, 1)
	assert.Equal(t, "morning/wake", jobs[0].Name)
}

func TestServeHTTP_Health(t *testing.T) {
	a := newApp(t)
	rec := do(a, http.MethodGet, "/_health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	rec = do(a, http.MethodPost, "/_health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET", rec.Header().Get("Allow"))
}

func TestServeHTTP_Summary(t *testing.T) {
	a := newApp(t)
	b := bot.New("echo", "id", "tok", "g")
	require.NoError(t, b.HandleFunc(`.*`, func(*bot.Context) error { return nil }))
	require.NoError(t, a.Register(b, "/echo"))

	rec := do(a, http.MethodGet, "/", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var s Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &s))
	assert.Equal(t, map[string]string{
		"/":        "summary",
		"/_health": "health",
		"/echo":    "echo: 1 callback handlers, 0 cron jobs",
	}, s.Endpoints)
	assert.Empty(t, s.Jobs)
	assert.NotNil(t, s.Jobs)
	assert.False(t, s.SchedulerRunning)
}

func TestServeHTTP_SummaryListsJobs(t *testing.T) {
	a := newApp(t)
	b := bot.New("morning", "id", "tok", "g")
	require.NoError(t, b.AddJob("wake", func(*bot.Context) error { return nil }, scheduler.Cron{Hour: "8", Timezone: "UTC"}))
	require.NoError(t, a.Register(b, "/morning"))

	s := a.Summary()
	assert.True(t, s.SchedulerRunning)
	require.Len(t, s.Jobs, 1)
	assert.True(t, strings.HasPrefix(s.Jobs[0], "morning/wake (trigger: cron[hour='8', timezone='UTC'], next run at: "), s.Jobs[0])
}

func TestServeHTTP_RootHead(t *testing.T) {
	a := newApp(t)
	rec := do(a, http.MethodHead, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(a, http.MethodPost, "/", "{}")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServeHTTP_UnknownPath(t *testing.T) {
	a := newApp(t)
	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := do(a, method, "/nobody", message("hi"))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, constants.NotFoundText, rec.Body.String())
	}
}

func TestServeHTTP_PathMatchIsExact(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.Register(bot.New("b", "id", "tok", "g"), "/bot"))

	assert.Equal(t, http.StatusNotFound, do(a, http.MethodPost, "/bot/", message("hi")).Code)
	assert.Equal(t, http.StatusNotFound, do(a, http.MethodPost, "/bo", message("hi")).Code)
}

func TestServeHTTP_BotPing(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.Register(bot.New("b", "id", "tok", "g"), "/bot"))

	rec := do(a, http.MethodGet, "/bot", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.PingText, rec.Body.String())

	rec = do(a, http.MethodDelete, "/bot", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, constants.MethodNotAllowedText, rec.Body.String())
}

func TestServeHTTP_CallbackDispatch(t *testing.T) {
	a := newApp(t)

	var got []string
	echo := bot.New("echo", "id1", "tok", "g")
	require.NoError(t, echo.HandleFunc(`.*`, func(c *bot.Context) error {
		got = append(got, "echo:"+c.Callback.Text)
		return nil
	}))
	other := bot.New("other", "id2", "tok", "g")
	require.NoError(t, other.HandleFunc(`.*`, func(c *bot.Context) error {
		got = append(got, "other:"+c.Callback.Text)
		return nil
	}))
	require.NoError(t, a.Register(echo, "/echo"))
	require.NoError(t, a.Register(other, "/other"))

	rec := do(a, http.MethodPost, "/echo", message("Hello there"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.SuccessText, rec.Body.String())
	assert.Equal(t, []string{"echo:Hello there"}, got)
}

func TestServeHTTP_NoMatchIsSuccess(t *testing.T) {
	a := newApp(t)
	b := bot.New("b", "id", "tok", "g")
	require.NoError(t, b.HandleFunc(`^\\gif`, func(*bot.Context) error { return errors.New("should not run") }))
	require.NoError(t, a.Register(b, "/b"))

	rec := do(a, http.MethodPost, "/b", message("nothing to see"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, constants.SuccessText, rec.Body.String())
}

func TestServeHTTP_BadJSON(t *testing.T) {
	a := newApp(t)
	require.NoError(t, a.Register(bot.New("b", "id", "tok", "g"), "/b"))

	rec := do(a, http.MethodPost, "/b", `{"text": `)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), constants.BadJSONTextPrefix), rec.Body.String())
}

func TestServeHTTP_TrailingDataIsBadJSON(t *testing.T) {
	a := newApp(t)
	b := bot.New("b", "id", "tok", "g")
	calls := 0
	require.NoError(t, b.HandleFunc(`^\\all`, func(*bot.Context) error {
		calls++
		return nil
	}))
	require.NoError(t, a.Register(b, "/b"))

	rec := do(a, http.MethodPost, "/b", `{"sender_type":"user","text":"\\all"} not json at all`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), constants.BadJSONTextPrefix), rec.Body.String())
	assert.Zero(t, calls)

	rec = do(a, http.MethodPost, "/b", `{"sender_type":"user","text":"\\all"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestServeHTTP_BodyTooLarge(t *testing.T) {
	a := New(WithMaxBodySize(16))
	require.NoError(t, a.Register(bot.New("b", "id", "tok", "g"), "/b"))

	rec := do(a, http.MethodPost, "/b", message(strings.Repeat("x", 64)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestServeHTTP_HandlerErrorKeepsServing(t *testing.T) {
	a := newApp(t)
	b := bot.New("b", "id", "tok", "g")
	require.NoError(t, b.HandleFunc(`^fail`, func(*bot.Context) error { return errors.New("boom") }))
	require.NoError(t, b.HandleFunc(`^panic`, func(*bot.Context) error { panic("kaboom") }))
	require.NoError(t, a.Register(b, "/b"))

	rec := do(a, http.MethodPost, "/b", message("fail please"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "boom")

	rec = do(a, http.MethodPost, "/b", message("panic please"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "kaboom")

	rec = do(a, http.MethodGet, "/_health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApplication_Lifecycle(t *testing.T) {
	a := New()
	assert.Equal(t, Unstarted, a.State())

	a.Start()
	assert.Equal(t, Running, a.State())
	assert.True(t, a.Scheduler().Running())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, a.Shutdown(ctx))
	assert.Equal(t, ShuttingDown, a.State())
	assert.False(t, a.Scheduler().Running())

	a.Start()
	assert.Equal(t, ShuttingDown, a.State(), "no restart after shutdown")
}

func TestApplication_ListenAndServe(t *testing.T) {
	a := New()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- a.ListenAndServe(ctx, "127.0.0.1:0") }()

	require.Eventually(t, func() bool { return a.State() == Running }, time.Second, 10*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after cancel")
	}
	assert.Equal(t, ShuttingDown, a.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unstarted", Unstarted.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "shutting-down", ShuttingDown.String())
}
