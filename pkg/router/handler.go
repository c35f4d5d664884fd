package router

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/keepmind9/groupmebot/pkg/bot"
	"github.com/keepmind9/groupmebot/pkg/constants"
	"github.com/keepmind9/groupmebot/pkg/groupme"
	"github.com/sirupsen/logrus"
)

// Summary is served at the root path.
type Summary struct {
	Endpoints        map[string]string `json:"endpoints"`
	Jobs             []string          `json:"jobs"`
	SchedulerRunning bool              `json:"scheduler_running"`
}

// Summary describes the registered endpoints and the scheduled jobs.
func (a *Application) Summary() Summary {
	s := Summary{
		Endpoints:        make(map[string]string),
		Jobs:             []string{},
		SchedulerRunning: a.sched.Running(),
	}
	for path, desc := range reservedPaths {
		s.Endpoints[path] = desc
	}

	a.mu.RLock()
	for path, b := range a.routes {
		s.Endpoints[path] = b.String()
	}
	a.mu.RUnlock()

	for _, j := range a.sched.Jobs() {
		s.Jobs = append(s.Jobs, j.String())
	}
	return s
}

// ServeHTTP routes a request by its exact path.
func (a *Application) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case constants.RootPath:
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, a.Summary())
		case http.MethodHead:
			writeText(w, http.StatusOK, constants.PingText)
		default:
			methodNotAllowed(w, "GET, HEAD")
		}
		return

	case constants.HealthPath:
		if r.Method != http.MethodGet {
			methodNotAllowed(w, "GET")
			return
		}
		writeText(w, http.StatusOK, constants.HealthText)
		return
	}

	b, ok := a.Bot(r.URL.Path)
	if !ok {
		writeText(w, http.StatusNotFound, constants.NotFoundText)
		return
	}

	switch r.Method {
	case http.MethodPost:
		a.handleCallback(w, r, b)
	case http.MethodGet, http.MethodHead:
		writeText(w, http.StatusOK, constants.PingText)
	default:
		methodNotAllowed(w, "POST, GET, HEAD")
	}
}

// handleCallback parses the webhook body and dispatches it to b. Handler
// failures become a 500 carrying the error text; they never escape.
func (a *Application) handleCallback(w http.ResponseWriter, r *http.Request, b *bot.Bot) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.maxBodySize))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeText(w, http.StatusRequestEntityTooLarge, "413 Request Entity Too Large")
			return
		}
		writeText(w, http.StatusBadRequest, "400 Bad Request. Unable to read body. Error: "+err.Error())
		return
	}

	cb, err := groupme.ParseCallbackJSON(body)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"bot":   b.Name,
			"path":  r.URL.Path,
			"error": err,
		}).Warn("invalid-callback-json")
		writeText(w, http.StatusBadRequest, constants.BadJSONTextPrefix+err.Error())
		return
	}

	result, err := b.Dispatch(r.Context(), cb)
	if err != nil {
		logger.WithFields(logrus.Fields{
			"bot":    b.Name,
			"bot_id": b.ID,
			"path":   r.URL.Path,
			"body":   string(body),
			"error":  err,
		}).Error("handler-failed")
		writeText(w, http.StatusInternalServerError, err.Error())
		return
	}

	logger.WithFields(logrus.Fields{
		"bot":       b.Name,
		"result":    result.String(),
		"sender_id": cb.SenderID,
	}).Debug("callback-dispatched")
	writeText(w, http.StatusOK, constants.SuccessText)
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeText(w, http.StatusMethodNotAllowed, constants.MethodNotAllowedText)
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, text)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.WithField("error", err).Warn("failed-to-write-json-response")
	}
}
