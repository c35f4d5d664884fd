package groupme

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
)

// SenderType tells who produced a message.
type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderBot    SenderType = "bot"
	SenderSystem SenderType = "system"
)

// Callback is the payload the platform posts to a bot's callback URL for
// every message in its group. Fields missing from the payload are zero.
type Callback struct {
	ID         string
	GroupID    string
	SenderID   string
	SenderType SenderType
	UserID     string
	Name       string
	Text       string
	CreatedAt  int64
	AvatarURL  string
	SourceGUID string
	System     bool

	rawAttachments []any
	once           sync.Once
	attachments    []Attachment
	attachmentsErr error
}

// ParseCallback reads a decoded webhook body. It never fails: absent fields
// read as zero and scalar values of another type are rendered as text.
func ParseCallback(raw map[string]any) *Callback {
	c := &Callback{
		ID:         text(raw["id"]),
		GroupID:    text(raw["group_id"]),
		SenderID:   text(raw["sender_id"]),
		SenderType: SenderType(text(raw["sender_type"])),
		UserID:     text(raw["user_id"]),
		Name:       text(raw["name"]),
		Text:       text(raw["text"]),
		CreatedAt:  int64Value(raw["created_at"]),
		AvatarURL:  text(raw["avatar_url"]),
		SourceGUID: text(raw["source_guid"]),
	}
	if b, ok := raw["system"].(bool); ok {
		c.System = b
	}
	if atts, ok := raw["attachments"].([]any); ok {
		c.rawAttachments = atts
	}
	return c
}

// ParseCallbackJSON decodes a webhook body. Only malformed JSON is an error.
func ParseCallbackJSON(data []byte) (*Callback, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("invalid character after top-level value")
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return ParseCallback(raw), nil
}

// FromUser reports whether a human sent the message.
func (c *Callback) FromUser() bool {
	return c.SenderType == SenderUser
}

// Attachments decodes the callback's attachments on first use. Any entry that
// fails to decode fails the whole call.
func (c *Callback) Attachments() ([]Attachment, error) {
	c.once.Do(func() {
		atts := make([]Attachment, 0, len(c.rawAttachments))
		for i, item := range c.rawAttachments {
			m, ok := item.(map[string]any)
			if !ok {
				c.attachmentsErr = fmt.Errorf("attachment %d: expected an object, got %T", i, item)
				return
			}
			a, err := DecodeAttachment(m)
			if err != nil {
				c.attachmentsErr = fmt.Errorf("attachment %d: %w", i, err)
				return
			}
			atts = append(atts, a)
		}
		c.attachments = atts
	})
	return c.attachments, c.attachmentsErr
}

func int64Value(v any) int64 {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return int64(f)
		}
	case float64:
		return int64(t)
	case int64:
		return t
	case int:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
