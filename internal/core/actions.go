package core

import (
	"fmt"

	"github.com/keepmind9/groupmebot/pkg/bot"
	"github.com/keepmind9/groupmebot/pkg/groupme"
)

// Actions available to configured handlers and jobs
const (
	ActionReply      = "reply"
	ActionMentionAll = "mention_all"
	ActionEcho       = "echo"
)

// newAction returns the handler that performs a
func newAction(a ActionConfig) (bot.HandlerFunc, error) {
	switch a.Action {
	case ActionReply:
		return replyAction(a), nil
	case ActionMentionAll:
		return func(c *bot.Context) error {
			return c.Bot.MentionEveryone(c)
		}, nil
	case ActionEcho:
		return echoAction, nil
	default:
		return nil, fmt.Errorf("unknown action '%s'", a.Action)
	}
}

func replyAction(a ActionConfig) bot.HandlerFunc {
	return func(c *bot.Context) error {
		var atts []groupme.Attachment
		if a.ImageURL != "" {
			url, err := c.Bot.ImageURLToPlatformURL(c, a.ImageURL)
			if err != nil {
				return fmt.Errorf("failed to re-host image: %w", err)
			}
			atts = append(atts, groupme.Image{URL: url})
		}
		if a.Location != nil {
			atts = append(atts, groupme.NewLocation(a.Location.Name, a.Location.Lat, a.Location.Lng))
		}
		return c.Bot.PostMessage(c, a.Text, atts...)
	}
}

// echoAction posts the inbound text back. Jobs have no inbound text and post nothing.
func echoAction(c *bot.Context) error {
	if c.Callback == nil || c.Callback.Text == "" {
		return nil
	}
	return c.Bot.PostMessage(c, c.Callback.Text)
}
