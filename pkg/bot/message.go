package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/keepmind9/groupmebot/pkg/groupme"
	"github.com/sirupsen/logrus"
)

// PostMessage posts text with optional attachments to the bot's group.
func (b *Bot) PostMessage(ctx context.Context, text string, atts ...groupme.Attachment) error {
	if err := b.client.PostBotMessage(ctx, b.ID, text, atts); err != nil {
		logger.WithFields(logrus.Fields{
			"bot":   b.Name,
			"error": err,
		}).Error("failed-to-post-message")
		return err
	}

	logger.WithFields(logrus.Fields{
		"bot":         b.Name,
		"text_len":    len(text),
		"attachments": len(atts),
	}).Info("message-posted")
	return nil
}

// MentionEveryone posts one message that mentions every member of the
// group, in roster order.
func (b *Bot) MentionEveryone(ctx context.Context) error {
	group, err := b.client.GetGroup(ctx, b.GroupID)
	if errors.Is(err, groupme.ErrNotModified) {
		logger.WithBot(b.Name).Debug("group-not-modified-nothing-to-mention")
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load group %s: %w", b.GroupID, err)
	}

	text, mentions := buildMentions(group.Members)
	return b.PostMessage(ctx, text, mentions)
}

// buildMentions renders "@nick " for each member and records where each
// mention sits in the text. Offsets and lengths are byte counts; a span
// covers the "@" and the nickname but not the trailing space.
func buildMentions(members []groupme.Member) (string, groupme.Mentions) {
	var sb strings.Builder
	mentions := groupme.Mentions{
		Loci:    make([][]int, 0, len(members)),
		UserIDs: make([]string, 0, len(members)),
	}

	for _, m := range members {
		mentions.UserIDs = append(mentions.UserIDs, m.UserID)
		mentions.Loci = append(mentions.Loci, []int{sb.Len(), len(m.Nickname) + 1})
		sb.WriteString("@")
		sb.WriteString(m.Nickname)
		sb.WriteString(" ")
	}
	return sb.String(), mentions
}

// ImageURLToPlatformURL re-hosts an external image on the platform so it can
// be attached to a message.
func (b *Bot) ImageURLToPlatformURL(ctx context.Context, url string) (string, error) {
	hosted, err := b.client.ImageURLToPlatformURL(ctx, url)
	if err != nil {
		return "", err
	}
	logger.WithFields(logrus.Fields{
		"bot":    b.Name,
		"source": url,
		"hosted": hosted,
	}).Debug("image-rehosted")
	return hosted, nil
}
