package core

import (
	"context"
	"fmt"
	"time"

	"github.com/keepmind9/groupmebot/internal/logger"
	"github.com/keepmind9/groupmebot/pkg/bot"
	"github.com/keepmind9/groupmebot/pkg/constants"
	"github.com/keepmind9/groupmebot/pkg/groupme"
	"github.com/keepmind9/groupmebot/pkg/router"
	"github.com/sirupsen/logrus"
)

// BuildApplication creates an application serving every configured bot.
// opts are applied after the options derived from config. If any bot fails,
// the partly built application is shut down before the error is returned.
func BuildApplication(config *Config, opts ...router.Option) (*router.Application, error) {
	app := router.New(append([]router.Option{
		router.WithMaxBodySize(config.Server.MaxBodySize),
		router.WithTimeouts(config.Server.ReadTimeout, config.Server.WriteTimeout),
		router.WithShutdownTimeout(config.Server.ShutdownTimeout),
	}, opts...)...)

	for _, bc := range config.Bots {
		b, err := BuildBot(bc, config.Platform)
		if err != nil {
			abort(app, config.Server.ShutdownTimeout)
			return nil, fmt.Errorf("failed to build bot %s: %w", bc.Name, err)
		}
		if err := app.Register(b, bc.Path); err != nil {
			abort(app, config.Server.ShutdownTimeout)
			return nil, fmt.Errorf("failed to register bot %s: %w", bc.Name, err)
		}
	}

	return app, nil
}

// abort stops a scheduler started by an earlier registration
func abort(app *router.Application, timeout time.Duration) {
	if timeout <= 0 {
		timeout = constants.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := app.Shutdown(ctx); err != nil {
		logger.WithField("error", err).Warn("build-shutdown-failed")
	}
}

// BuildBot creates a bot with its handlers and jobs bound to their actions
func BuildBot(bc BotConfig, platform PlatformConfig) (*bot.Bot, error) {
	var clientOpts []groupme.ClientOption
	if platform.APIURL != "" {
		clientOpts = append(clientOpts, groupme.WithAPIURL(platform.APIURL))
	}
	if platform.ImageURL != "" {
		clientOpts = append(clientOpts, groupme.WithImageURL(platform.ImageURL))
	}
	if platform.Timeout > 0 {
		clientOpts = append(clientOpts, groupme.WithTimeout(platform.Timeout))
	}

	guard := bot.GuardHumanOnly
	if bc.Guard == GuardNotSelf {
		guard = bot.GuardNotSelf
	}

	b := bot.New(bc.Name, bc.BotID, bc.Token, bc.GroupID,
		bot.WithClient(groupme.NewClient(bc.Token, clientOpts...)),
		bot.WithGuard(guard),
	)

	for _, h := range bc.Handlers {
		fn, err := newAction(h.ActionConfig)
		if err != nil {
			return nil, fmt.Errorf("handler %s: %w", h.Pattern, err)
		}
		if err := b.HandleFunc(h.Pattern, fn); err != nil {
			return nil, err
		}
	}

	for _, j := range bc.Jobs {
		fn, err := newAction(j.ActionConfig)
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.Name, err)
		}
		cron, err := j.Schedule.Cron()
		if err != nil {
			return nil, fmt.Errorf("job %s: %w", j.Name, err)
		}
		if err := b.AddJob(j.Name, fn, cron); err != nil {
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"bot":    bc.Name,
		"bot_id": logger.MaskSecret(bc.BotID),
		"token":  logger.MaskSecret(bc.Token),
		"guard":  bc.Guard,
	}).Debug("bot-built")

	return b, nil
}
