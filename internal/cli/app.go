package cli

import (
	"context"
	"errors"

	"github.com/stanzahq/stanza/internal/chat"
	"github.com/stanzahq/stanza/internal/db"
	"github.com/stanzahq/stanza/internal/events"
	"github.com/stanzahq/stanza/internal/identity"
	"github.com/stanzahq/stanza/internal/notify"
)

// app bundles what a command needs to act as the current user.
type app struct {
	db     *db.DB
	live   events.Channel
	user   *identity.User
	chat   *chat.Service
	notify *notify.Service
}

func openApp(ctx context.Context) (*app, error) {
	user, err := requireCurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	database, err := openDatabase()
	if err != nil {
		return nil, err
	}

	live, err := openLive(database)
	if err != nil {
		database.Close()
		return nil, err
	}

	cfg := GetConfig()
	notifyOpts := notify.Options{ListLimit: cfg.Notifications.ListLimit}
	if cfg.Notifications.PushOverLive {
		notifyOpts.Live = live
	}

	return &app{
		db:     database,
		live:   live,
		user:   user,
		chat:   chat.NewService(database, live),
		notify: notify.NewService(database, notifyOpts),
	}, nil
}

func (a *app) Close() error {
	return errors.Join(a.live.Close(), a.db.Close())
}
