package slackbot

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/Sirupsen/logrus"
	"github.com/davecgh/go-spew/spew"
	"github.com/nlopes/slack"
	"github.com/pantheon-systems/worf/pkg/worf"
)

// ErrInvalidAuth is returned by Run when Slack rejects the bot token.
var ErrInvalidAuth = errors.New("slack rejected the bot token")

// Attachment colors per notification level.
var colors = map[worf.Level]string{
	worf.LevelInfo:    "#439FE0",
	worf.LevelError:   "danger",
	worf.LevelSuccess: "good",
}

// SlackBot is the slack adaptor for worf. It turns RTM messages into
// dispatched commands and implements worf.Notifier for the replies.
type SlackBot struct {
	name string
	rtm  *slack.RTM
	api  *slack.Client
	log  *logrus.Logger

	botID string
	users sync.Map

	sync.RWMutex
}

var _ worf.Notifier = (*SlackBot)(nil)

// New is the constructor for a bot
func New(name, botToken string, log *logrus.Logger) (*SlackBot, error) {
	if botToken == "" {
		return nil, worf.NewError(worf.KindConfiguration, "slack setup", errors.New("'bot-token' must be specified"))
	}
	api := slack.New(botToken)
	return &SlackBot{
		name: name,
		api:  api,
		rtm:  api.NewRTM(),
		log:  log,
	}, nil
}

// SendInfo implements worf.Notifier
func (b *SlackBot) SendInfo(channel, text string, opts ...worf.NotifyOption) {
	b.send(worf.LevelInfo, channel, text, opts)
}

// SendError implements worf.Notifier
func (b *SlackBot) SendError(channel, text string, opts ...worf.NotifyOption) {
	b.send(worf.LevelError, channel, text, opts)
}

// SendSuccess implements worf.Notifier
func (b *SlackBot) SendSuccess(channel, text string, opts ...worf.NotifyOption) {
	b.send(worf.LevelSuccess, channel, text, opts)
}

func (b *SlackBot) send(level worf.Level, channel, text string, opts []worf.NotifyOption) {
	o := worf.ApplyNotifyOptions(opts...)
	msgOpts := []slack.MsgOption{
		slack.MsgOptionAsUser(true),
		slack.MsgOptionAttachments(attachment(level, text, o)),
	}
	if o.Thread != "" {
		msgOpts = append(msgOpts, slack.MsgOptionTS(o.Thread))
	}

	var err error
	if o.EphemeralUser != "" {
		_, err = b.api.PostEphemeral(channel, o.EphemeralUser, msgOpts...)
	} else {
		_, _, err = b.api.PostMessage(channel, msgOpts...)
	}
	if err != nil {
		b.log.WithFields(logrus.Fields{
			"channel": channel,
			"level":   level,
		}).WithError(err).Error("couldn't deliver message to slack")
	}
}

func attachment(level worf.Level, text string, o worf.NotifyOptions) slack.Attachment {
	a := slack.Attachment{
		Color:    colors[level],
		Text:     text,
		Fallback: text,
	}
	if o.Markdown {
		a.MarkdownIn = []string{"text"}
	}
	return a
}

// Run connects to slack and feeds messages to d until ctx is done or Slack
// rejects our credentials. Each command is dispatched on its own goroutine.
func (b *SlackBot) Run(ctx context.Context, d *worf.Dispatcher) error {
	b.log.Info("starting slack RTM broker")
	go b.rtm.ManageConnection()
	defer b.rtm.Disconnect()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-b.rtm.IncomingEvents:
			if err := b.handleEvent(ctx, d, msg); err != nil {
				return err
			}
		}
	}
}

func (b *SlackBot) handleEvent(ctx context.Context, d *worf.Dispatcher, msg slack.RTMEvent) error {
	switch ev := msg.Data.(type) {
	case *slack.ConnectedEvent:
		b.Lock()
		b.botID = ev.Info.User.ID
		b.Unlock()

		users, err := b.api.GetUsers()
		if err != nil {
			// users are fetched lazily in that case
			b.log.WithError(err).Warn("couldn't preload slack users")
		}
		for _, u := range users {
			b.users.Store(u.ID, u)
		}
		b.log.WithField("bot", ev.Info.User.Name).Info("worf has connected to Slack!")

	case *slack.TeamJoinEvent:
		b.log.WithField("user", ev.User.Name).Debug("user joined")
		b.users.Store(ev.User.ID, ev.User)

	case *slack.UserChangeEvent:
		b.users.Store(ev.User.ID, ev.User)

	case *slack.MessageEvent:
		if b.log.Level >= logrus.DebugLevel {
			b.log.Debug(spew.Sdump(ev))
		}

		b.RLock()
		botID := b.botID
		b.RUnlock()

		// ignore messages from other bots or ourself. Edits and other
		// subtypes come with an empty ev.User.
		if ev.BotID != "" || ev.User == botID || ev.User == "" || ev.SubType != "" {
			return nil
		}

		isDM := strings.HasPrefix(ev.Channel, "D")
		text, ok := normalize(ev.Text, botID, isDM)
		if !ok {
			return nil
		}

		user, err := b.user(ev.User)
		if err != nil {
			b.log.WithError(err).WithField("user", ev.User).Error("couldn't look up slack user")
			return nil
		}

		// if this was a direct message we disable threaded responses. Slack
		// duplicates the response in the thread view and the DM view.
		threadTs := ev.ThreadTimestamp
		ts := ev.Timestamp
		if isDM {
			threadTs, ts = "", ""
		}

		m := worf.Message{
			Channel:   ev.Channel,
			Timestamp: ts,
			ThreadTs:  threadTs,
			User:      user,
			Text:      text,
		}
		b.log.WithFields(logrus.Fields{"user": user.Name, "text": text}).Info("command received")
		go d.Dispatch(ctx, m)

	case *slack.RTMError:
		b.log.WithError(ev).Error("slack RTM error")

	case *slack.InvalidAuthEvent:
		return ErrInvalidAuth

	default:
		// Ignore other events..
	}
	return nil
}

// normalize strips the bot mention from a message. Channel messages must
// address the bot; direct messages don't have to.
func normalize(text, botID string, isDM bool) (string, bool) {
	fields := strings.Fields(text)
	mention := "<@" + botID + ">"
	if len(fields) > 0 && fields[0] == mention {
		fields = fields[1:]
	} else if !isDM {
		return "", false
	}

	// ignore when someone addresses us without a command
	if len(fields) == 0 {
		return "", false
	}
	return strings.Join(fields, " "), true
}

// user returns the chat user for id from the cache, asking slack on a miss.
func (b *SlackBot) user(id string) (worf.User, error) {
	if u, ok := b.users.Load(id); ok {
		return toUser(u.(slack.User)), nil
	}
	u, err := b.api.GetUserInfo(id)
	if err != nil {
		return worf.User{}, err
	}
	b.users.Store(u.ID, *u)
	return toUser(*u), nil
}

func toUser(u slack.User) worf.User {
	return worf.User{
		ID:    u.ID,
		Name:  u.Name,
		Email: u.Profile.Email,
	}
}

// HealthZ checks that the bot token is still accepted.
func (b *SlackBot) HealthZ() error {
	_, err := b.api.AuthTest()
	return err
}
