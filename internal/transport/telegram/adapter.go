// Package telegram adapts the bot to Telegram via telebot: outbound content
// sends with failure classification, plus the inbound /start registration
// handler.
package telegram

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/qugok/birthday-bot/internal/catalog"
	rtsup "github.com/qugok/birthday-bot/internal/runtime/supervisor"
	"github.com/qugok/birthday-bot/internal/state"
	"github.com/qugok/birthday-bot/internal/transport"
	logx "github.com/qugok/birthday-bot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	// SendTimeout bounds one outbound Bot API call via the HTTP client.
	SendTimeout time.Duration
	// Greeting is the reply sent to /start. Registration always acks
	// immediately, whatever the scheduling outcome.
	Greeting string
}

type Adapter struct {
	cfg       Config
	log       logx.Logger
	bot       *tele.Bot
	registrar transport.Registrar

	// sup owns the poll loop and the stop watcher. Created on Start(),
	// cancelled on Stop().
	sup *rtsup.Supervisor
}

func New(cfg Config, registrar transport.Registrar, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sendTO := cfg.SendTimeout
	if sendTO <= 0 {
		sendTO = 30 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
		Client: &http.Client{Timeout: clientTimeout(timeout, sendTO)},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log, bot: b, registrar: registrar}
	a.registerHandlers()
	return a, nil
}

func (a *Adapter) registerHandlers() {
	a.bot.Handle("/start", func(c tele.Context) error {
		m := c.Message()
		if m == nil || m.Chat == nil {
			return nil
		}
		profile := state.Profile{}
		if m.Sender != nil {
			profile.DisplayName = strings.TrimSpace(m.Sender.FirstName + " " + m.Sender.LastName)
			profile.Handle = m.Sender.Username
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if _, err := a.registrar.Register(ctx, m.Chat.ID, profile); err != nil {
			// The requester still gets the greeting; the operator sees the error.
			a.log.Error("registration failed", logx.Int64("chat_id", m.Chat.ID), logx.Err(err))
		}

		greeting := a.cfg.Greeting
		if greeting == "" {
			greeting = "Hi! You are on the list."
		}
		return c.Reply(greeting)
	})
}

func (a *Adapter) Start(ctx context.Context) {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log.With(logx.String("comp", "telegram"))))
	sup := a.sup

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// Telebot's Start() is a long-running loop; run it under a restart loop
	// so the adapter self-heals if it exits unexpectedly.
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
		return c.Err()
	}, 500*time.Millisecond, 10*time.Second)
}

func (a *Adapter) Stop(ctx context.Context) error {
	sup := a.sup
	a.sup = nil
	if sup == nil {
		return nil
	}
	sup.Cancel()

	// Keep shutdown snappy even if the long-poll is still waiting.
	wctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Warn("telegram stop error", logx.Err(err))
	}
	return nil
}

// clientTimeout sizes the shared HTTP client deadline. The long poll
// legitimately holds a request open for the poll timeout, so the client
// bound must sit above it while still capping every send.
func clientTimeout(poll, send time.Duration) time.Duration {
	return poll + send
}

// Send delivers one content item to a chat: a photo with caption when the
// item carries a media ref (local file path), plain text otherwise.
//
// ctx is honored before dispatch; telebot carries no per-call context, so
// the in-flight HTTP request is bounded by the adapter's client timeout
// rather than ctx.
func (a *Adapter) Send(ctx context.Context, recipientID int64, item catalog.Item) error {
	if ctx != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}

	chat := &tele.Chat{ID: recipientID}
	if strings.TrimSpace(item.MediaRef) != "" {
		photo := &tele.Photo{File: tele.FromDisk(item.MediaRef), Caption: item.Text}
		_, err := a.bot.Send(chat, photo)
		return err
	}
	_, err := a.bot.Send(chat, item.Text)
	return err
}

// Classify maps telebot errors to delivery outcomes. Only the conditions
// meaning "this recipient revoked access for good" are permanent; everything
// else (flood waits, timeouts, network errors) is retried on a later tick.
func (a *Adapter) Classify(err error) transport.Outcome {
	return classify(err)
}

func classify(err error) transport.Outcome {
	if err == nil {
		return transport.Delivered
	}
	if errors.Is(err, tele.ErrBlockedByUser) || errors.Is(err, tele.ErrUserIsDeactivated) {
		return transport.PermanentFailure
	}
	var apiErr *tele.Error
	if errors.As(err, &apiErr) && apiErr.Code == 403 {
		d := strings.ToLower(apiErr.Description)
		if strings.Contains(d, "blocked") || strings.Contains(d, "deactivated") {
			return transport.PermanentFailure
		}
	}
	return transport.TransientFailure
}
