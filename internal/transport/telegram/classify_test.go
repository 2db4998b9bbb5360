package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/qugok/birthday-bot/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want transport.Outcome
	}{
		{"nil", nil, transport.Delivered},
		{"blocked by user", tele.ErrBlockedByUser, transport.PermanentFailure},
		{"deactivated", tele.ErrUserIsDeactivated, transport.PermanentFailure},
		{"wrapped blocked", fmt.Errorf("send: %w", tele.ErrBlockedByUser), transport.PermanentFailure},
		{
			"raw 403 blocked description",
			&tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"},
			transport.PermanentFailure,
		},
		{
			"raw 403 deactivated description",
			&tele.Error{Code: 403, Description: "Forbidden: user is deactivated"},
			transport.PermanentFailure,
		},
		{
			"other 403",
			&tele.Error{Code: 403, Description: "Forbidden: bot is not a member"},
			transport.TransientFailure,
		},
		{"payload too large", tele.ErrTooLarge, transport.TransientFailure},
		{"network error", errors.New("connection reset by peer"), transport.TransientFailure},
		{"context deadline", context.DeadlineExceeded, transport.TransientFailure},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := classify(tc.err); got != tc.want {
				t.Fatalf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestClientTimeoutCoversLongPoll(t *testing.T) {
	t.Parallel()
	poll, send := 10*time.Second, 30*time.Second
	d := clientTimeout(poll, send)
	if d <= poll {
		t.Fatalf("client timeout %v would cut the long poll (%v)", d, poll)
	}
	if d != poll+send {
		t.Fatalf("client timeout = %v, want %v", d, poll+send)
	}
}
