// Package duo implements the gateway's authentication gate with Duo push.
//
// The user's chat email is sent to Duo's Auth API as the username with
// factor=push and device=auto, and the command only runs when Duo answers
// "allow".
package duo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/Sirupsen/logrus"
	duoapi "github.com/duosecurity/duo_api_golang"
	"github.com/pantheon-systems/worf/pkg/worf"
)

// Secret bundle keys. All three are required.
const (
	KeyIntegration = "DUO_IKEY"
	KeySecret      = "DUO_SKEY"
	KeyHost        = "DUO_HOST"
)

const (
	// DefaultChallengeTimeout bounds a push. A human has to find their phone.
	DefaultChallengeTimeout = 60 * time.Second
	// DefaultAPITimeout bounds every other Duo call.
	DefaultAPITimeout = 10 * time.Second

	// rateLimitBackoff covers duoapi's own retries on 429: six sleeps of
	// 1s doubling to 32s, each with up to 1s of jitter.
	rateLimitBackoff = 70 * time.Second

	userAgent = "worf"
)

var errCannotAuthenticate = errors.New("cannot authenticate this identity")

// statusError is a non-200 answer from the Duo API.
type statusError int

func (s statusError) Error() string { return strconv.Itoa(int(s)) }

// caller is the part of duoapi.DuoApi the gate uses.
type caller interface {
	SignedCall(method, uri string, params url.Values, options ...duoapi.DuoApiOption) (*http.Response, []byte, error)
}

// Gate is a worf.Gate backed by Duo. It is read-only after New and safe
// for concurrent use.
type Gate struct {
	push  caller
	check caller

	notifier         worf.Notifier
	log              *logrus.Logger
	challengeTimeout time.Duration
	apiTimeout       time.Duration
	backoff          time.Duration
}

// Option configures a Gate.
type Option func(*Gate)

// WithChallengeTimeout overrides DefaultChallengeTimeout.
func WithChallengeTimeout(d time.Duration) Option {
	return func(g *Gate) {
		if d > 0 {
			g.challengeTimeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option {
	return func(g *Gate) { g.log = l }
}

// New validates the secret bundle and connects the gate. It fails with a
// KindConfiguration error when a secret is missing, so a misconfigured
// process never accepts an authentication request.
func New(secrets map[string]string, notifier worf.Notifier, opts ...Option) (*Gate, error) {
	for _, k := range []string{KeyIntegration, KeySecret, KeyHost} {
		if secrets[k] == "" {
			return nil, worf.NewError(worf.KindConfiguration, "duo setup",
				fmt.Errorf("'%s' must be provided to enable authentication", k))
		}
	}
	if notifier == nil {
		return nil, worf.NewError(worf.KindConfiguration, "duo setup", errors.New("no notifier"))
	}

	g := &Gate{
		notifier:         notifier,
		log:              logrus.New(),
		challengeTimeout: DefaultChallengeTimeout,
		apiTimeout:       DefaultAPITimeout,
		backoff:          rateLimitBackoff,
	}
	for _, o := range opts {
		o(g)
	}

	ikey, skey, host := secrets[KeyIntegration], secrets[KeySecret], secrets[KeyHost]
	if g.push == nil {
		g.push = duoapi.NewDuoApi(ikey, skey, host, userAgent, duoapi.SetTimeout(g.challengeTimeout))
	}
	if g.check == nil {
		g.check = duoapi.NewDuoApi(ikey, skey, host, userAgent, duoapi.SetTimeout(g.apiTimeout))
	}
	return g, nil
}

// Authenticate sends a push to the acting user's device and waits for the
// answer. The user gets an advisory up front and exactly one more message
// with the outcome.
func (g *Gate) Authenticate(ctx context.Context, cc *worf.CommandContext) worf.Decision {
	user := cc.User()
	log := g.log.WithFields(logrus.Fields{
		"command": cc.Command(),
		"user":    user.Name,
		"email":   user.Email,
	})

	g.notifier.SendInfo(cc.Channel(),
		fmt.Sprintf("🎟 @%s: Sending a Duo notification to your device. You must approve!", user.Name),
		worf.Markdown(), worf.EphemeralTo(user.ID))

	allowed, err := g.challenge(ctx, user.Email)

	var status statusError
	switch {
	case errors.As(err, &status):
		log.WithField("status", int(status)).Warn("duo returned a non-200 status")
		g.notifier.SendError(cc.Channel(),
			fmt.Sprintf("💀 @%s: There was a problem communicating with Duo. Got this status: %s. Aborting...", user.Name, status),
			worf.Markdown())
		return worf.Unavailability(status.Error())

	case errors.Is(err, errCannotAuthenticate):
		log.Warn("duo can't authenticate user")
		g.notifier.SendError(cc.Channel(),
			fmt.Sprintf("💀 @%s: I can't Duo authenticate you. Please consult with your identity team. Aborting...", user.Name),
			worf.Markdown())
		return worf.Deny(errCannotAuthenticate.Error())

	case err != nil:
		log.WithError(err).Error("duo challenge failed")
		g.notifier.SendError(cc.Channel(),
			fmt.Sprintf("💀 @%s: I encountered some issue with Duo... Here are the details: ```%s```", user.Name, err),
			worf.Markdown())
		return worf.Unavailability(err.Error())

	case !allowed:
		log.Info("duo push rejected")
		g.notifier.SendError(cc.Channel(),
			fmt.Sprintf("💀 @%s: Your Duo request was rejected. Aborting...", user.Name),
			worf.Markdown(), worf.InThread(cc.Thread()))
		return worf.Deny("rejected")
	}

	log.Info("duo push approved")
	g.notifier.SendSuccess(cc.Channel(),
		fmt.Sprintf("🎸 @%s: Duo approved! Completing request...", user.Name),
		worf.Markdown(), worf.EphemeralTo(user.ID))
	return worf.Approve()
}

type authResponse struct {
	Stat     string `json:"stat"`
	Code     int    `json:"code"`
	Message  string `json:"message"`
	Response struct {
		Result    string `json:"result"`
		Status    string `json:"status"`
		StatusMsg string `json:"status_msg"`
	} `json:"response"`
}

type reply struct {
	resp *http.Response
	body []byte
	err  error
}

// challenge performs one push. It reports true only for an explicit "allow".
// The HTTP request itself is bounded by challengeTimeout; the deadline here
// also leaves room for duoapi to back off on 429 and report the status.
func (g *Gate) challenge(ctx context.Context, email string) (bool, error) {
	if email == "" {
		return false, errCannotAuthenticate
	}

	ctx, cancel := context.WithTimeout(ctx, g.challengeTimeout+g.backoff)
	defer cancel()

	params := url.Values{}
	params.Set("username", email)
	params.Set("factor", "push")
	params.Set("device", "auto")

	ch := make(chan reply, 1)
	go func() {
		resp, body, err := g.push.SignedCall(http.MethodPost, "/auth/v2/auth", params, duoapi.UseTimeout)
		ch <- reply{resp, body, err}
	}()

	var r reply
	select {
	case r = <-ch:
	case <-ctx.Done():
		return false, fmt.Errorf("waiting for duo push: %w", ctx.Err())
	}
	if r.err != nil {
		return false, r.err
	}
	if r.resp.StatusCode != http.StatusOK {
		return false, statusError(r.resp.StatusCode)
	}

	var result authResponse
	if err := json.Unmarshal(r.body, &result); err != nil {
		return false, fmt.Errorf("malformed duo response: %w", err)
	}
	if result.Stat != "OK" {
		g.log.WithFields(logrus.Fields{
			"code":    result.Code,
			"message": result.Message,
		}).Debug("duo stat not OK")
		return false, errCannotAuthenticate
	}
	return result.Response.Result == "allow", nil
}

// HealthZ verifies the integration credentials against /auth/v2/check.
func (g *Gate) HealthZ() error {
	resp, body, err := g.check.SignedCall(http.MethodGet, "/auth/v2/check", nil, duoapi.UseTimeout)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("duo check returned status %d", resp.StatusCode)
	}
	var result authResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("malformed duo response: %w", err)
	}
	if result.Stat != "OK" {
		return fmt.Errorf("duo check failed: %s", result.Message)
	}
	return nil
}
