package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pantheon-systems/worf/pkg/auth/duo"
	"github.com/pantheon-systems/worf/pkg/commands"
	"github.com/pantheon-systems/worf/pkg/github"
	"github.com/pantheon-systems/worf/pkg/healthz"
	"github.com/pantheon-systems/worf/pkg/worf"
	"github.com/spf13/viper"
)

// gateway is everything a chat driver needs to serve commands.
type gateway struct {
	dispatcher *worf.Dispatcher
	providers  []healthz.Provider
}

// newGateway builds the GitHub client, the auth gate and the dispatcher.
// Missing secrets are fatal; worf never runs with authentication disabled.
func newGateway(notifier worf.Notifier) (*gateway, error) {
	gh, err := github.New(viper.GetString("github-token"), viper.GetString("github-url"), log)
	if err != nil {
		return nil, err
	}

	gate, err := duo.New(map[string]string{
		duo.KeyIntegration: viper.GetString("duo-ikey"),
		duo.KeySecret:      viper.GetString("duo-skey"),
		duo.KeyHost:        viper.GetString("duo-host"),
	}, notifier, duo.WithChallengeTimeout(challengeTimeout()), duo.WithLogger(log))
	if err != nil {
		return nil, err
	}

	orgs := viper.GetStringSlice("github-orgs")
	if len(orgs) == 0 {
		log.Warn("no github-orgs configured, every command will be refused")
	}

	d := worf.NewDispatcher(&worf.Services{
		Lookup:   gh,
		Notifier: notifier,
		Log:      log,
	}, gate)
	if err := d.Register(commands.GitHub(gh, orgs)...); err != nil {
		return nil, err
	}

	return &gateway{
		dispatcher: d,
		providers: []healthz.Provider{
			{Name: "github", Purpose: "GitHub API token", Checker: gh},
			{Name: "duo", Purpose: "Duo Auth API credentials", Checker: gate},
		},
	}, nil
}

// startHealthz serves /healthz in the background unless the port is 0.
func startHealthz(providers []healthz.Provider) (*healthz.Monitor, error) {
	m, err := healthz.New(healthz.Config{
		Address:   viper.GetString("healthz-address"),
		Port:      viper.GetInt("healthz-port"),
		Providers: providers,
		Logger:    log,
	})
	if err != nil {
		return nil, err
	}
	if viper.GetInt("healthz-port") != 0 {
		go func() {
			if err := m.ListenAndServe(); err != nil {
				log.WithError(err).Error("healthz server stopped")
			}
		}()
	}
	return m, nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case s := <-c:
			log.Info("shutting down on ", s)
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(c)
	}()
	return ctx, cancel
}
