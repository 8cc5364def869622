package cmd

import (
	"context"

	"github.com/pantheon-systems/worf/pkg/chat/slackbot"
	"github.com/pantheon-systems/worf/pkg/healthz"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var slackCmd = &cobra.Command{
	Use:   "slackbot",
	Short: "Start Slack Chat mode",
	Long: `Startup worf using the slack chat driver and options

	Examples:
   worf slackbot --bot-token xoxb-... --github-orgs acme
`,
	RunE: startSlackBot,
}

func startSlackBot(cmd *cobra.Command, args []string) error {
	if err := requireKeys("bot-token", "github-token", "duo-ikey", "duo-skey", "duo-host"); err != nil {
		return err
	}

	b, err := slackbot.New(viper.GetString("bot-name"), viper.GetString("bot-token"), log)
	if err != nil {
		return err
	}

	gw, err := newGateway(b)
	if err != nil {
		return err
	}

	providers := append(gw.providers, healthz.Provider{Name: "slack", Purpose: "Slack bot token", Checker: b})
	h, err := startHealthz(providers)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	defer h.Shutdown(context.Background())

	if viper.GetString("tls-cert") != "" {
		g, err := h.NewGRPCServer(healthz.GRPCConfig{
			BindAddress: viper.GetString("bind-address"),
			TLSFile:     viper.GetString("tls-cert"),
			CAFile:      viper.GetString("ca-cert"),
			AllowedOUs:  viper.GetStringSlice("allowed-ou"),
		})
		if err != nil {
			return err
		}
		go func() {
			if err := g.Run(ctx); err != nil {
				log.WithError(err).Error("grpc health server stopped")
			}
		}()
	}

	err = b.Run(ctx, gw.dispatcher)
	if err == context.Canceled {
		return nil
	}
	return err
}

func init() {
	flags := slackCmd.PersistentFlags()
	flags.StringP("bot-token", "t", "", "The slack bot token to use.")
	flags.StringP("bind-address", "b", ":6000", "The ip and port the gRPC health service listens on")
	flags.StringP("tls-cert", "c", "", "The TLS cert + key in .pem format used to identify the gRPC health service. Empty disables it.")
	flags.StringP("ca-cert", "k", "", "The CA certificate client certificates must be signed by")
	flags.StringSlice("allowed-ou", []string{}, "Client certificate OUs allowed to query the gRPC health service")

	// binding flags to viper
	flags.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}
