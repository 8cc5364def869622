package cmd

import (
	"github.com/pantheon-systems/worf/pkg/chat/terminalbot"
	"github.com/pantheon-systems/worf/pkg/worf"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var terminalCmd = &cobra.Command{
	Use:   "terminal",
	Short: "Start Terminal chat mode",
	Long: `Startup worf using terminal driver for testing. Commands are issued as
the user given by --nickname and --email, and Duo pushes go to that email.

	Examples:
   worf terminal --nickname picard --email picard@example.com
`,
	RunE: startTerminalBot,
}

func startTerminalBot(cmd *cobra.Command, args []string) error {
	if err := requireKeys("email", "github-token", "duo-ikey", "duo-skey", "duo-host"); err != nil {
		return err
	}

	user := worf.User{
		ID:    "terminal",
		Name:  viper.GetString("nickname"),
		Email: viper.GetString("email"),
	}
	t, err := terminalbot.New(viper.GetString("bot-name"), user, log)
	if err != nil {
		return err
	}

	gw, err := newGateway(t)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()
	return t.Run(ctx, gw.dispatcher)
}

func init() {
	flags := terminalCmd.PersistentFlags()
	flags.String("nickname", "user", "The chat name to issue commands as")
	flags.String("email", "", "The email to send Duo pushes to")

	flags.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}
