package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/pantheon-systems/worf/pkg/healthz"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Query a running worf over its mTLS gRPC health service",
	Long: `Connects to a worf slackbot and reports whether GitHub, Duo and Slack
are reachable from it. Exits non-zero when they are not.

	Examples:
   worf healthcheck --addr worf:6000 --client-cert probe.pem --client-ca ca.crt
`,
	RunE: runHealthcheck,
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	if err := requireKeys("addr", "client-cert", "client-ca"); err != nil {
		return err
	}

	conn, err := healthz.NewTLSConnection(viper.GetString("addr"), viper.GetString("client-ca"), viper.GetString("client-cert"))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), viper.GetDuration("timeout"))
	defer cancel()

	st, err := healthz.Probe(ctx, conn)
	if err != nil {
		return err
	}
	fmt.Println(st)
	if st != healthpb.HealthCheckResponse_SERVING {
		return fmt.Errorf("worf at %s is %s", viper.GetString("addr"), st)
	}
	return nil
}

func init() {
	flags := healthcheckCmd.PersistentFlags()
	flags.StringP("addr", "a", "localhost:6000", "Address of the worf gRPC health service")
	flags.String("client-cert", "", "Path to TLS client key + certificate (.pem)")
	flags.String("client-ca", "", "Path to CA cert for validating the worf server")
	flags.Duration("timeout", 5*time.Second, "How long to wait for an answer")

	flags.VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})
}
