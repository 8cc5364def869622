// Copyright © 2017 Pantheon
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sirupsen/logrus"
	"github.com/pantheon-systems/worf/pkg/auth/duo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const appName = "worf"

var (
	version = "development"
	log     = logrus.New()
	cfgFile string
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Report version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println(version)
	},
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "worf",
	Short: "chat command gateway for GitHub",
	Long: `Worf is a chat gateway that performs privileged GitHub changes on
request. Every command checks that the repositories, branches and users it
refers to exist, and sensitive commands need a Duo push approval from the
person asking.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}

func init() {
	RootCmd.AddCommand(slackCmd)
	RootCmd.AddCommand(terminalCmd)
	RootCmd.AddCommand(healthcheckCmd)
	RootCmd.AddCommand(versionCmd)

	cobra.OnInitialize(initConfig)

	flags := RootCmd.PersistentFlags()
	flags.StringP("bot-name", "n", appName, "The name of your bot in chat")
	flags.StringVarP(&cfgFile, "config-file", "f", "", "Configuration file to use")
	flags.BoolP("debug", "d", false, "Enable debug logging")
	flags.BoolP("json-log", "j", false, "Enable json output formatted logging")

	flags.String("github-token", "", "GitHub API token with admin rights on the managed organizations")
	flags.String("github-url", "", "GitHub Enterprise API URL, empty for github.com")
	flags.StringSlice("github-orgs", []string{}, "Organizations commands may act on")

	flags.String("duo-ikey", "", "Duo integration key")
	flags.String("duo-skey", "", "Duo secret key")
	flags.String("duo-host", "", "Duo API hostname")
	flags.Duration("challenge-timeout", duo.DefaultChallengeTimeout, "How long to wait for a Duo push to be answered")

	flags.String("healthz-address", "", "The ip the HTTP healthz server listens on")
	flags.Int("healthz-port", 8080, "The port the HTTP healthz server listens on, 0 disables it")
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	dashToUs := strings.NewReplacer("-", "_")
	viper.SetConfigName("." + appName)           // name of config file (without extension)
	viper.AddConfigPath(".")                     // cwd is highest (preferred) config path
	viper.AddConfigPath("$HOME")                 // home directory as second search path
	viper.SetEnvPrefix(strings.ToUpper(appName)) // environment variable prefix
	viper.SetEnvKeyReplacer(dashToUs)            // convert environment variable keys from - to _
	viper.AutomaticEnv()                         // read in environment variables that match

	// Bind all cobra command flags to viper.
	RootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		viper.BindPFlag(f.Name, f)
	})

	log.Out = os.Stdout

	if viper.GetBool("json-log") {
		log.Formatter = &logrus.JSONFormatter{
			TimestampFormat: "2006-01-02T15:04:05.999Z07:00", // RFC3339 at millisecond precision
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "@timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		}
		log.Info("Enabling JSON logging")
	}

	log.Level = logrus.InfoLevel
	if viper.GetBool("debug") {
		log.Level = logrus.DebugLevel
		log.Debug("debugging enabled")
	}

	// Allows us to specify a config file via flag
	if cfgFile != "" {
		log.Debug("Using config from file: ", cfgFile)
		viper.SetConfigFile(cfgFile)
	}

	// If a configuration file is found, read it in.
	err := viper.ReadInConfig()
	if err != nil && cfgFile != "" {
		log.Warn("Error reading config", err)
	}
}

// requireKeys fails when any of the viper keys are unset.
func requireKeys(keys ...string) error {
	for _, v := range keys {
		if viper.GetString(v) == "" {
			return fmt.Errorf("'%s' must be specified", v)
		}
	}
	return nil
}

func challengeTimeout() time.Duration {
	return viper.GetDuration("challenge-timeout")
}
