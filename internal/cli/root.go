// Package cli implements the askload command line.
package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/logging"
)

var version = "0.1.0"

// EnvPrefix prefixes the environment variable of every flag:
// --api-url can be set as ASKLOAD_API_URL.
const EnvPrefix = "ASKLOAD"

// ErrTestFailed is returned when a run completes with failed thresholds.
var ErrTestFailed = errors.New("test failed")

// NewRootCmd builds the command tree. Every flag falls back to its
// ASKLOAD_* environment variable, which --env-file may populate.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:     "askload",
		Short:   "Load test the mentor question classifier API",
		Version: version,
		Long: `askload sends classifier questions to the mentor API from many virtual users
and reports latency, checks and threshold results.

Each iteration asks a random mentor a random question:
  GET <apiUrl>&mentor=<id>&query=<question>
and checks that the answer is a 200 with no "errors" field.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if envFile, _ := cmd.Flags().GetString("env-file"); envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load env file: %w", err)
				}
			}
			if err := v.BindPFlags(cmd.Flags()); err != nil {
				return err
			}
			return v.BindPFlags(cmd.InheritedFlags())
		},
	}

	root.PersistentFlags().String("env-file", "", "Load environment variables from a dotenv file")
	root.PersistentFlags().String("log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().String("log-format", logging.FormatAuto, "Log format: auto, console, json")

	root.AddCommand(newRunCmd(v))
	root.AddCommand(newValidateCmd(v))
	root.AddCommand(newURLsCmd(v))
	return root
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func newLogger(v *viper.Viper) (*zap.Logger, error) {
	return logging.New(logging.Options{
		Level:  v.GetString("log-level"),
		Format: v.GetString("log-format"),
	})
}
