package cli

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/ask"
	"github.com/mentorpal/askload/internal/load/config"
	"github.com/mentorpal/askload/internal/load/engine"
	"github.com/mentorpal/askload/internal/load/executor"
)

func newValidateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a test configuration and its datasets without sending requests",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return validateConfig(cmd.OutOrStdout(), args[0])
		},
	}
}

func validateConfig(w io.Writer, path string) error {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return err
	}
	config.ApplyDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	script, err := ask.FromConfig(cfg.Target)
	if err != nil {
		return err
	}

	eng, err := engine.NewEngine(cfg, script, engine.WithLogger(zap.NewNop()))
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "Configuration is valid: %s\n\n", cfg.Name)
	fmt.Fprintf(w, "Variant:   %s\n", cfg.Target.Variant)
	switch s := script.(type) {
	case *ask.MentorQuestion:
		fmt.Fprintf(w, "API URL:   %s\n", s.APIURL)
		fmt.Fprintf(w, "Questions: %d\n", s.Questions.Len())
		fmt.Fprintf(w, "Mentors:   %d (%s)\n", s.Mentors.Len(), s.Mentors.Name())
	case *ask.DirectURL:
		fmt.Fprintf(w, "URLs:      %d\n", s.URLs.Len())
	}

	names := make([]string, 0, len(cfg.Scenarios))
	for name := range cfg.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Fprintln(w, "\nScenarios:")
	for _, name := range names {
		sc := cfg.Scenarios[name]
		desc := executor.GetDescription(executor.Type(sc.Executor))
		fmt.Fprintf(w, "  %s: %s\n", name, desc.Name)
		fmt.Fprintf(w, "    %s\n", desc.Description)
	}

	if !cfg.Thresholds.IsEmpty() {
		fmt.Fprintln(w, "\nThresholds:")
		t := cfg.Thresholds
		for _, group := range []struct {
			metric string
			exprs  []string
		}{
			{"http_req_duration", t.HTTPReqDuration},
			{"http_req_failed", t.HTTPReqFailed},
			{"http_reqs", t.HTTPReqs},
			{"checks", t.Checks},
			{"iterations", t.Iterations},
		} {
			for _, expr := range group.exprs {
				fmt.Fprintf(w, "  %s: %s\n", group.metric, expr)
			}
		}
	}

	fmt.Fprintf(w, "\nEstimated duration: %s\n", eng.EstimatedDuration())
	return nil
}

func executorNames() []string {
	types := executor.GetSupportedExecutors()
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = string(t)
	}
	return names
}
