package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/ask"
	"github.com/mentorpal/askload/internal/load/config"
	"github.com/mentorpal/askload/internal/load/engine"
	"github.com/mentorpal/askload/internal/load/metrics"
	"github.com/mentorpal/askload/internal/load/output"
	"github.com/mentorpal/askload/internal/load/report"
)

func newRunCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load test against the classifier API",
		Long: `Run a load test from a configuration file or from flags.

Config file mode:
  askload run --config benchmark/askload.yaml

Quick flag mode (single scenario):
  askload run --api-url "https://api.mentorpal.org/classifier/questions/?referer=load-test" \
    --questions benchmark/cf-questions.json \
    --executor ramping-vus --stages "30s:10,2m:10,30s:0"

Direct URL mode:
  askload run --urls urls.json --executor constant-arrival-rate --rate 50 --duration 1m --max-vus 100

Flags given together with --config override the file's target and seed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLoadTest(cmd, v)
		},
	}

	f := cmd.Flags()
	f.StringP("config", "c", "", "Test configuration file (YAML or JSON)")
	f.String("name", "askload", "Test name in flag mode")

	f.String("variant", "", "Iteration variant: mentor-question or direct-url")
	f.String("api-url", "", "Classifier questions endpoint, e.g. https://api.mentorpal.org/classifier/questions/?referer=load-test")
	f.String("questions", "", "JSON file with an array of questions")
	f.String("mentors-file", "", "JSON file with an array of mentor ids (default: built-in list)")
	f.String("urls", "", "JSON file with an array of complete request URLs")

	f.String("executor", "", "Executor: "+strings.Join(executorNames(), ", "))
	f.Int("vus", 0, "Number of virtual users")
	f.String("duration", "", "Test duration (e.g. 30s, 5m)")
	f.Int64("iterations", 0, "Iterations for per-vu-iterations and shared-iterations")
	f.String("stages", "", "Stages 'duration:target,...' for ramping executors")
	f.Float64("rate", 0, "Iterations per second for arrival-rate executors")
	f.Int("max-vus", 0, "Maximum VUs for arrival-rate executors")
	f.Int("pre-allocated-vus", 0, "Pre-allocated VUs for arrival-rate executors")
	f.Duration("timeout", 30*time.Second, "HTTP request timeout")
	f.Uint64("seed", 0, "Seed the per-VU random sources for a reproducible run")

	f.StringP("output", "o", "", "Report file: .json, .html, or a base name for both")
	f.Bool("json", false, "Write the JSON result (to stdout without --output)")
	f.Bool("html", false, "Write an HTML report")
	f.BoolP("quiet", "q", false, "Print only PASSED or FAILED")
	f.String("metrics-addr", "", "Serve Prometheus metrics on this address during the run, e.g. :9090")

	return cmd
}

func runLoadTest(cmd *cobra.Command, v *viper.Viper) error {
	logger, err := newLogger(v)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cfg, err := buildConfig(v)
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

	opts := []engine.Option{engine.WithLogger(logger)}
	if addr := v.GetString("metrics-addr"); addr != "" {
		prom := metrics.NewProm()
		engCfg := metrics.DefaultEngineConfig()
		engCfg.Prom = prom
		opts = append(opts, engine.WithMetrics(metrics.NewEngineWithConfig(engCfg)))

		shutdown, err := serveMetrics(addr, prom.Handler(), logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	eng, err := engine.NewEngine(cfg, script, opts...)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	jsonToStdout := v.GetBool("json") && v.GetString("output") == ""
	console := output.NewConsoleOutput(output.ConsoleOutputConfig{
		TestName:     cfg.Name,
		ExecutorType: displayExecutor(cfg),
		Writer:       stdout,
		Quiet:        v.GetBool("quiet") || jsonToStdout,
	})
	console.PrintHeader()

	result, runErr := runWithProgress(cmd.Context(), eng, console, targetVUs(cfg))
	if result == nil {
		return runErr
	}
	if runErr != nil {
		logger.Error("run failed", zap.Error(runErr))
	}

	if jsonToStdout {
		if err := report.WriteJSON(stdout, result); err != nil {
			return err
		}
	} else {
		console.PrintSummary(result)
	}
	if err := writeReports(stdout, result, v); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if !result.Passed {
		return ErrTestFailed
	}
	return nil
}

// runWithProgress runs eng while refreshing console. SIGINT or SIGTERM stops
// the run gracefully.
func runWithProgress(ctx context.Context, eng *engine.Engine, console *output.ConsoleOutput, targetVUs int) (*engine.TestResult, error) {
	sigCtx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	stopWatch := output.StartWatch(ctx, console, eng, targetVUs, time.Second)
	defer stopWatch()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-sigCtx.Done():
			eng.Logger().Warn("stopping test")
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = eng.Stop(stopCtx)
		case <-done:
		}
	}()

	return eng.Run(ctx)
}

// serveMetrics starts a Prometheus endpoint at addr/metrics.
func serveMetrics(addr string, handler http.Handler, logger *zap.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on metrics address: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", handler)
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

// writeReports writes the JSON and HTML files --output, --json and --html
// ask for. An --output without a known extension gets both.
func writeReports(stdout io.Writer, result *engine.TestResult, v *viper.Viper) error {
	out := v.GetString("output")
	wantJSON := v.GetBool("json")
	wantHTML := v.GetBool("html")

	var paths []string
	switch ext := strings.ToLower(filepath.Ext(out)); {
	case out == "":
		if wantHTML {
			paths = append(paths, report.DefaultPath(result.Name, "html", time.Now()))
		}
	case ext == ".json" || ext == ".html":
		paths = append(paths, out)
	default:
		paths = append(paths, out+".json", out+".html")
	}

	for _, p := range paths {
		var err error
		if strings.HasSuffix(p, ".html") {
			err = report.SaveHTML(result, p)
		} else {
			err = report.SaveJSON(result, p)
		}
		if err != nil {
			return err
		}
		if !wantJSON || out != "" {
			fmt.Fprintf(stdout, "Report: %s\n", p)
		}
	}
	return nil
}

// buildConfig loads --config, or assembles a single-scenario config from
// flags.
func buildConfig(v *viper.Viper) (*config.TestConfig, error) {
	var cfg *config.TestConfig
	if path := v.GetString("config"); path != "" {
		loaded, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		scenario, err := scenarioFromFlags(v)
		if err != nil {
			return nil, err
		}
		cfg = &config.TestConfig{
			Name:      v.GetString("name"),
			Scenarios: map[string]*config.ScenarioConfig{"ask": scenario},
		}
		cfg.Settings.Timeout = config.Duration(v.GetDuration("timeout"))
	}

	overrideTarget(&cfg.Target, v)
	if v.IsSet("seed") {
		if cfg.Options == nil {
			cfg.Options = &config.ExecutionOptions{}
		}
		seed := v.GetUint64("seed")
		cfg.Options.Seed = &seed
	}
	return cfg, nil
}

func overrideTarget(t *config.TargetConfig, v *viper.Viper) {
	set := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}
	set("variant", &t.Variant)
	set("api-url", &t.APIURL)
	set("questions", &t.Questions)
	set("mentors-file", &t.MentorsFile)
	set("urls", &t.URLs)
	if v.IsSet("mentors-file") {
		t.Mentors = nil
	}
}

func scenarioFromFlags(v *viper.Viper) (*config.ScenarioConfig, error) {
	sc := &config.ScenarioConfig{
		Executor:        v.GetString("executor"),
		VUs:             v.GetInt("vus"),
		Duration:        v.GetString("duration"),
		Iterations:      v.GetInt64("iterations"),
		Rate:            v.GetFloat64("rate"),
		MaxVUs:          v.GetInt("max-vus"),
		PreAllocatedVUs: v.GetInt("pre-allocated-vus"),
	}

	if stages := v.GetString("stages"); stages != "" {
		parsed, err := parseStages(stages)
		if err != nil {
			return nil, fmt.Errorf("invalid stages format: %w", err)
		}
		sc.Stages = parsed
	}

	if sc.Executor == "" {
		switch {
		case len(sc.Stages) > 0 && sc.Rate > 0:
			sc.Executor = "ramping-arrival-rate"
		case len(sc.Stages) > 0:
			sc.Executor = "ramping-vus"
		case sc.Rate > 0:
			sc.Executor = "constant-arrival-rate"
		case sc.Iterations > 0:
			sc.Executor = "shared-iterations"
		default:
			sc.Executor = "constant-vus"
		}
	}

	switch sc.Executor {
	case "constant-vus":
		if sc.VUs == 0 {
			sc.VUs = 10
		}
		if sc.Duration == "" {
			sc.Duration = "30s"
		}
	case "constant-arrival-rate":
		if sc.Duration == "" {
			sc.Duration = "30s"
		}
	}
	return sc, nil
}

// parseStages parses "30s:10,2m:10,30s:0".
func parseStages(s string) ([]config.StageConfig, error) {
	var stages []config.StageConfig
	for i, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		idx := strings.LastIndex(part, ":")
		if idx == -1 {
			return nil, fmt.Errorf("stage %d: expected 'duration:target' format, got '%s'", i+1, part)
		}
		duration, targetStr := part[:idx], part[idx+1:]

		if _, err := config.ParseDurationString(duration); err != nil {
			return nil, fmt.Errorf("stage %d: invalid duration '%s': %w", i+1, duration, err)
		}
		target, err := strconv.Atoi(targetStr)
		if err != nil {
			return nil, fmt.Errorf("stage %d: invalid target '%s': %w", i+1, targetStr, err)
		}

		stages = append(stages, config.StageConfig{
			Duration: duration,
			Target:   target,
			Name:     fmt.Sprintf("stage-%d", i+1),
		})
	}
	if len(stages) == 0 {
		return nil, fmt.Errorf("at least one stage is required")
	}
	return stages, nil
}

func displayExecutor(cfg *config.TestConfig) string {
	if len(cfg.Scenarios) != 1 {
		return fmt.Sprintf("%d scenarios", len(cfg.Scenarios))
	}
	for _, sc := range cfg.Scenarios {
		return sc.Executor
	}
	return ""
}

// targetVUs is the largest VU count any scenario may reach.
func targetVUs(cfg *config.TestConfig) int {
	n := 0
	for _, sc := range cfg.Scenarios {
		n = max(n, sc.VUs, sc.MaxVUs)
		for _, st := range sc.Stages {
			if sc.MaxVUs == 0 {
				n = max(n, st.Target)
			}
		}
	}
	return n
}
