// Command mockapi serves a fake classifier questions endpoint for local
// load test runs.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mentorpal/askload/internal/dataset"
	"github.com/mentorpal/askload/internal/logging"
	"github.com/mentorpal/askload/internal/mockapi"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("mockapi", pflag.ContinueOnError)
	flags.String("addr", ":8080", "Listen address")
	flags.String("mentors", "", "JSON file with the known mentor ids (default: built-in list)")
	flags.Bool("any-mentor", false, "Accept any mentor id")
	flags.Float64("error-rate", 0, "Fraction of requests answered with 500")
	flags.Float64("errors-field-rate", 0, "Fraction of answers carrying an errors field")
	flags.Duration("latency", 0, "Delay added to every answer")
	flags.Float64("rate-limit", 0, "Requests per second before answering 429 (0 disables)")
	flags.Int("burst", 10, "Rate limiter burst")
	flags.String("log-level", "info", "Log level")
	flags.String("log-format", logging.FormatAuto, "Log format: auto, console, json")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	v := viper.New()
	v.SetEnvPrefix("MOCKAPI")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(flags); err != nil {
		return err
	}

	log, err := logging.New(logging.Options{
		Level:  v.GetString("log-level"),
		Format: v.GetString("log-format"),
	})
	if err != nil {
		return err
	}
	defer log.Sync()

	var mentors []string
	switch {
	case v.GetBool("any-mentor"):
	case v.GetString("mentors") != "":
		ds, err := dataset.LoadStrings(v.GetString("mentors"))
		if err != nil {
			return fmt.Errorf("failed to load mentors: %w", err)
		}
		mentors = ds.Items()
	default:
		mentors = dataset.DefaultMentors().Items()
	}

	gin.SetMode(gin.ReleaseMode)
	r := mockapi.NewRouter(mockapi.Options{
		Mentors:         mentors,
		ErrorRate:       v.GetFloat64("error-rate"),
		ErrorsFieldRate: v.GetFloat64("errors-field-rate"),
		Latency:         v.GetDuration("latency"),
		RateLimit:       v.GetFloat64("rate-limit"),
		Burst:           v.GetInt("burst"),
		Logger:          log,
	})

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	log.Info("mock classifier running",
		zap.String("addr", srv.Addr),
		zap.String("path", mockapi.QuestionsPath),
		zap.Int("mentors", len(mentors)),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("listen error: %w", err)
	case <-quit:
	}
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}
