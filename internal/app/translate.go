package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"horse.fit/translationtower/internal/cli"
	"horse.fit/translationtower/internal/translation"
)

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	output := fs.String("output", "", "Write the response JSON to this file instead of stdout")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")

	path, code := parseFileArg(fs, args)
	if code >= 0 {
		return code
	}

	req, err := readRequestFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	cfg, logger, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	rt, err := newRuntime(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start translation runtime: %v\n", err)
		return 1
	}
	defer func() {
		if closeErr := rt.Close(); closeErr != nil {
			logger.Error().Err(closeErr).Msg("translation runtime shutdown failed")
		}
	}()

	requestID := rt.translator.NewRequestID()
	jobs, err := rt.translator.CreateJobs(requestID, req.Texts)
	if err != nil {
		var verr *translation.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintf(os.Stderr, "Invalid request: %v\n", verr)
			return 2
		}
		fmt.Fprintf(os.Stderr, "Failed to create translation jobs: %v\n", err)
		return 1
	}

	jobs, err = rt.translator.TranslateJobs(ctx, jobs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Translation failed: %v\n", err)
		return 1
	}

	if err := writeJSON(*output, translation.Response{Translations: translation.Results(jobs)}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write response: %v\n", err)
		return 1
	}

	if message := translation.FirstError(jobs); message != "" {
		fmt.Fprintf(os.Stderr, "Translation finished with errors: %s\n", message)
		return 1
	}
	return 0
}
