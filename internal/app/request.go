package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"horse.fit/translationtower/internal/client"
)

func runRequest(args []string) int {
	fs := flag.NewFlagSet("request", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	server := fs.String("server", client.DefaultBaseURL, "Base URL of a running translation server")
	output := fs.String("output", "", "Write the response JSON to this file instead of stdout")
	timeout := fs.Duration("timeout", client.DefaultTimeout, "Request timeout")

	path, code := parseFileArg(fs, args)
	if code >= 0 {
		return code
	}

	req, err := readRequestFile(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := client.New(client.Options{BaseURL: *server, Timeout: *timeout})
	resp, err := c.Translate(ctx, *req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request to %s failed: %v\n", c.BaseURL(), err)
		return 1
	}

	if err := writeJSON(*output, resp); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write response: %v\n", err)
		return 1
	}
	return 0
}
