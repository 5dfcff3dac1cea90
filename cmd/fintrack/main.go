package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"fintrack/internal/cli"
	"fintrack/internal/log"
)

const usage = `Usage: fintrack [-env FILE] [-json] <command> [flags]

Commands:
  login [-email EMAIL]                 sign in (password is prompted)
  logout                               sign out and forget the stored session
  whoami                               show the signed-in user
  register -first F -last L -email E   create an account (password is prompted)
  categories [add|edit|delete]         list or change categories
  transactions [add|edit|delete]       list (with filters) or change transactions
  budget [set AMOUNT]                  show or set this month's budget
  summary                              this month from the loaded transactions
  dashboard [-month YYYY-MM]           backend statistics for a month
  export [-month YYYY-MM] [-dry-run]   write a month to the configured spreadsheet

Signed out, every read shows sample data.
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("fintrack", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprint(stderr, usage) }
	envFile := fs.String("env", ".env", "environment file to load if present")
	jsonOut := fs.Bool("json", false, "print results as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}

	if err := cli.LoadEnvFile(*envFile); err != nil {
		return err
	}
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "error"
	}
	logger := cli.SetupLogger(level, stderr)

	cfg, err := cli.LoadAndValidateConfig(logger)
	if err != nil {
		return err
	}
	store, err := cli.OpenStore(cfg, logger)
	if err != nil {
		return err
	}
	app, err := cli.NewApp(cfg, logger, store, cli.WithSource("fintrack"))
	if err != nil {
		_ = store.Close()
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Warn("Closing client failed", log.FieldError, err.Error())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	app.Start(ctx, false)

	c := &command{
		app:    app,
		prompt: newPrompter(stdin, stdout),
		stdout: stdout,
		stderr: stderr,
		json:   *jsonOut,
	}
	defer c.flushNotifications()
	return c.dispatch(ctx, fs.Arg(0), fs.Args()[1:])
}
