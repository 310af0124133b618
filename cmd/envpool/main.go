package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"envpool/internal/app"
	"envpool/internal/config"
)

func main() {
	var (
		cfgPath string
		once    bool
		check   bool
	)
	flag.StringVar(&cfgPath, "config", "./envpool.yaml", "path to config (yaml or json)")
	flag.BoolVar(&once, "once", false, "run a single batch and exit, ignoring schedule.cron")
	flag.BoolVar(&check, "check", false, "validate the config and exit")
	flag.Parse()

	if check {
		if _, err := config.NewManager(cfgPath).Load(); err != nil {
			fmt.Fprintln(os.Stderr, "config invalid:", err)
			os.Exit(2)
		}
		fmt.Println("config ok")
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath, app.Options{Once: once})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		// Logging is already closed here.
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
