package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/thierryx96/RedisCache/internal/config"
	"github.com/thierryx96/RedisCache/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	redisAddr := flag.String("redis", "", "Redis address (overrides config)")
	sourcePath := flag.String("source", "", "source database path (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [args]\n\nFlags:\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprintln(flag.CommandLine.Output())
		reg := NewRegistry()
		registerCommands(reg)
		fmt.Fprint(flag.CommandLine.Output(), reg.HelpText())
	}
	flag.Parse()

	// Load config (TOML file with defaults)
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// CLI flags override config file values
	if *redisAddr != "" {
		cfg.Redis.Addr = *redisAddr
	}
	if *sourcePath != "" {
		cfg.Source.Path = *sourcePath
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}

	cfg.Source.Path = config.ExpandHome(cfg.Source.Path)

	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.Init(cfg.Logging.Level, cfg.Logging.Format)

	reg := NewRegistry()
	registerCommands(reg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, cfg, reg, flag.Args()))
}

func run(ctx context.Context, cfg *config.Config, reg *Registry, args []string) int {
	if len(args) == 0 || args[0] == "help" {
		fmt.Print(reg.HelpText())
		return 0
	}
	if _, ok := reg.Lookup(args[0]); !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], reg.HelpText())
		return 2
	}

	a, err := open(ctx, cfg, os.Stdout)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("close: %v", err)
		}
	}()

	if err := reg.Dispatch(ctx, a, args); err != nil {
		log.Printf("%s: %v", args[0], err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}
