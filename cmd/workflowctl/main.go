package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

func main() {
	loadEnvFile(".env")

	cmd := &cli.Command{
		Name:                  "workflowctl",
		Usage:                 "Inspect and validate workflow configuration files",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Workflow configuration files (yaml or json)",
				Sources: cli.EnvVars("WORKFLOW_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			setupLogger(command.String("log-level"))
			return ctx, nil
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
			NewDumpCommand(),
			NewCompileCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadEnvFile(file string) {
	if _, err := os.Stat(file); err != nil {
		return
	}
	if err := godotenv.Load(file); err != nil {
		slog.Warn(fmt.Sprintf("workflowctl: failed to load %s: %v", file, err))
	}
}

func setupLogger(logLevel string) {
	var level slog.Level
	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// configPaths --config 和位置参数都可以指定配置文件
func configPaths(command *cli.Command) ([]string, error) {
	paths := append([]string{}, command.StringSlice("config")...)
	paths = append(paths, command.Args().Slice()...)
	if len(paths) == 0 {
		return nil, fmt.Errorf("no workflow configuration file given, use --config or WORKFLOW_CONFIG")
	}
	return paths, nil
}
