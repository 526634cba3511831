package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/blingmoon/simple-fsm-workflow/workflow"
	cli "github.com/urfave/cli/v3"
)

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate workflow configuration files",
		Action: func(ctx context.Context, command *cli.Command) error {
			paths, err := configPaths(command)
			if err != nil {
				return err
			}
			return runValidate(os.Stdout, paths)
		},
	}
}

// runValidate 每个文件单独加载, 全部检查完之后有失败的才返回错误
func runValidate(w io.Writer, paths []string) error {
	loader := workflow.NewDefaultConfigurationLoader()
	invalid := 0
	for _, path := range paths {
		definitions, err := loader.LoadFile(path)
		if err != nil {
			slog.Debug("load workflow configuration failed", slog.String("path", path), slog.Any("error", err))
			fmt.Fprintf(w, "%s\n    ❌ INVALID: %v\n", path, err)
			invalid++
			continue
		}
		fmt.Fprintf(w, "%s\n", path)
		for _, definition := range definitions {
			fmt.Fprintf(w, "    ✅ %s (entity: %s, steps: %d, transitions: %d)\n",
				definition.Name, definition.EntityClass, len(definition.Steps), len(definition.Transitions))
		}
	}
	fmt.Fprintf(w, "\nValidation Summary:\n")
	fmt.Fprintf(w, "  Total files: %d\n", len(paths))
	fmt.Fprintf(w, "  Invalid files: %d\n", invalid)
	if invalid > 0 {
		return fmt.Errorf("%d of %d configuration files are invalid", invalid, len(paths))
	}
	return nil
}
