package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/blingmoon/simple-fsm-workflow/workflow"
	cli "github.com/urfave/cli/v3"
)

func NewCompileCommand() *cli.Command {
	return &cli.Command{
		Name:  "compile",
		Usage: "Print the compiled Go form of transition expressions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "workflow",
				Usage:    "Workflow name",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "transition",
				Usage: "Only compile the named transition",
			},
			&cli.StringFlag{
				Name:  "factory",
				Usage: "Expression used to access the factory in the generated code",
				Value: "factory",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			paths, err := configPaths(command)
			if err != nil {
				return err
			}
			return runCompile(os.Stdout, paths, command.String("workflow"), command.String("transition"), command.String("factory"))
		},
	}
}

func runCompile(w io.Writer, paths []string, workflowName, transitionName, factoryAccessor string) error {
	definitions, err := loadDefinitions(paths)
	if err != nil {
		return err
	}
	var definition *workflow.WorkflowDefinition
	for _, candidate := range definitions {
		if candidate.Name == workflowName {
			definition = candidate
			break
		}
	}
	if definition == nil {
		return fmt.Errorf("workflow %s not found", workflowName)
	}
	found := false
	for _, transition := range definition.OrderedTransitions() {
		if transitionName != "" && transition.Name != transitionName {
			continue
		}
		found = true
		fmt.Fprintf(w, "// %s.%s\n", definition.Name, transition.Name)
		for _, part := range []struct {
			name string
			expr configexpression.Expression
		}{
			{"preconditions", transition.PreConditions},
			{"conditions", transition.Conditions},
			{"preactions", transition.PreActions},
			{"actions", transition.Actions},
		} {
			if part.expr == nil {
				continue
			}
			fmt.Fprintf(w, "%s := %s\n", part.name, part.expr.Compile(factoryAccessor))
		}
		fmt.Fprintln(w)
	}
	if !found {
		return fmt.Errorf("workflow %s has no transition %s", workflowName, transitionName)
	}
	return nil
}

// loadDefinitions 任何一个文件加载失败都直接返回错误
func loadDefinitions(paths []string) ([]*workflow.WorkflowDefinition, error) {
	loader := workflow.NewDefaultConfigurationLoader()
	ret := make([]*workflow.WorkflowDefinition, 0)
	for _, path := range paths {
		definitions, err := loader.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load workflow configuration %s: %w", path, err)
		}
		ret = append(ret, definitions...)
	}
	return ret, nil
}
