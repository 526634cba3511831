package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/blingmoon/simple-fsm-workflow/configexpression"
	"github.com/blingmoon/simple-fsm-workflow/workflow"
	cli "github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func NewDumpCommand() *cli.Command {
	return &cli.Command{
		Name:  "dump",
		Usage: "Print the normalized workflow definitions",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "workflow",
				Usage: "Only dump the named workflow",
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			paths, err := configPaths(command)
			if err != nil {
				return err
			}
			return runDump(os.Stdout, paths, command.String("workflow"))
		},
	}
}

type stepDump struct {
	Name               string   `yaml:"name"`
	Label              string   `yaml:"label,omitempty"`
	Order              int      `yaml:"order"`
	IsFinal            bool     `yaml:"is_final,omitempty"`
	AllowedTransitions []string `yaml:"allowed_transitions,omitempty"`
}

type transitionDump struct {
	Name          string         `yaml:"name"`
	Label         string         `yaml:"label,omitempty"`
	StepTo        string         `yaml:"step_to"`
	IsStart       bool           `yaml:"is_start,omitempty"`
	PreConditions map[string]any `yaml:"preconditions,omitempty"`
	Conditions    map[string]any `yaml:"conditions,omitempty"`
	PreActions    map[string]any `yaml:"preactions,omitempty"`
	Actions       map[string]any `yaml:"actions,omitempty"`
}

type workflowDump struct {
	Name        string            `yaml:"name"`
	Label       string            `yaml:"label,omitempty"`
	Entity      string            `yaml:"entity"`
	StartStep   string            `yaml:"start_step,omitempty"`
	Active      bool              `yaml:"active"`
	Order       int               `yaml:"order"`
	Attributes  map[string]string `yaml:"attributes,omitempty"`
	Steps       []*stepDump       `yaml:"steps"`
	Transitions []*transitionDump `yaml:"transitions"`
}

func runDump(w io.Writer, paths []string, name string) error {
	definitions, err := loadDefinitions(paths)
	if err != nil {
		return err
	}
	dumps := make([]*workflowDump, 0)
	for _, definition := range definitions {
		if name != "" && definition.Name != name {
			continue
		}
		dumps = append(dumps, newWorkflowDump(definition))
	}
	if name != "" && len(dumps) == 0 {
		return fmt.Errorf("workflow %s not found", name)
	}
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	defer encoder.Close()
	return encoder.Encode(map[string]any{"workflows": dumps})
}

func newWorkflowDump(definition *workflow.WorkflowDefinition) *workflowDump {
	dump := &workflowDump{
		Name:      definition.Name,
		Label:     definition.Label,
		Entity:    definition.EntityClass,
		StartStep: definition.StartStepName,
		Active:    definition.Active,
		Order:     definition.Order,
	}
	if len(definition.Attributes) > 0 {
		dump.Attributes = make(map[string]string, len(definition.Attributes))
		for attributeName, attribute := range definition.Attributes {
			dump.Attributes[attributeName] = attribute.Type
		}
	}
	for _, step := range definition.OrderedSteps() {
		dump.Steps = append(dump.Steps, &stepDump{
			Name:               step.Name,
			Label:              step.Label,
			Order:              step.Order,
			IsFinal:            step.IsFinal,
			AllowedTransitions: step.AllowedTransitions,
		})
	}
	for _, transition := range definition.OrderedTransitions() {
		dump.Transitions = append(dump.Transitions, &transitionDump{
			Name:          transition.Name,
			Label:         transition.Label,
			StepTo:        transition.StepTo,
			IsStart:       transition.IsStart,
			PreConditions: toArray(transition.PreConditions),
			Conditions:    toArray(transition.Conditions),
			PreActions:    toArray(transition.PreActions),
			Actions:       toArray(transition.Actions),
		})
	}
	return dump
}

func toArray(expr configexpression.Expression) map[string]any {
	if expr == nil {
		return nil
	}
	return expr.ToArray()
}
