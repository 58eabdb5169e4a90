package main

import (
	"context"
	"fmt"

	"github.com/effective-security/toolbind/assistants"
	"github.com/effective-security/toolbind/tools"
	"github.com/effective-security/toolbind/tools/numverify"
	"github.com/spf13/cobra"
)

const directPhoneNumber = "+1-555-123-4567"

type example struct {
	title  string
	prompt string
}

var defaultExamples = []example{
	{
		title:  "Basic Phone Number Validation",
		prompt: "Is +1-555-123-4567 a valid phone number?",
	},
	{
		title:  "Phone Number Information",
		prompt: "Can you tell me about the phone number +44 20 7946 0958?",
	},
	{
		title:  "Multiple Phone Numbers",
		prompt: "I have these phone numbers: +1-800-555-1234 and +33 1 42 68 53 00. Can you validate them and tell me which countries they're from?",
	},
}

func newChatCmd(a *app) *cobra.Command {
	var (
		prompts    []string
		skipDirect bool
		followUp   bool
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send prompts to the model and run the tool calls it produces",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, err := a.container.Registry()
			if err != nil {
				return err
			}
			assistant, err := a.container.Assistant()
			if err != nil {
				return err
			}

			list := defaultExamples
			if len(prompts) > 0 {
				list = nil
				for i, p := range prompts {
					list = append(list, example{title: fmt.Sprintf("Prompt %d", i+1), prompt: p})
				}
			}

			var opts []assistants.Option
			if followUp {
				opts = append(opts, assistants.WithFollowUp(true))
			}

			ctx, cancel := signalContext()
			defer cancel()

			if !skipDirect {
				a.runDirect(ctx, registry)
			}
			for i, ex := range list {
				if err := a.runExample(ctx, assistant, i+1, ex, opts...); err != nil {
					return err
				}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVarP(&prompts, "prompt", "p", nil, "prompt to send, replaces the built-in examples")
	flags.BoolVar(&skipDirect, "skip-direct", false, "skip the direct tool call")
	flags.BoolVar(&followUp, "follow-up", false, "send the tool results back to the model for a final answer")
	return cmd
}

func (a *app) runDirect(ctx context.Context, registry *tools.Registry) {
	fmt.Fprintln(a.stdout, "=== Testing Phone Number Tool Directly ===")
	res := registry.Invoke(ctx, tools.NewRequest(numverify.ToolName, map[string]any{
		"phoneNumber": directPhoneNumber,
	}))
	fmt.Fprintf(a.stdout, "Direct tool result: %s\n", res.Content())
}

func (a *app) runExample(ctx context.Context, assistant *assistants.Assistant, n int, ex example, opts ...assistants.Option) error {
	fmt.Fprintf(a.stdout, "\n=== Example %d: %s ===\n", n, ex.title)

	resp, err := assistant.Run(ctx, ex.prompt, opts...)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "AI Response: %s\n", resp.Content)
	for _, e := range resp.Executions {
		fmt.Fprintf(a.stdout, "Tool Call: %s(%s)\n", e.Call.FunctionCall.Name, e.Call.FunctionCall.Arguments)
		fmt.Fprintf(a.stdout, "Tool Result: %s\n", e.Result.Content())
	}
	return nil
}
