package main

import (
	"github.com/cockroachdb/errors"
	"github.com/effective-security/toolbind/tools"
	"github.com/spf13/cobra"
)

func newInvokeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "invoke <tool> [json-arguments]",
		Short: "Invoke a tool directly",
		Example: `  tooldemo invoke multiply '{"a": 6, "b": 7}'
  tooldemo invoke lookupPhoneNumber '{"phoneNumber": "+14158586273"}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			registry, err := a.container.Registry()
			if err != nil {
				return err
			}

			input := ""
			if len(args) > 1 {
				input = args[1]
			}

			ctx, cancel := signalContext()
			defer cancel()

			res := registry.Invoke(ctx, tools.NewRawRequest(args[0], input))
			if err := a.print(res); err != nil {
				return err
			}
			if !res.OK() {
				return errors.New(res.Content())
			}
			return nil
		},
	}
}
