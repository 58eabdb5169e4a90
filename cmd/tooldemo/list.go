package main

import (
	"github.com/effective-security/toolbind/pkg/schema"
	"github.com/spf13/cobra"
)

type toolInfo struct {
	Name        string         `json:"name" yaml:"name" toml:"name"`
	Description string         `json:"description" yaml:"description" toml:"description"`
	Parameters  map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty" toml:"parameters,omitempty"`
}

func newListCmd(a *app) *cobra.Command {
	var withSchema bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the registered tools",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			registry, err := a.container.Registry()
			if err != nil {
				return err
			}

			var list []toolInfo
			for _, t := range registry.Tools() {
				info := toolInfo{
					Name:        t.Name(),
					Description: t.Description(),
				}
				if withSchema {
					info.Parameters = schema.ToMap(t.Parameters())
				}
				list = append(list, info)
			}
			return a.print(list)
		},
	}
	cmd.Flags().BoolVar(&withSchema, "schema", false, "include the parameters schema")
	return cmd
}
