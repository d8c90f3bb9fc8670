package main

import (
	"github.com/spf13/cobra"
)

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List configured connection endpoints (passwords masked)",
	RunE:  runEndpoints,
}

func runEndpoints(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	t := newTable(cmd.OutOrStdout(), "name", "type", "address", "username", "password", "database")
	for _, ep := range cfg.Endpoints {
		t.AppendRow([]interface{}{ep.Name, ep.Type, ep.Address, ep.Username, ep.MaskedPassword(), ep.Database})
	}
	t.Render()
	return nil
}
