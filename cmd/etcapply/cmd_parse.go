package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"etcapply/internal/fourelements"
	"etcapply/internal/params"
)

var parseCmd = &cobra.Command{
	Use:   "parse <file>",
	Short: "Extract the four elements (name, ID, phone, bank card) from a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runParse,
}

func runParse(cmd *cobra.Command, args []string) error {
	fe, err := fourelements.ParseFile(args[0])
	if err != nil {
		return err
	}

	fields := params.ApplyFourElements(params.Request{}, fe)
	t := newTable(cmd.OutOrStdout(), "element", "value", "field")
	for _, row := range []struct{ key, value, field string }{
		{fourelements.KeyName, fe.Name, params.KeyCardHolder},
		{fourelements.KeyIDCode, fe.IDCode, params.KeyIDCode},
		{fourelements.KeyPhone, fe.Phone, params.KeyBindBankPhone},
		{fourelements.KeyBankNo, fe.BankNo, params.KeyBindBankNo},
	} {
		field := ""
		if fields[row.field] != "" {
			field = row.field
		}
		t.AppendRow([]interface{}{row.key, row.value, field})
	}
	t.Render()

	if !fe.Complete() {
		fmt.Fprintln(cmd.OutOrStdout(), "incomplete: some elements were not found")
	}
	return nil
}
