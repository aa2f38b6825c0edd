// Package cmd contains the spelhyllan CLI commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "spelhyllan",
	Short: "AI shop assistant for a board game store",
	Long: `Spelhyllan is a chat assistant for a board game web shop.

It answers customer questions over HTTP, searching the product
inventory with semantic and keyword search. The seed command builds
that inventory by scraping the category page and enriching the
listings with an LLM.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
