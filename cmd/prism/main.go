package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/prismgw/prism/cmd/prism/commands"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "prism",
		Short: "Prism gateway CLI",
		Long: `Operational CLI for the Prism LLM gateway.
Runs the gateway itself and inspects routing and pricing offline.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load()
			return nil
		},
	}

	rootCmd.AddCommand(commands.NewServeCommand())
	rootCmd.AddCommand(commands.NewRoutesCommand())
	rootCmd.AddCommand(commands.NewPricingCommand())

	return rootCmd
}
