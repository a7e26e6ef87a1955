package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/prismgw/prism/internal/services/pricing"
	"github.com/prismgw/prism/internal/services/registry"
)

// NewPricingCommand prints the static pricing table the cost engine
// computes against.
func NewPricingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pricing",
		Short: "Inspect model pricing",
	}

	cmd.AddCommand(newPricingShowCommand())

	return cmd
}

func newPricingShowCommand() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show per-tier USD rates",
		RunE: func(cmd *cobra.Command, args []string) error {
			if outputJSON {
				type rateRow struct {
					Tier            string  `json:"tier"`
					Provider        string  `json:"provider"`
					InputPer1M      float64 `json:"input_per_1m"`
					OutputPer1M     float64 `json:"output_per_1m"`
					ReasoningPer1M  float64 `json:"reasoning_per_1m"`
					AsOfDate        string  `json:"as_of_date"`
					SourceRef       string  `json:"source_ref"`
					IsEstimated     bool    `json:"is_estimated"`
					ProviderModelID string  `json:"provider_model_id"`
				}
				rows := make([]rateRow, 0, len(registry.Tiers()))
				for _, tier := range registry.Tiers() {
					rate, ok := pricing.Rates(tier)
					if !ok {
						continue
					}
					entry := registry.MustLookup(tier)
					reasoning := rate.ReasoningRatePer1M
					if reasoning == 0 {
						reasoning = rate.OutputRatePer1M
					}
					rows = append(rows, rateRow{
						Tier:            string(tier),
						Provider:        string(entry.Provider),
						InputPer1M:      rate.InputRatePer1M,
						OutputPer1M:     rate.OutputRatePer1M,
						ReasoningPer1M:  reasoning,
						AsOfDate:        rate.AsOfDate,
						SourceRef:       rate.SourceRef,
						IsEstimated:     rate.IsEstimated,
						ProviderModelID: entry.ProviderModelID,
					})
				}
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(map[string]interface{}{
					"pricing_version": pricing.Version,
					"rates":           rows,
				})
			}

			fmt.Printf("Pricing version: %s\n\n", pricing.Version)
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIER\tPROVIDER\tMODEL\tIN/1M\tOUT/1M\tAS OF\tESTIMATED")
			fmt.Fprintln(w, "---\t---\t---\t---\t---\t---\t---")
			for _, tier := range registry.Tiers() {
				rate, ok := pricing.Rates(tier)
				if !ok {
					continue
				}
				entry := registry.MustLookup(tier)
				fmt.Fprintf(w, "%s\t%s\t%s\t$%.2f\t$%.2f\t%s\t%v\n",
					tier, entry.Provider, entry.ProviderModelID,
					rate.InputRatePer1M, rate.OutputRatePer1M,
					rate.AsOfDate, rate.IsEstimated)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	return cmd
}
