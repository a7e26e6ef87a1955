package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/routing"
	"github.com/prismgw/prism/internal/services/tokenizer"
)

// NewRoutesCommand inspects routing decisions offline, without any
// provider credentials or network access.
func NewRoutesCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "Inspect routing decisions",
	}

	cmd.AddCommand(newRoutesExplainCommand())

	return cmd
}

func newRoutesExplainCommand() *cobra.Command {
	var (
		platform      string
		sessionTokens int
		imageCount    int
		hasVideo      bool
		override      string
		outputJSON    bool
	)

	cmd := &cobra.Command{
		Use:   "explain <query>",
		Short: "Show how a query would be routed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

			estimator := tokenizer.NewEstimator()
			engine := routing.NewEngine(estimator, zap.NewNop(), false)

			images := make([]providers.ImageAttachment, imageCount)
			params := routing.Params{
				UserQuery:            query,
				CurrentSessionTokens: sessionTokens,
				Platform:             platform,
				Images:               images,
				HasVideoAssets:       hasVideo,
			}

			tier := routing.NormalizeOverride(override)
			if override != "" && override != "auto" && tier == "" {
				return fmt.Errorf("unrecognized override %q", override)
			}

			decision := engine.DetermineRoute(params, tier)

			if outputJSON {
				encoder := json.NewEncoder(os.Stdout)
				encoder.SetIndent("", "  ")
				return encoder.Encode(map[string]interface{}{
					"tier":              string(decision.ModelTier),
					"provider":          string(decision.Provider),
					"provider_model_id": decision.ProviderModelID,
					"budget_cap":        decision.BudgetCap,
					"rationale":         decision.Rationale,
					"complexity_score":  decision.ComplexityScore,
					"query_tokens":      estimator.Estimate(query),
				})
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Tier:\t%s\n", decision.ModelTier)
			fmt.Fprintf(w, "Provider:\t%s\n", decision.Provider)
			fmt.Fprintf(w, "Model ID:\t%s\n", decision.ProviderModelID)
			fmt.Fprintf(w, "Budget cap:\t%d\n", decision.BudgetCap)
			fmt.Fprintf(w, "Rationale:\t%s\n", decision.Rationale)
			fmt.Fprintf(w, "Complexity:\t%d\n", decision.ComplexityScore)
			fmt.Fprintf(w, "Query tokens:\t%d\n", estimator.Estimate(query))
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&platform, "platform", "web", "client platform (web|mobile)")
	cmd.Flags().IntVar(&sessionTokens, "session-tokens", 0, "running session token count")
	cmd.Flags().IntVar(&imageCount, "images", 0, "number of attached images")
	cmd.Flags().BoolVar(&hasVideo, "video", false, "request references video assets")
	cmd.Flags().StringVar(&override, "override", "", "manual model override")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output in JSON format")

	return cmd
}
