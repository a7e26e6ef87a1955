package debate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/prismgw/prism/internal/config"
	"github.com/prismgw/prism/internal/services/providers"
	"github.com/prismgw/prism/internal/services/registry"
	"github.com/prismgw/prism/internal/services/sse"
)

// genericStageTimeout bounds each challenger for the general and code
// profiles; video_ui carries its own configurable stage timeout.
const genericStageTimeout = 12 * time.Second

// Orchestrator fans out the challenger calls and assembles the synthesis
// prompt. Challenger failures and timeouts are silent: a challenger that
// produces nothing simply does not appear in the notes.
type Orchestrator struct {
	adapters map[registry.Provider]providers.Adapter
	cfg      config.DebateConfig
	logger   *zap.Logger
}

func NewOrchestrator(adapters map[registry.Provider]providers.Adapter, cfg config.DebateConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{adapters: adapters, cfg: cfg, logger: logger}
}

// Run executes the plan's challengers in parallel and returns their
// outputs in plan order, not completion order. A nil slice means zero
// challengers produced output and the caller should fall back to the
// normal single-provider path.
func (o *Orchestrator) Run(ctx context.Context, plan Plan, userQuery string) []Output {
	if len(plan.Challengers) == 0 {
		return nil
	}

	stageTimeout := genericStageTimeout
	if plan.Profile == ProfileVideoUI && o.cfg.VideoUIStageTimeout > 0 {
		stageTimeout = o.cfg.VideoUIStageTimeout
	}

	results := make([]string, len(plan.Challengers))
	g, groupCtx := errgroup.WithContext(ctx)
	for i, challenger := range plan.Challengers {
		g.Go(func() error {
			text, err := o.runChallenger(groupCtx, challenger, plan, userQuery, stageTimeout)
			if err != nil {
				// Timeouts and upstream failures count as "no output".
				o.logger.Debug("debate challenger produced no output",
					zap.String("role", challenger.Role),
					zap.String("tier", string(challenger.Tier)),
					zap.Error(err))
				return nil
			}
			results[i] = text
			return nil
		})
	}
	_ = g.Wait()

	outputs := make([]Output, 0, len(plan.Challengers))
	for i, challenger := range plan.Challengers {
		if strings.TrimSpace(results[i]) == "" {
			continue
		}
		outputs = append(outputs, Output{
			Role: challenger.Role,
			Tier: challenger.Tier,
			Text: results[i],
		})
	}
	if len(outputs) == 0 {
		return nil
	}
	return outputs
}

func (o *Orchestrator) runChallenger(ctx context.Context, challenger Challenger, plan Plan, userQuery string, stageTimeout time.Duration) (string, error) {
	entry, err := registry.Lookup(challenger.Tier)
	if err != nil {
		return "", err
	}
	adapter, ok := o.adapters[entry.Provider]
	if !ok {
		return "", fmt.Errorf("no adapter for provider %s", entry.Provider)
	}

	stageCtx, cancel := context.WithTimeout(ctx, stageTimeout)
	defer cancel()

	handle, err := adapter.CallStream(stageCtx, &providers.CallRequest{
		ModelID:   entry.ProviderModelID,
		BudgetCap: o.workerBudget(plan.Profile, entry.BudgetCap),
		Messages: []providers.Message{{
			Role:    "user",
			Content: challengerPrompt(challenger.Role, userQuery),
		}},
	})
	if err != nil {
		return "", err
	}

	return sse.CollectText(stageCtx, handle, plan.MaxChallengerChars)
}

// workerBudget caps the challenger's token budget below its tier default.
func (o *Orchestrator) workerBudget(profile Profile, tierCap int) int {
	var limit int
	switch profile {
	case ProfileGeneral:
		limit = o.cfg.WorkerMaxTokensGeneral
	case ProfileCode:
		limit = o.cfg.WorkerMaxTokensCode
	case ProfileVideoUI:
		limit = o.cfg.WorkerMaxTokensVideoUI
	}
	if limit > 0 && limit < tierCap {
		return limit
	}
	return tierCap
}

func challengerPrompt(role, userQuery string) string {
	return fmt.Sprintf(`You are the %s in an internal team debate about how to best
answer a user request. Critique the request from your role's perspective:
point out risks, gaps, better alternatives and anything the primary
responder is likely to miss. Be direct and concise.

User request:
%s`, role, userQuery)
}

// BuildSynthesisQuery composes the primary model's final prompt: the
// original query followed by the challenger notes in plan order.
func BuildSynthesisQuery(userQuery string, outputs []Output) string {
	var sb strings.Builder
	sb.WriteString(userQuery)
	sb.WriteString("\n\n## TEAM DEBATE NOTES\n")
	sb.WriteString("Internal critiques from your team. Weigh them, adopt what is\nuseful and answer the original request above.\n")
	for _, out := range outputs {
		sb.WriteString(fmt.Sprintf("\n### %s (%s)\n%s\n", out.Role, out.Tier, out.Text))
	}
	return sb.String()
}
