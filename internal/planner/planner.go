// Package planner produces deterministic, budget-respecting context plans:
// which resources (full, summarized, or chunked) accompany the artefact into
// one LLM call for a given model.
package planner

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"inkwright/internal/token"
	"inkwright/internal/types"
)

// Exclusion reasons recorded in the plan.
const (
	ReasonBudgetExceeded    = "budget_exceeded"
	ReasonNoRemainingBudget = "no_remaining_budget"
)

// InclusionMode says how a resource's text made it into the plan.
type InclusionMode string

const (
	ModeFull    InclusionMode = "full"
	ModeSummary InclusionMode = "summary"
	ModeChunks  InclusionMode = "chunks"
)

// Inclusion is one selected fragment, in plan order.
type Inclusion struct {
	ResourceID string                 `json:"resource_id"`
	Label      string                 `json:"label"`
	Category   types.ResourceCategory `json:"category"`
	Mode       InclusionMode          `json:"mode"`
	Tokens     int                    `json:"tokens"`
	ChunkCount int                    `json:"chunk_count,omitempty"`

	// Text is the actual fragment sent to the model. It is excluded from
	// audit snapshots, which record references and token costs only.
	Text string `json:"-"`
}

// Exclusion records a resource left out of the plan and why.
type Exclusion struct {
	ResourceID string `json:"resource_id"`
	Label      string `json:"label"`
	Reason     string `json:"reason"`
}

// Plan is the concrete set of text fragments and token costs selected for
// one LLM call. Reproducible from the same (resources, artefact, model).
type Plan struct {
	ModelID        string      `json:"model_id"`
	Budget         int         `json:"budget"`
	ArtefactTokens int         `json:"artefact_tokens"`
	IncludedTokens int         `json:"included_tokens"`
	Inclusions     []Inclusion `json:"inclusions"`
	Exclusions     []Exclusion `json:"exclusions"`

	artefactContent string
}

// Remaining returns unused budget after the artefact and all inclusions.
func (p *Plan) Remaining() int {
	return p.Budget - p.ArtefactTokens - p.IncludedTokens
}

// Render builds the context block for the prompt: one labelled markdown
// section per inclusion, in plan order.
func (p *Plan) Render() string {
	var b strings.Builder
	for _, inc := range p.Inclusions {
		label := inc.Label
		switch inc.Mode {
		case ModeSummary:
			label += " (summary)"
		case ModeChunks:
			label += " (partial)"
		}
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", label, inc.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}

// ArtefactContent returns the artefact text reserved by this plan.
func (p *Plan) ArtefactContent() string {
	return p.artefactContent
}

// Request carries the immutable snapshot a single plan is computed from.
// The orchestrator takes the snapshot at pass start; the planner never
// reads live state.
type Request struct {
	ModelID         string
	ArtefactContent string

	// Resources is the active-resource snapshot. Order does not matter;
	// the planner sorts by category bucket then ascending ID.
	Resources []types.Resource

	// Summaries maps resource ID to a precomputed short summary, supplied
	// by an external collaborator.
	Summaries map[string]string

	// Categories optionally restricts planning to the given buckets (the
	// fact checker plans over source-category resources only). Empty
	// means all categories.
	Categories []types.ResourceCategory
}

// ChunkProvider supplies ordered chunks for a resource, creating them
// lazily on first use.
type ChunkProvider interface {
	ChunksFor(ctx context.Context, res *types.Resource, modelID string) ([]types.ResourceChunk, error)
}

// Planner computes context plans against a token cache and model registry.
type Planner struct {
	tokens           *token.Cache
	chunks           ChunkProvider
	logger           *zap.Logger
	reservedOverhead int
	summaryCeiling   int
}

// Config tunes planner budgets.
type Config struct {
	// ReservedOverhead covers the system prompt skeleton.
	ReservedOverhead int
	// SummaryTokenCeiling caps the summary fallback mode.
	SummaryTokenCeiling int
}

// DefaultConfig returns the standard planner budgets.
func DefaultConfig() Config {
	return Config{
		ReservedOverhead:    2000,
		SummaryTokenCeiling: 512,
	}
}

// New creates a Planner.
func New(tokens *token.Cache, chunks ChunkProvider, cfg Config, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReservedOverhead == 0 && cfg.SummaryTokenCeiling == 0 {
		cfg = DefaultConfig()
	}
	return &Planner{
		tokens:           tokens,
		chunks:           chunks,
		logger:           logger.Named("planner"),
		reservedOverhead: cfg.ReservedOverhead,
		summaryCeiling:   cfg.SummaryTokenCeiling,
	}
}

// Plan runs the deterministic greedy allocation:
//
//  1. budget = max_input - max_output - reserved_overhead
//  2. the artefact is reserved in full, or planning fails
//  3. buckets notes → source → corpus → other, ascending ID within a bucket
//  4. per resource: full text, else summary (≤ ceiling), else a prefix of
//     ordered chunks, else excluded
//  5. once the budget is exhausted all further resources are excluded
func (p *Planner) Plan(ctx context.Context, req Request) (*Plan, error) {
	maxIn, err := p.tokens.MaxInputTokens(req.ModelID)
	if err != nil {
		return nil, err
	}
	maxOut, err := p.tokens.MaxOutputTokens(req.ModelID)
	if err != nil {
		return nil, err
	}

	budget := maxIn - maxOut - p.reservedOverhead
	if budget <= 0 {
		return nil, &types.ConfigError{
			ModelID: req.ModelID,
			Detail:  fmt.Sprintf("context window too small: budget %d after output and overhead reservations", budget),
		}
	}

	artefactTokens, err := p.tokens.Count(ctx, req.ArtefactContent, req.ModelID)
	if err != nil {
		return nil, err
	}
	// The artefact is the author's own document: if it alone exceeds the
	// budget the plan cannot proceed, and silently truncating it is worse
	// than failing.
	if artefactTokens > budget {
		return nil, &types.PlanningError{
			ModelID:        req.ModelID,
			ArtefactTokens: artefactTokens,
			Budget:         budget,
		}
	}

	plan := &Plan{
		ModelID:         req.ModelID,
		Budget:          budget,
		ArtefactTokens:  artefactTokens,
		artefactContent: req.ArtefactContent,
	}
	remaining := budget - artefactTokens

	resources := filterCategories(req.Resources, req.Categories)
	sort.SliceStable(resources, func(i, j int) bool {
		pi, pj := resources[i].Category.Priority(), resources[j].Category.Priority()
		if pi != pj {
			return pi < pj
		}
		return resources[i].ID < resources[j].ID
	})

	for _, res := range resources {
		if remaining <= 0 {
			plan.Exclusions = append(plan.Exclusions, Exclusion{
				ResourceID: res.ID, Label: res.Label, Reason: ReasonNoRemainingBudget,
			})
			continue
		}

		inc, exc, used, err := p.placeResource(ctx, &res, req, remaining, maxIn)
		if err != nil {
			return nil, err
		}
		if inc != nil {
			plan.Inclusions = append(plan.Inclusions, *inc)
			plan.IncludedTokens += used
			remaining -= used
		} else {
			plan.Exclusions = append(plan.Exclusions, *exc)
		}
	}

	p.logger.Debug("context plan built",
		zap.String("model", req.ModelID),
		zap.Int("budget", budget),
		zap.Int("artefact_tokens", artefactTokens),
		zap.Int("included_tokens", plan.IncludedTokens),
		zap.Int("included", len(plan.Inclusions)),
		zap.Int("excluded", len(plan.Exclusions)))
	return plan, nil
}

// placeResource tries the inclusion modes in order for one resource.
func (p *Planner) placeResource(ctx context.Context, res *types.Resource, req Request, remaining, maxIn int) (*Inclusion, *Exclusion, int, error) {
	total, err := p.tokens.CountResource(ctx, res.ID, res.Text, req.ModelID)
	if err != nil {
		return nil, nil, 0, err
	}

	// An oversized resource (larger than the model's whole input window)
	// is never attempted in full.
	oversized := total > maxIn

	if !oversized && total <= remaining {
		return &Inclusion{
			ResourceID: res.ID,
			Label:      res.Label,
			Category:   res.Category,
			Mode:       ModeFull,
			Tokens:     total,
			Text:       res.Text,
		}, nil, total, nil
	}

	if summary, ok := req.Summaries[res.ID]; ok && summary != "" {
		sumTokens, err := p.tokens.Count(ctx, summary, req.ModelID)
		if err != nil {
			return nil, nil, 0, err
		}
		if sumTokens <= p.summaryCeiling && sumTokens <= remaining {
			return &Inclusion{
				ResourceID: res.ID,
				Label:      res.Label,
				Category:   res.Category,
				Mode:       ModeSummary,
				Tokens:     sumTokens,
				Text:       summary,
			}, nil, sumTokens, nil
		}
	}

	chunks, err := p.chunks.ChunksFor(ctx, res, req.ModelID)
	if err != nil {
		return nil, nil, 0, err
	}
	var parts []string
	used := 0
	for _, c := range chunks {
		if used+c.TokenCount > remaining {
			break
		}
		parts = append(parts, c.Text)
		used += c.TokenCount
	}
	if len(parts) > 0 {
		return &Inclusion{
			ResourceID: res.ID,
			Label:      res.Label,
			Category:   res.Category,
			Mode:       ModeChunks,
			Tokens:     used,
			ChunkCount: len(parts),
			Text:       strings.Join(parts, "\n\n"),
		}, nil, used, nil
	}

	return nil, &Exclusion{ResourceID: res.ID, Label: res.Label, Reason: ReasonBudgetExceeded}, 0, nil
}

func filterCategories(resources []types.Resource, cats []types.ResourceCategory) []types.Resource {
	out := make([]types.Resource, 0, len(resources))
	if len(cats) == 0 {
		out = append(out, resources...)
		return out
	}
	want := make(map[types.ResourceCategory]bool, len(cats))
	for _, c := range cats {
		want[c] = true
	}
	for _, r := range resources {
		if want[r.Category] {
			out = append(out, r)
		}
	}
	return out
}
