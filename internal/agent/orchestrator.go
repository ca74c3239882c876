package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"inkwright/internal/llm"
	"inkwright/internal/planner"
	"inkwright/internal/store"
	"inkwright/internal/types"
)

// Orchestrator interprets agent pipelines: one sequential chain of planned
// LLM calls per run, with reflection checks, bounded retries, and a fully
// logged transparency trail. Runs on distinct artefacts may execute
// concurrently; at most one run per artefact is ever active.
type Orchestrator struct {
	store   *store.Store
	planner *planner.Planner
	client  llm.Client
	logger  *zap.Logger

	mu     sync.Mutex
	active map[string]string // artefactID -> runID
}

// New creates an Orchestrator.
func New(s *store.Store, p *planner.Planner, client llm.Client, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		store:   s,
		planner: p,
		client:  client,
		logger:  logger.Named("agent"),
		active:  make(map[string]string),
	}
}

// Run executes one agent pipeline against the artefact and blocks until the
// run reaches a terminal state. The returned run reflects that state; a
// failed run also returns the terminal error. A second call while a run is
// active on the same artefact fails fast with a ConflictError and creates
// no run record.
func (o *Orchestrator) Run(ctx context.Context, projectID, artefactID string, agentType types.AgentType, instruction, modelID string) (*types.AgentRun, error) {
	pipeline, err := PipelineFor(agentType)
	if err != nil {
		return nil, err
	}

	if err := o.acquire(artefactID); err != nil {
		return nil, err
	}
	defer o.release(artefactID)

	run, err := o.store.CreateRun(ctx, projectID, artefactID, agentType)
	if err != nil {
		return nil, err
	}
	o.setActiveRun(artefactID, run.ID)

	o.logger.Info("agent run started",
		zap.String("run", run.ID),
		zap.String("agent", string(agentType)),
		zap.String("artefact", artefactID),
		zap.String("model", modelID))

	exec := &execution{
		orch:       o,
		run:        run,
		pipeline:   pipeline,
		projectID:  projectID,
		artefactID: artefactID,
		modelID:    modelID,
	}
	status, execErr := exec.execute(ctx, instruction)

	// Bookkeeping must survive a cancelled caller context.
	finishCtx := context.Background()
	if err := o.store.FinishRun(finishCtx, run.ID, status, exec.iteration); err != nil {
		o.logger.Error("failed to finalize run", zap.String("run", run.ID), zap.Error(err))
	}
	run.Status = status
	run.IterationCount = exec.iteration

	switch status {
	case types.RunCompleted:
		o.logger.Info("agent run completed",
			zap.String("run", run.ID),
			zap.Int("iterations", exec.iteration))
		return run, nil
	case types.RunCancelled:
		o.logger.Info("agent run cancelled", zap.String("run", run.ID))
		return run, execErr
	default:
		o.logger.Warn("agent run failed",
			zap.String("run", run.ID),
			zap.Error(execErr))
		return run, &types.RunFailedError{RunID: run.ID, Pass: exec.failedPass, Err: execErr}
	}
}

func (o *Orchestrator) acquire(artefactID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if runID, busy := o.active[artefactID]; busy {
		return &types.ConflictError{ArtefactID: artefactID, ActiveRun: runID}
	}
	o.active[artefactID] = ""
	return nil
}

func (o *Orchestrator) setActiveRun(artefactID, runID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.active[artefactID] = runID
}

func (o *Orchestrator) release(artefactID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.active, artefactID)
}

// execution is the state of one in-flight run.
type execution struct {
	orch       *Orchestrator
	run        *types.AgentRun
	pipeline   *Pipeline
	projectID  string
	artefactID string
	modelID    string

	iteration  int
	failedPass string
	lastPlan   *planner.Plan
}

// execute walks the pipeline. Returns the terminal status and, for failed
// or cancelled runs, the causal error.
func (e *execution) execute(ctx context.Context, instruction string) (types.RunStatus, error) {
	draft, err := e.orch.store.CurrentContent(ctx, e.artefactID)
	if err != nil {
		e.failedPass = "init"
		return types.RunFailed, err
	}

	pc := &PassContext{
		Draft:       draft,
		Original:    draft,
		Instruction: instruction,
	}

	if e.pipeline.NeedsStyleProfile {
		if err := e.ensureStyleProfile(ctx, pc); err != nil {
			if errors.Is(err, context.Canceled) {
				return types.RunCancelled, err
			}
			e.failedPass = "style_profile"
			return types.RunFailed, err
		}
	}

	for i := range e.pipeline.Passes {
		spec := &e.pipeline.Passes[i]
		if err := e.runPass(ctx, spec, pc); err != nil {
			if errors.Is(err, context.Canceled) {
				return types.RunCancelled, err
			}
			e.failedPass = spec.Name
			return types.RunFailed, err
		}
	}

	flagged, err := e.correctiveLoop(ctx, pc)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return types.RunCancelled, err
		}
		return types.RunFailed, err
	}

	summary := e.pipeline.Summary(pc)
	if flagged {
		// Corrective retry cap exhausted with loss still reported: commit
		// the draft anyway, flagged for the author.
		summary += " (content-loss check unresolved)"
	}
	if _, err := e.orch.store.CommitVersion(ctx, e.artefactID, e.pipeline.AgentType.Author(), summary, pc.Draft); err != nil {
		e.failedPass = "commit"
		return types.RunFailed, err
	}
	return types.RunCompleted, nil
}

// correctiveLoop runs the pipeline's bounded reflection-and-repass cycle.
// Returns true when the cap was exhausted while the check still reported
// findings.
func (e *execution) correctiveLoop(ctx context.Context, pc *PassContext) (bool, error) {
	if e.pipeline.CorrectiveRetries <= 0 || e.pipeline.CorrectiveCheck == nil {
		return false, nil
	}

	for attempt := 0; attempt < e.pipeline.CorrectiveRetries; attempt++ {
		report, needed, err := e.runCheck(ctx, e.pipeline.CorrectiveCheck, pc, e.iteration)
		e.iteration++
		if err != nil {
			e.failedPass = "reflection"
			return false, err
		}
		if !needed {
			return false, nil
		}
		pc.CheckReport = report
		if err := e.runPass(ctx, e.pipeline.Corrective, pc); err != nil {
			e.failedPass = e.pipeline.Corrective.Name
			return false, err
		}
	}

	// Final verdict after the last corrective pass.
	_, stillLost, err := e.runCheck(ctx, e.pipeline.CorrectiveCheck, pc, e.iteration)
	e.iteration++
	if err != nil {
		e.failedPass = "reflection"
		return false, err
	}
	return stillLost, nil
}

// runPass executes one pass: cancellation checkpoint, snapshot, plan,
// optional reflection check, main LLM call, parse, draft/analysis update.
func (e *execution) runPass(ctx context.Context, spec *PassSpec, pc *PassContext) error {
	// Cooperative cancellation checkpoint before each pass begins.
	if err := ctx.Err(); err != nil {
		return err
	}

	iter := e.iteration
	e.iteration++

	plan, err := e.buildPlan(ctx, spec, pc)
	if err != nil {
		return err
	}
	e.lastPlan = plan

	if spec.Check != nil {
		report, needed, err := e.runCheckWithPlan(ctx, spec.Check, pc, plan, iter)
		if err != nil {
			return err
		}
		if !needed {
			e.orch.logger.Debug("pass skipped by reflection check",
				zap.String("run", e.run.ID),
				zap.String("pass", spec.Name))
			return nil
		}
		pc.CheckReport = report
	}

	systemPrompt := spec.System(pc)
	userPrompt := composeUserPrompt(plan, spec.User(pc))

	e.log(ctx, iter, types.RoleSystem, "context plan: "+plan.MustSnapshot(), nil)
	e.log(ctx, iter, types.RoleSystem, systemPrompt, nil)
	e.log(ctx, iter, types.RoleUser, userPrompt, nil)

	text, tokens, err := e.generateParsed(ctx, spec.Name, systemPrompt, userPrompt, iter)
	if err != nil {
		return err
	}
	e.log(ctx, iter, types.RoleAssistant, text, tokens)

	switch spec.Kind {
	case PassAnalysis:
		pc.Analysis = text
	default:
		pc.Draft = text
	}
	return nil
}

// generateParsed calls the backend and parses the draft, retrying the pass
// once on malformed output before giving up.
func (e *execution) generateParsed(ctx context.Context, passName, system, user string, iter int) (string, *int, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		result, err := e.orch.client.Generate(ctx, llm.GenerateRequest{
			ModelID:      e.modelID,
			SystemPrompt: system,
			UserPrompt:   user,
		})
		if err != nil {
			return "", nil, err
		}

		text, err := parseDraft(passName, result.Text)
		if err == nil {
			return text, result.TokensUsed, nil
		}
		lastErr = err
		e.log(ctx, iter, types.RoleAssistant, result.Text, result.TokensUsed)
		e.orch.logger.Warn("malformed model output, retrying pass",
			zap.String("run", e.run.ID),
			zap.String("pass", passName),
			zap.Int("attempt", attempt+1))
	}
	return "", nil, lastErr
}

// runCheck builds a plan for the pipeline's first pass categories and runs
// the reflection call against it.
func (e *execution) runCheck(ctx context.Context, check *CheckSpec, pc *PassContext, iter int) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	plan := e.lastPlan
	if plan == nil {
		var err error
		plan, err = e.buildPlan(ctx, &e.pipeline.Passes[0], pc)
		if err != nil {
			return "", false, err
		}
	}
	return e.runCheckWithPlan(ctx, check, pc, plan, iter)
}

// runCheckWithPlan performs one bounded reflection call. The verdict is
// negative when the model answers NONE.
func (e *execution) runCheckWithPlan(ctx context.Context, check *CheckSpec, pc *PassContext, plan *planner.Plan, iter int) (string, bool, error) {
	userPrompt := composeUserPrompt(plan, check.User(pc))

	e.log(ctx, iter, types.RoleSystem, check.System, nil)
	e.log(ctx, iter, types.RoleUser, userPrompt, nil)

	result, err := e.orch.client.Generate(ctx, llm.GenerateRequest{
		ModelID:      e.modelID,
		SystemPrompt: check.System,
		UserPrompt:   userPrompt,
	})
	if err != nil {
		return "", false, err
	}
	e.log(ctx, iter, types.RoleAssistant, result.Text, result.TokensUsed)

	report := strings.TrimSpace(result.Text)
	if report == "" {
		return "", false, &types.ParseError{Pass: "reflection", Detail: "empty check response"}
	}
	negative := strings.EqualFold(strings.Trim(report, " .!"), noFindingsToken)
	return report, !negative, nil
}

// buildPlan takes a fresh snapshot of active resources and plans the pass
// context, unless the pass reuses the previous pass's plan.
func (e *execution) buildPlan(ctx context.Context, spec *PassSpec, pc *PassContext) (*planner.Plan, error) {
	if spec.ReusePlan && e.lastPlan != nil {
		return e.lastPlan, nil
	}

	resources, err := e.orch.store.ActiveResources(ctx, e.projectID)
	if err != nil {
		return nil, err
	}
	summaries, err := e.orch.store.Summaries(ctx, e.projectID)
	if err != nil {
		return nil, err
	}

	return e.orch.planner.Plan(ctx, planner.Request{
		ModelID:         e.modelID,
		ArtefactContent: pc.Draft,
		Resources:       resources,
		Summaries:       summaries,
		Categories:      spec.Categories,
	})
}

// ensureStyleProfile loads the cached per-project style profile or computes
// it once from the corpus and persists it.
func (e *execution) ensureStyleProfile(ctx context.Context, pc *PassContext) error {
	profile, err := e.orch.store.StyleProfile(ctx, e.projectID)
	if err == nil {
		pc.StyleProfile = profile
		return nil
	}
	if !errors.Is(err, types.ErrNotFound) {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	iter := e.iteration
	e.iteration++

	resources, err := e.orch.store.ActiveResources(ctx, e.projectID)
	if err != nil {
		return err
	}
	summaries, err := e.orch.store.Summaries(ctx, e.projectID)
	if err != nil {
		return err
	}
	plan, err := e.orch.planner.Plan(ctx, planner.Request{
		ModelID:         e.modelID,
		ArtefactContent: "",
		Resources:       resources,
		Summaries:       summaries,
		Categories:      []types.ResourceCategory{types.CategoryCorpus},
	})
	if err != nil {
		return err
	}

	userPrompt := composeUserPrompt(plan, styleProfileUser)
	e.log(ctx, iter, types.RoleSystem, styleProfileSystem, nil)
	e.log(ctx, iter, types.RoleUser, userPrompt, nil)

	text, tokens, err := e.generateParsed(ctx, "style_profile", styleProfileSystem, userPrompt, iter)
	if err != nil {
		return err
	}
	e.log(ctx, iter, types.RoleAssistant, text, tokens)

	if err := e.orch.store.SetStyleProfile(ctx, e.projectID, text); err != nil {
		return err
	}
	pc.StyleProfile = text
	return nil
}

func (e *execution) log(ctx context.Context, iter int, role types.LogRole, content string, tokens *int) {
	entry := &types.AgentRunLog{
		AgentRunID:     e.run.ID,
		IterationIndex: iter,
		Role:           role,
		Content:        content,
		TokensUsed:     tokens,
	}
	if err := e.orch.store.AppendRunLog(ctx, entry); err != nil {
		e.orch.logger.Error("failed to append run log",
			zap.String("run", e.run.ID),
			zap.Error(err))
	}
}

// composeUserPrompt places the rendered plan ahead of the pass instructions.
func composeUserPrompt(plan *planner.Plan, userPrompt string) string {
	contextBlock := plan.Render()
	if contextBlock == "" {
		return userPrompt
	}
	return contextBlock + "\n\n---\n\n" + userPrompt
}

// parseDraft validates assistant output and strips a wrapping code fence.
// Empty output is a parse failure: the pass is retried once, then the run
// fails.
func parseDraft(pass, raw string) (string, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return "", &types.ParseError{Pass: pass, Detail: "empty response"}
	}

	if strings.HasPrefix(text, "```") && strings.HasSuffix(text, "```") {
		inner := strings.TrimPrefix(text, "```")
		if idx := strings.Index(inner, "\n"); idx >= 0 {
			inner = inner[idx+1:]
		}
		inner = strings.TrimSuffix(inner, "```")
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return "", &types.ParseError{Pass: pass, Detail: "empty fenced response"}
		}
		return inner, nil
	}
	return text, nil
}

// ActiveRunID reports the run currently holding an artefact, if any.
func (o *Orchestrator) ActiveRunID(artefactID string) (string, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	id, ok := o.active[artefactID]
	return id, ok
}

// Describe returns a short human description of a pipeline for CLI help.
func Describe(agentType types.AgentType) string {
	switch agentType {
	case types.AgentWriter:
		return "drafts from notes and sources, then checks coverage and accuracy"
	case types.AgentStyleEditor:
		return "rewrites toward the author's cached style profile"
	case types.AgentDetailEditor:
		return "finds vague passages and expands them with concrete material"
	case types.AgentFactChecker:
		return "verifies claims against source resources and annotates the draft"
	default:
		return fmt.Sprintf("unknown agent %q", agentType)
	}
}
