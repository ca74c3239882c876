// Package agent drives the multi-pass LLM pipelines: writer, style editor,
// detail editor, and fact checker. Pipelines are data — a fixed ordered list
// of pass specifications interpreted by one generic orchestrator — rather
// than a hierarchy of agent implementations.
package agent

import (
	"fmt"

	"inkwright/internal/types"
)

// PassKind says what the assistant output of a pass becomes.
type PassKind int

const (
	// PassDraft replaces the working draft with the assistant output.
	PassDraft PassKind = iota
	// PassAnalysis stores the output for the next pass without touching
	// the draft.
	PassAnalysis
)

// PassContext is the working state threaded through a run. Prompt builders
// read from it; the interpreter writes to it after each pass.
type PassContext struct {
	// Draft is the current in-memory draft, not yet committed.
	Draft string
	// Instruction is the author's optional free-form instruction.
	Instruction string
	// StyleProfile is the cached per-project style profile (style editor).
	StyleProfile string
	// Analysis is the output of the last analysis pass.
	Analysis string
	// Original is the draft as it stood when the run started, for
	// before/after reflection checks.
	Original string
	// CheckReport is the output of the last reflection check.
	CheckReport string
}

// CheckSpec is a bounded reflection call deciding whether the pass's main
// call is needed. The check itself is one LLM call; a negative verdict
// (the model answers NONE) skips the main call.
type CheckSpec struct {
	System string
	User   func(pc *PassContext) string
}

// PassSpec is one LLM call cycle within a pipeline.
type PassSpec struct {
	Name string
	Kind PassKind

	// Categories restricts the context plan to the given buckets; nil
	// plans over all active resources.
	Categories []types.ResourceCategory

	// ReusePlan reuses the previous pass's context plan instead of
	// re-planning (detail editor pass 2 expands against the exact
	// material pass 1 analyzed).
	ReusePlan bool

	// Check gates the main call; nil means the pass always runs.
	Check *CheckSpec

	System func(pc *PassContext) string
	User   func(pc *PassContext) string
}

// Pipeline is the fixed pass sequence for one agent type.
type Pipeline struct {
	AgentType types.AgentType
	Passes    []PassSpec

	// NeedsStyleProfile triggers the one-time per-project style profile
	// precompute before the passes run.
	NeedsStyleProfile bool

	// CorrectiveRetries caps reflection-triggered re-passes after the
	// last pass (style editor: one corrective retry).
	CorrectiveRetries int

	// CorrectiveCheck decides whether a corrective re-pass is needed;
	// only consulted when CorrectiveRetries > 0.
	CorrectiveCheck *CheckSpec
	// Corrective is the re-pass executed on a positive verdict.
	Corrective *PassSpec

	// Summary builds the committed version's prompt_summary.
	Summary func(pc *PassContext) string
}

// PipelineFor returns the pipeline for an agent type.
func PipelineFor(agentType types.AgentType) (*Pipeline, error) {
	switch agentType {
	case types.AgentWriter:
		return writerPipeline(), nil
	case types.AgentStyleEditor:
		return styleEditorPipeline(), nil
	case types.AgentDetailEditor:
		return detailEditorPipeline(), nil
	case types.AgentFactChecker:
		return factCheckerPipeline(), nil
	default:
		return nil, &types.ConfigError{Detail: fmt.Sprintf("unknown agent type %q", agentType)}
	}
}

func writerPipeline() *Pipeline {
	return &Pipeline{
		AgentType: types.AgentWriter,
		Passes: []PassSpec{
			{
				Name:   "draft",
				Kind:   PassDraft,
				System: func(*PassContext) string { return writerDraftSystem },
				User:   writerDraftUser,
			},
			{
				Name: "notes_coverage",
				Kind: PassDraft,
				Check: &CheckSpec{
					System: writerNotesCheckSystem,
					User:   writerNotesCheckUser,
				},
				System: func(*PassContext) string { return writerNotesReviseSystem },
				User:   writerNotesReviseUser,
			},
			{
				Name: "source_accuracy",
				Kind: PassDraft,
				Check: &CheckSpec{
					System: writerSourceCheckSystem,
					User:   writerSourceCheckUser,
				},
				System: func(*PassContext) string { return writerSourceReviseSystem },
				User:   writerSourceReviseUser,
			},
		},
		Summary: func(pc *PassContext) string {
			return "Writer agent: " + truncate(pc.Instruction, 100)
		},
	}
}

func styleEditorPipeline() *Pipeline {
	rewrite := PassSpec{
		Name:   "style_rewrite",
		Kind:   PassDraft,
		System: styleRewriteSystem,
		User:   styleRewriteUser,
	}
	corrective := PassSpec{
		Name:   "style_restore",
		Kind:   PassDraft,
		System: func(*PassContext) string { return styleRestoreSystem },
		User:   styleRestoreUser,
	}
	return &Pipeline{
		AgentType:         types.AgentStyleEditor,
		NeedsStyleProfile: true,
		Passes:            []PassSpec{rewrite},
		CorrectiveRetries: 1,
		CorrectiveCheck: &CheckSpec{
			System: styleLossCheckSystem,
			User:   styleLossCheckUser,
		},
		Corrective: &corrective,
		Summary: func(pc *PassContext) string {
			return "Style editor: matched draft to author's style"
		},
	}
}

func detailEditorPipeline() *Pipeline {
	return &Pipeline{
		AgentType: types.AgentDetailEditor,
		Passes: []PassSpec{
			{
				Name:   "find_vague",
				Kind:   PassAnalysis,
				System: func(*PassContext) string { return detailAnalysisSystem },
				User:   detailAnalysisUser,
			},
			{
				Name:      "expand",
				Kind:      PassDraft,
				ReusePlan: true,
				System:    func(*PassContext) string { return detailExpandSystem },
				User:      detailExpandUser,
			},
		},
		Summary: func(pc *PassContext) string {
			return "Detail editor: added concrete details and examples"
		},
	}
}

func factCheckerPipeline() *Pipeline {
	// Claims are verified against source-category resources only; notes
	// and corpus are opinions and voice, not evidence.
	sourceOnly := []types.ResourceCategory{types.CategorySource}
	return &Pipeline{
		AgentType: types.AgentFactChecker,
		Passes: []PassSpec{
			{
				Name:       "verify_claims",
				Kind:       PassAnalysis,
				Categories: sourceOnly,
				System:     func(*PassContext) string { return factCheckSystem },
				User:       factCheckUser,
			},
			{
				Name:       "annotate",
				Kind:       PassDraft,
				Categories: sourceOnly,
				System:     func(*PassContext) string { return factCorrectSystem },
				User:       factCorrectUser,
			},
		},
		Summary: func(pc *PassContext) string {
			return "Fact checker: verified claims against sources"
		},
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
