// Package types defines the core entities shared across inkwright:
// model profiles, resources, artefact versions, and agent runs.
package types

import "time"

// =============================================================================
// MODEL PROFILES
// =============================================================================

// ModelProfile describes one LLM model's capabilities. Profiles are immutable
// catalog entries looked up by ID; they are never mutated at runtime.
type ModelProfile struct {
	ID              string `yaml:"id" json:"id"`
	DisplayName     string `yaml:"display_name" json:"display_name"`
	MaxInputTokens  int    `yaml:"max_input_tokens" json:"max_input_tokens"`
	MaxOutputTokens int    `yaml:"max_output_tokens" json:"max_output_tokens"`
	TokenizerID     string `yaml:"tokenizer_id" json:"tokenizer_id"`
	Description     string `yaml:"description" json:"description"`
}

// =============================================================================
// RESOURCES
// =============================================================================

// ResourceCategory buckets resources for context planning priority.
type ResourceCategory string

const (
	CategoryNotes  ResourceCategory = "notes"
	CategorySource ResourceCategory = "source"
	CategoryCorpus ResourceCategory = "corpus"
	CategoryOther  ResourceCategory = "other"
)

// Priority returns the planner bucket order (lower plans first).
func (c ResourceCategory) Priority() int {
	switch c {
	case CategoryNotes:
		return 1
	case CategorySource:
		return 2
	case CategoryCorpus:
		return 3
	default:
		return 4
	}
}

// Valid reports whether c is one of the known categories.
func (c ResourceCategory) Valid() bool {
	switch c {
	case CategoryNotes, CategorySource, CategoryCorpus, CategoryOther:
		return true
	}
	return false
}

// ResourceOrigin records how a resource entered the system.
type ResourceOrigin string

const (
	OriginUpload  ResourceOrigin = "upload"
	OriginURL     ResourceOrigin = "url"
	OriginDerived ResourceOrigin = "derived"
)

// Resource is an imported material (already-extracted plain/markdown text)
// usable as LLM context. Text is owned exclusively by this entity; token
// counts are cached per model and recomputed whenever the text changes.
type Resource struct {
	ID        string           `json:"id"`
	ProjectID string           `json:"project_id"`
	Label     string           `json:"label"`
	Category  ResourceCategory `json:"category"`
	Origin    ResourceOrigin   `json:"origin"`
	Text      string           `json:"text"`
	Active    bool             `json:"active"`
	CreatedAt time.Time        `json:"created_at"`

	// TokenCache maps model ID to the cached token count of Text. Entries
	// are keyed in storage by a content hash of Text so that stale counts
	// are evicted after edits rather than silently reused.
	TokenCache map[string]int `json:"token_cache,omitempty"`
}

// ResourceChunk is one contiguous slice of an oversized resource. Chunks are
// created lazily the first time a resource exceeds a model's input window
// and keep stable boundaries for the life of the resource text.
type ResourceChunk struct {
	ID            string `json:"id"`
	ResourceID    string `json:"resource_id"`
	SequenceIndex int    `json:"sequence_index"`
	Text          string `json:"text"`
	TokenCount    int    `json:"token_count"`
}

// =============================================================================
// ARTEFACTS & VERSIONS
// =============================================================================

// Artefact is the single evolving document of a project. Exactly one exists
// per project; CurrentVersionID always points at an existing version.
type Artefact struct {
	ID               string    `json:"id"`
	ProjectID        string    `json:"project_id"`
	Title            string    `json:"title"`
	CurrentVersionID string    `json:"current_version_id"`
	CreatedAt        time.Time `json:"created_at"`
}

// VersionAuthor identifies what produced an artefact version.
type VersionAuthor string

const (
	AuthorUser         VersionAuthor = "user"
	AuthorWriter       VersionAuthor = "writer"
	AuthorStyleEditor  VersionAuthor = "style_editor"
	AuthorDetailEditor VersionAuthor = "detail_editor"
	AuthorFactChecker  VersionAuthor = "fact_checker"
)

// ArtefactVersion is one append-only snapshot of the artefact content.
// Versions are never mutated after creation; restoring an old version
// creates a new version whose content equals the old one's.
type ArtefactVersion struct {
	ID            string        `json:"id"`
	ArtefactID    string        `json:"artefact_id"`
	CreatedAt     time.Time     `json:"created_at"`
	CreatedBy     VersionAuthor `json:"created_by"`
	PromptSummary string        `json:"prompt_summary"`
	Content       string        `json:"content"`
}

// =============================================================================
// AGENT RUNS
// =============================================================================

// AgentType selects one of the fixed agent pipelines.
type AgentType string

const (
	AgentWriter       AgentType = "writer"
	AgentStyleEditor  AgentType = "style_editor"
	AgentDetailEditor AgentType = "detail_editor"
	AgentFactChecker  AgentType = "fact_checker"
)

// Valid reports whether t names a known pipeline.
func (t AgentType) Valid() bool {
	switch t {
	case AgentWriter, AgentStyleEditor, AgentDetailEditor, AgentFactChecker:
		return true
	}
	return false
}

// Author returns the version author corresponding to this agent type.
func (t AgentType) Author() VersionAuthor {
	return VersionAuthor(t)
}

// RunStatus is the lifecycle state of an agent run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s != RunRunning
}

// AgentRun records one execution of an agent pipeline against an artefact.
// At most one run per artefact may be in the running state at a time.
type AgentRun struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id"`
	ArtefactID     string     `json:"artefact_id"`
	AgentType      AgentType  `json:"agent_type"`
	Status         RunStatus  `json:"status"`
	IterationCount int        `json:"iteration_count"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
}

// LogRole is the conversational role of a run log entry.
type LogRole string

const (
	RoleSystem    LogRole = "system"
	RoleUser      LogRole = "user"
	RoleAssistant LogRole = "assistant"
)

// AgentRunLog is one transparency record for a run: a prompt, a response, or
// a context-plan snapshot. Entries are append-only and immutable, ordered by
// iteration index then insertion order.
type AgentRunLog struct {
	ID             string    `json:"id"`
	AgentRunID     string    `json:"agent_run_id"`
	IterationIndex int       `json:"iteration_index"`
	Role           LogRole   `json:"role"`
	Content        string    `json:"content"`
	TokensUsed     *int      `json:"tokens_used,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Project groups resources and the artefact under one writing effort.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	DefaultModelID string    `json:"default_model_id"`
	CreatedAt      time.Time `json:"created_at"`
}
