package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tenant is the billing and isolation unit; every record in the relational
// and analytical stores is owned by exactly one tenant.
type Tenant struct {
	UID                int64
	Slug               string
	OrgID              string
	CreditBalanceUSD    float64
	CustomerID         string
	PaymentFailed      bool
}

// Agent is a named prompt role within a tenant, identified by (TenantUID,
// Slug). UID is assigned once at creation and never reused.
type Agent struct {
	UID       int32
	TenantUID int64
	Slug      string
	CreatedAt time.Time
}

// APIKey is an opaque bearer secret hashed at rest with SecureHash. Partial
// is the first four characters, shown back to the user for identification.
type APIKey struct {
	TenantUID   int64
	HashedKey   string
	Partial     string
	CreatedBy   string
	CreatedAt   time.Time
	LastUsedAt  *time.Time
}

// ReasoningEffort is a provider-agnostic hint for how much the model should
// "think" before answering. Providers that support it map the effort to a
// concrete budget via ModelReasoningBudget.
type ReasoningEffort string

const (
	ReasoningEffortLow    ReasoningEffort = "low"
	ReasoningEffortMedium ReasoningEffort = "medium"
	ReasoningEffortHigh   ReasoningEffort = "high"
)

// ModelReasoningBudget describes a model's supported reasoning token window
// and the concrete budget mapped to by each named effort level. A missing
// entry in PerEffort means that effort level is unsupported by the model and
// must be dropped rather than guessed at.
type ModelReasoningBudget struct {
	Min       int
	Max       int
	PerEffort map[ReasoningEffort]int
}

// Clamp resolves a requested (effort, budget) pair against b, returning the
// token budget to send to the provider and whether the request was
// satisfiable at all. A zero budget with an unsupported effort returns
// (0, false): the caller must drop the reasoning request entirely.
func (b ModelReasoningBudget) Clamp(effort ReasoningEffort, budget int) (int, bool) {
	if budget <= 0 && effort != "" {
		mapped, ok := b.PerEffort[effort]
		if !ok {
			return 0, false
		}
		budget = mapped
	}
	if budget <= 0 {
		return 0, false
	}
	if budget < b.Min {
		budget = b.Min
	}
	if budget > b.Max {
		budget = b.Max
	}
	return budget, true
}

// FallbackOption controls whether the runner may retry a completion against
// the next candidate provider on a retryable failure. It is richer than a
// plain boolean: "auto" follows the model's declared supported-provider
// order, "never" disables fallback entirely, and an explicit model list
// restricts fallback to exactly those candidates, in the given order.
type FallbackOption struct {
	// Mode is one of FallbackModeAuto, FallbackModeNever, or
	// FallbackModeModels. When Mode is FallbackModeModels, Models holds the
	// explicit allow-list.
	Mode   FallbackMode
	Models []string
}

// FallbackMode discriminates FallbackOption's variants.
type FallbackMode string

const (
	FallbackModeAuto   FallbackMode = "auto"
	FallbackModeNever  FallbackMode = "never"
	FallbackModeModels FallbackMode = "models"
)

// AutoFallback is the default: follow the model's declared provider priority.
var AutoFallback = FallbackOption{Mode: FallbackModeAuto}

// NeverFallback disables fallback: a single attempt, no retry on a different
// provider.
var NeverFallback = FallbackOption{Mode: FallbackModeNever}

// FallbackToModels restricts fallback to the given candidate models, in order.
func FallbackToModels(models ...string) FallbackOption {
	return FallbackOption{Mode: FallbackModeModels, Models: models}
}

// Allowed reports whether fallback may proceed at all.
func (f FallbackOption) Allowed() bool {
	return f.Mode != FallbackModeNever
}

// ToolChoiceMode discriminates ToolChoice's variants at the runner boundary.
// This is richer than a provider's own tool_choice union: "required" is
// normalized across providers that spell it "any".
type ToolChoiceMode string

const (
	ToolChoiceAuto     ToolChoiceMode = "auto"
	ToolChoiceNone     ToolChoiceMode = "none"
	ToolChoiceRequired ToolChoiceMode = "required"
	ToolChoiceNamed    ToolChoiceMode = "named"
)

// ToolChoice configures tool-use behavior for a completion request. When Mode
// is ToolChoiceNamed, Name identifies the single tool the model must call.
type ToolChoice struct {
	Mode ToolChoiceMode
	Name string
}

// Page is the list envelope returned by every paginated endpoint: items plus
// an optional total count and opaque cursors for the previous/next page. A
// nil cursor means there is no such page.
type Page[T any] struct {
	Items             []T     `json:"items"`
	Count             *int    `json:"count,omitempty"`
	PreviousPageToken *string `json:"previous_page_token,omitempty"`
	NextPageToken     *string `json:"next_page_token,omitempty"`
}

// AnnotationTarget identifies what an Annotation is attached to. Exactly one
// of CompletionID or ExperimentID is normally set; KeyPath further narrows
// the target to one cell of an experiment's input x version matrix.
type AnnotationTarget struct {
	CompletionID *uuid.UUID
	ExperimentID *string
	KeyPath      *string
}

// AnnotationContext carries optional provenance for an Annotation: which
// agent and/or experiment it was authored against, independent of Target.
type AnnotationContext struct {
	AgentID      *string
	ExperimentID *string
}

// AnnotationMetricValue is a discriminated union over the value types an
// annotation metric may carry.
type AnnotationMetricValue struct {
	Float  *float64
	String *string
	Bool   *bool
}

// AnnotationMetric is an optional named measurement attached to an
// Annotation, e.g. {name: "helpfulness", value: 4.5}.
type AnnotationMetric struct {
	Name  string
	Value AnnotationMetricValue
}

// Annotation is a rating or comment attached to a completion, an experiment,
// or one cell of an experiment.
type Annotation struct {
	ID        string
	TenantUID int64
	Target    AnnotationTarget
	Context   AnnotationContext
	Comment   string
	Metric    *AnnotationMetric
	CreatedAt time.Time
}

// ViewGraph optionally describes how a saved View should be charted.
type ViewGraph struct {
	Type       string
	Attributes map[string]any
}

// View is a saved analytical query. FolderID is the empty string for the
// implicit default folder (boundary scenario E).
type View struct {
	ID        string
	TenantUID int64
	Name      string
	Query     string
	Graph     *ViewGraph
	FolderID  string
	Position  int
	CreatedAt time.Time
}

// ViewFolder groups Views under a user-chosen name. The zero-value id ("")
// is the implicit folder that always exists and holds ungrouped views.
type ViewFolder struct {
	ID    string
	Name  string
	Views []View
}

// DeploymentName is the alias bound to a Deployment's pinned Version.
// "production", "dev", and "staging" are conventional defaults, but the set
// is open: operators may register any name.
type DeploymentName string

const (
	DeploymentProduction DeploymentName = "production"
	DeploymentDev        DeploymentName = "dev"
	DeploymentStaging    DeploymentName = "staging"
)

// Deployment binds a stable DeploymentName to a specific Version. Archived
// deployments are never hard-deleted, only flagged.
type Deployment struct {
	TenantUID int64
	Name      DeploymentName
	VersionID string
	Metadata  map[string]any
	Archived  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// CompletionStatus is the terminal state of an AgentCompletion.
type CompletionStatus string

const (
	CompletionSuccess CompletionStatus = "success"
	CompletionFailure CompletionStatus = "failure"
)

// CompletionSource identifies the surface that produced a completion.
type CompletionSource string

const (
	SourceWeb CompletionSource = "web"
	SourceAPI CompletionSource = "api"
	SourceMCP CompletionSource = "mcp"
)

// InferenceUsage records detailed token accounting for one LLM call.
type InferenceUsage struct {
	PromptTokens        int
	CompletionTokens     int
	ImageCount           int
	AudioSeconds         float64
	CachedPromptTokens   int
	ReasoningTokens      int
}

// TraceKind discriminates the Trace union.
type TraceKind string

const (
	TraceKindLLM  TraceKind = "llm"
	TraceKindTool TraceKind = "tool"
)

// Trace is one per-step cost/duration record inside a completion: either an
// LLM call or a tool call. Exactly one of LLM or Tool is populated,
// according to Kind.
type Trace struct {
	Kind            TraceKind
	DurationSeconds float64
	CostUSD         float64
	LLM             *LLMTrace
	Tool            *ToolTrace
}

// LLMTrace is the Trace payload for a model invocation.
type LLMTrace struct {
	Model    string
	Provider string
	Usage    InferenceUsage
}

// ToolCallRequest echoes a tool invocation requested by the model back to
// the caller. If the provider did not supply an id, one is synthesized as
// "{tool_name}_{hash(tool_input)}".
type ToolCallRequest struct {
	ID        string
	ToolName  string
	ToolInput map[string]any
}

// ToolTrace is the Trace payload for a tool call.
type ToolTrace struct {
	Request ToolCallRequest
	Output  any
	Error   string
}

// Version is a content-addressed prompt+model configuration. ID is the
// stable hash of NormalizedFields (see NormalizedVersionFields), so two
// versions with identical semantics always share the same id.
type Version struct {
	ID                string
	Model             string
	Temperature       *float32
	TopP              *float32
	MaxTokens         *int
	FrequencyPenalty  *float32
	PresencePenalty   *float32
	Tools             []string
	ToolChoice        *ToolChoice
	ResponseSchema    map[string]any
	ReasoningEffort   ReasoningEffort
	ReasoningBudget   int
}

// NormalizedVersionFields returns the subset of v's fields that participate
// in its content hash, in a representation stable across equivalent Go
// values (nil vs empty slice, pointer vs value).
func NormalizedVersionFields(v Version) map[string]any {
	fields := map[string]any{
		"model": v.Model,
	}
	if v.Temperature != nil {
		fields["temperature"] = *v.Temperature
	}
	if v.TopP != nil {
		fields["top_p"] = *v.TopP
	}
	if v.MaxTokens != nil {
		fields["max_tokens"] = *v.MaxTokens
	}
	if v.FrequencyPenalty != nil {
		fields["frequency_penalty"] = *v.FrequencyPenalty
	}
	if v.PresencePenalty != nil {
		fields["presence_penalty"] = *v.PresencePenalty
	}
	if len(v.Tools) > 0 {
		fields["tools"] = v.Tools
	}
	if v.ToolChoice != nil {
		fields["tool_choice"] = *v.ToolChoice
	}
	if len(v.ResponseSchema) > 0 {
		fields["response_schema"] = v.ResponseSchema
	}
	if v.ReasoningEffort != "" {
		fields["reasoning_effort"] = v.ReasoningEffort
	}
	if v.ReasoningBudget != 0 {
		fields["reasoning_budget"] = v.ReasoningBudget
	}
	return fields
}

// ComputeVersionID derives v's content-addressed id from its normalized
// fields. Two Versions with identical normalized fields always yield the
// same id (property test invariant 1).
func ComputeVersionID(v Version) (string, error) {
	return HashObject(NormalizedVersionFields(v))
}

// Input is the set of (messages, variables) sent to a model for one agent,
// before rendering. ID is the content hash of the normalized messages and
// variables; Preview is a human-readable truncation for list views.
type Input struct {
	ID        string
	AgentID   string
	Messages  []map[string]any
	Variables map[string]any
	Preview   string
}

// ComputeInputID derives i's content-addressed id from its messages and
// variables, independent of AgentID and Preview which do not affect
// semantic identity.
func ComputeInputID(i Input) (string, error) {
	return HashObject(map[string]any{
		"messages":  i.Messages,
		"variables": i.Variables,
	})
}

// Output is the assistant-role result of a completion, or an error in place
// of content.
type Output struct {
	Messages []map[string]any
	Error    *string
}

// AgentCompletion is the immutable record of one prompt -> model -> response
// execution. CreatedAt is not stored independently; it is always derived
// from ID via domain.CreatedAt, since ID is a UUIDv7.
type AgentCompletion struct {
	ID               uuid.UUID
	TenantUID        int64
	AgentID          string
	Input            Input
	Output           Output
	RenderedMessages []map[string]any
	Version          Version
	Status           CompletionStatus
	DurationSeconds  float64
	CostUSD          float64
	Traces           []Trace
	FromCache        bool
	Source           CompletionSource
	PreserveCredits  bool
	Metadata         map[string]any
}

// CreatedAt returns the completion's creation time, recovered from the
// embedded UUIDv7 timestamp rather than a separately stored column.
func (c AgentCompletion) CreatedAt() time.Time {
	return CreatedAt(c.ID)
}

// ExperimentInput aliases an Input within one Experiment with a stable,
// user-facing label distinct from the content-hashed Input id.
type ExperimentInput struct {
	Alias   string
	InputID string
}

// ExperimentVersion aliases a Version within one Experiment.
type ExperimentVersion struct {
	Alias     string
	VersionID string
}

// ExperimentOutput links one Input and one Version to the single Completion
// produced by running them together. An Experiment may not contain two
// outputs for the same (InputID, VersionID) pair.
type ExperimentOutput struct {
	InputID      string
	VersionID    string
	CompletionID uuid.UUID
}

// Experiment is a named collection of inputs x versions with the resulting
// outputs, i.e. a labeled N x M matrix of completions.
type Experiment struct {
	ID        string
	TenantUID int64
	AgentID   string
	Name      string
	Inputs    []ExperimentInput
	Versions  []ExperimentVersion
	Outputs   []ExperimentOutput
	CreatedAt time.Time
}

// RunIDs returns the flat list of completion ids produced by e. spec §9
// notes the analytical model's "run_ids" attribute is not defined on
// Experiment proper; this is the resolved meaning: the Output completion ids.
func (e Experiment) RunIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(e.Outputs))
	for _, o := range e.Outputs {
		ids = append(ids, o.CompletionID)
	}
	return ids
}
