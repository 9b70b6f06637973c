// Package models defines the core domain models for newsletter workflow orchestration.
package models

// StepInputSource values understood by the compiler. A source may also be the
// id of an earlier step, in which case the input is read from that step's output.
const (
	StepInputSourceTrigger  = "trigger"
	StepInputSourcePrevious = "previous"
)

// StepInput binds one named prompt placeholder to a value available at run time.
type StepInput struct {
	Source     string `json:"source"               validate:"required"`
	Path       string `json:"path"                 validate:"required"`
	FormatExpr string `json:"format_expr,omitempty"`
	Append     bool   `json:"append,omitempty"`
}

// MilestoneCallback declares a step-level progress notification. Fields is the
// whitelist of output fields projected into the callback payload; anything not
// listed is omitted.
type MilestoneCallback struct {
	Step   string   `json:"step"   validate:"required"`
	Fields []string `json:"fields"`
}

// ManifestStep is a single content-generation step of a workflow manifest.
type ManifestStep struct {
	ID                string               `json:"id"                  validate:"required"`
	Name              string               `json:"name"                validate:"required,min=1"`
	Prompt            string               `json:"prompt"              validate:"required"`
	PromptInputs      map[string]StepInput `json:"prompt_inputs,omitempty"`
	Temperature       *float64             `json:"temperature,omitempty"`
	MaxTokens         *int                 `json:"max_tokens,omitempty"`
	OutputKey         string               `json:"output_key,omitempty"`
	OutputSlice       *int                 `json:"output_slice,omitempty"`
	MilestoneCallback *MilestoneCallback   `json:"milestone_callback,omitempty"`
	Validation        map[string]any       `json:"validation,omitempty"`
}

// RateLimitRule configures one rate-limiting concern of a manifest.
type RateLimitRule struct {
	Amount int    `json:"amount"`
	Unit   string `json:"unit,omitempty"`
}

// RateLimits groups the manifest-level pacing configuration.
type RateLimits struct {
	BetweenSteps RateLimitRule `json:"between_steps"`
	HTTPRetry    RateLimitRule `json:"http_retry"`
	Batching     RateLimitRule `json:"batching"`
}

// ProviderConfig points at the external content-generation provider.
type ProviderConfig struct {
	URL       string `json:"url"        validate:"required,url"`
	UserAgent string `json:"user_agent"`
}

// ScheduleTrigger fires the workflow on a cron expression.
type ScheduleTrigger struct {
	Cron    string `json:"cron"    validate:"required"`
	Enabled bool   `json:"enabled"`
}

// Triggers declares how a manifest's workflow may be started.
type Triggers struct {
	Webhook  bool             `json:"webhook"`
	Schedule *ScheduleTrigger `json:"schedule,omitempty"`
}

// WorkflowManifest is the human-curated declarative description of a
// multi-step newsletter generation workflow. Manifests are immutable once
// loaded; the compiler reads them, never writes them.
type WorkflowManifest struct {
	ID             string         `json:"id"              validate:"required"`
	Name           string         `json:"name"            validate:"required,min=3"`
	Version        string         `json:"version"         validate:"required"`
	WebhookPath    string         `json:"webhook_path"`
	Triggers       Triggers       `json:"triggers"`
	RateLimits     RateLimits     `json:"rate_limits"`
	ProviderConfig ProviderConfig `json:"provider_config" validate:"required"`
	Steps          []ManifestStep `json:"steps"           validate:"required,min=1,dive"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// StepByID returns the step with the given id, or nil when the manifest does
// not declare it.
func (m *WorkflowManifest) StepByID(id string) *ManifestStep {
	for i := range m.Steps {
		if m.Steps[i].ID == id {
			return &m.Steps[i]
		}
	}

	return nil
}
