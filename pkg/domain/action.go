package domain

// ActionStatus is the outcome class of a post-action.
type ActionStatus string

const (
	ActionSucceeded ActionStatus = "success"
	ActionFailed    ActionStatus = "failed"
	ActionCancelled ActionStatus = "cancelled"
)

// Error codes reported by failed actions.
const (
	CodeJSONParse      = "JSON_PARSE_ERROR"
	CodeValidation     = "VALIDATION_FAILED"
	CodeUnknownAction  = "UNKNOWN_ACTION"
	CodeTargetNotFound = "TARGET_NOT_FOUND"
	CodeConfirmation   = "CONFIRMATION_ERROR"
	CodeExecution      = "EXECUTION_FAILED"
)

// ReasonUserCancelled is set when the operator rejects a preview.
const ReasonUserCancelled = "user_cancelled"

// Placement selects where created children are attached.
type Placement string

const (
	PlaceSelf     Placement = "self"
	PlaceParent   Placement = "parent"
	PlaceSpecific Placement = "specific_prompt"
)

// ActionPreview is shown to the operator before any tree mutation.
type ActionPreview struct {
	NodeID         string         `json:"node_id"`
	NodeName       string         `json:"node_name"`
	PostAction     string         `json:"post_action"`
	TargetParentID string         `json:"target_parent_id,omitempty"`
	Items          []any          `json:"items,omitempty"`
	ChildNames     []string       `json:"child_names,omitempty"`
	Config         map[string]any `json:"config,omitempty"`
}

// ActionResult is the outcome of ActionProcessor.Process. It is never an error.
type ActionResult struct {
	Status          ActionStatus   `json:"status"`
	PostAction      string         `json:"post_action"`
	ErrorCode       string         `json:"error_code,omitempty"`
	Error           string         `json:"error,omitempty"`
	Reason          string         `json:"reason,omitempty"`
	AvailableArrays []string       `json:"available_arrays,omitempty"`
	CreatedCount    int            `json:"created_count"`
	TargetParentID  string         `json:"target_parent_id,omitempty"`
	Children        []*PromptNode  `json:"children,omitempty"`
	Assigned        map[string]any `json:"assigned,omitempty"`
}

// Succeeded reports whether the action completed.
func (r ActionResult) Succeeded() bool { return r.Status == ActionSucceeded }

// ActionConfig is the decoded form of a node's PostActionConfig.
type ActionConfig struct {
	JSONPath          string    `mapstructure:"jsonPath"`
	NamingTemplate    string    `mapstructure:"namingTemplate"`
	ContentKey        string    `mapstructure:"contentKey"`
	TitleKey          string    `mapstructure:"titleKey"`
	Placement         Placement `mapstructure:"placement"`
	TargetPromptID    string    `mapstructure:"targetPromptId"`
	ChildNodeType     NodeType  `mapstructure:"childNodeType"`
	ChildSystemPrompt string    `mapstructure:"childSystemPrompt"`
	ChildModel        string    `mapstructure:"childModel"`
	SkipPreview       bool      `mapstructure:"skipPreview"`
	RepairJSON        bool      `mapstructure:"repairJson"`
}
