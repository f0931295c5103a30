package domain

import "time"

// DefaultMaxDepth bounds cascade recursion when no limit is configured.
const DefaultMaxDepth = 99

// RunMode distinguishes single-node runs from cascades.
type RunMode string

const (
	ModeSingle  RunMode = "single"
	ModeCascade RunMode = "cascade"
)

// RunStatus is the overall status of a run.
type RunStatus string

const (
	RunIdle              RunStatus = "idle"
	RunRunning           RunStatus = "running"
	RunCompleted         RunStatus = "completed"
	RunFailed            RunStatus = "failed"
	RunCancelled         RunStatus = "cancelled"
	RunDepthLimitReached RunStatus = "depth_limit_reached"
)

// NodeStatus is the per-node status tracked during a run.
type NodeStatus string

const (
	NodeIdle        NodeStatus = "idle"
	NodeRunning     NodeStatus = "running"
	NodeInterrupted NodeStatus = "interrupted"
	NodeResumed     NodeStatus = "resumed"
	NodeSucceeded   NodeStatus = "succeeded"
	NodeFailed      NodeStatus = "failed"
	NodeCancelled   NodeStatus = "cancelled"
	NodeSkipped     NodeStatus = "skipped"
)

// CascadeOptions tune a cascade run.
type CascadeOptions struct {
	MaxDepth int            `json:"max_depth,omitempty"`
	Seed     map[string]any `json:"seed,omitempty"`
}

// EffectiveMaxDepth returns MaxDepth, defaulting to DefaultMaxDepth.
func (o CascadeOptions) EffectiveMaxDepth() int {
	if o.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return o.MaxDepth
}

// NodeResult reports one visited node.
type NodeResult struct {
	NodeID   string        `json:"node_id"`
	Name     string        `json:"name"`
	Depth    int           `json:"depth"`
	Success  bool          `json:"success"`
	Status   NodeStatus    `json:"status"`
	Error    string        `json:"error,omitempty"`
	Spawned  bool          `json:"spawned,omitempty"`
	Latency  time.Duration `json:"latency"`
	Usage    Usage         `json:"usage"`
	Response string        `json:"response,omitempty"`
	Action   *ActionResult `json:"action,omitempty"`
}

// CascadeResult is the aggregate report of a run.
type CascadeResult struct {
	RootID            string        `json:"root_id"`
	TraceID           string        `json:"trace_id,omitempty"`
	Status            RunStatus     `json:"status"`
	Results           []NodeResult  `json:"results"`
	Skipped           []string      `json:"skipped,omitempty"`
	DepthLimitReached bool          `json:"depth_limit_reached"`
	Cancelled         bool          `json:"cancelled"`
	StartedAt         time.Time     `json:"started_at"`
	Duration          time.Duration `json:"duration"`
}

// Result returns the entry for nodeID, if visited.
func (r *CascadeResult) Result(nodeID string) (NodeResult, bool) {
	for _, res := range r.Results {
		if res.NodeID == nodeID {
			return res, true
		}
	}
	return NodeResult{}, false
}

// VisitOrder returns the node IDs in the order they were executed.
func (r *CascadeResult) VisitOrder() []string {
	out := make([]string, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, res.NodeID)
	}
	return out
}
