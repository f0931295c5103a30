package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/cascade/internal/logging"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/aretw0/cascade/pkg/ports"
	"github.com/aretw0/cascade/pkg/registry"
	"github.com/aretw0/cascade/pkg/schema"
)

// ActionProcessor turns a node's raw response into tree mutations.
// It never returns an error: every failure is reported in the ActionResult.
type ActionProcessor struct {
	store     ports.TreeStore
	confirmer ports.Confirmer
	handlers  *registry.Registry
	paths     *PathEvaluator
	state     *RunState
	hooks     domain.LifecycleHooks
	logger    *slog.Logger
	now       func() time.Time
}

// NewActionProcessor creates a processor. A nil confirmer approves every preview.
func NewActionProcessor(store ports.TreeStore, confirmer ports.Confirmer, handlers *registry.Registry) *ActionProcessor {
	paths := NewPathEvaluator()
	if handlers == nil {
		handlers = NewDefaultRegistry(paths)
	}
	return &ActionProcessor{
		store:     store,
		confirmer: confirmer,
		handlers:  handlers,
		paths:     paths,
		logger:    logging.NewNop(),
		now:       time.Now,
	}
}

// Process parses raw, validates it against the node's post-action, asks for
// confirmation and applies the mutation.
func (p *ActionProcessor) Process(ctx context.Context, node *domain.PromptNode, raw string, scope *domain.VariableScope) domain.ActionResult {
	res := domain.ActionResult{PostAction: node.PostAction}
	var parsed any
	defer func() { p.finish(ctx, node, &res, parsed) }()

	if !node.IsConsistent() {
		p.logger.WarnContext(ctx, "node type and post action disagree",
			"node_id", node.ID, "node_type", node.NodeType, "post_action", node.PostAction)
	}

	cfg, cfgErr := DecodeActionConfig(node.PostActionConfig)
	extract := ExtractJSON
	if cfgErr == nil && cfg.RepairJSON {
		extract = RepairJSON
	}
	var err error
	parsed, err = extract(raw)
	if err != nil {
		fail(&res, domain.CodeJSONParse, err)
		return res
	}
	if cfgErr != nil {
		fail(&res, domain.CodeValidation, cfgErr)
		return res
	}

	if node.PostAction == "" {
		fail(&res, domain.CodeUnknownAction, fmt.Errorf("%w: node %s has no post action", domain.ErrUnknownPostAction, node.ID))
		return res
	}
	handler, err := p.handlers.Get(node.PostAction)
	if err != nil {
		fail(&res, domain.CodeUnknownAction, err)
		return res
	}

	target, err := p.resolveTarget(ctx, node, cfg)
	if err != nil {
		fail(&res, domain.CodeTargetNotFound, err)
		return res
	}
	res.TargetParentID = target

	req := &registry.Request{
		Node:           node,
		Parsed:         parsed,
		Config:         cfg,
		TargetParentID: target,
		Scope:          scope,
		Store:          p.store,
	}
	plan, err := handler.Validate(req)
	if err != nil {
		fail(&res, domain.CodeValidation, err)
		res.AvailableArrays = FindArrays(parsed)
		return res
	}
	if plan == nil {
		plan = &registry.Plan{}
	}
	req.Plan = plan

	if len(plan.Items) > 0 && !cfg.SkipPreview {
		ok, err := p.confirm(ctx, domain.ActionPreview{
			NodeID:         node.ID,
			NodeName:       node.Name,
			PostAction:     node.PostAction,
			TargetParentID: target,
			Items:          plan.Items,
			ChildNames:     plan.Names,
			Config:         node.PostActionConfig,
		})
		if err != nil {
			fail(&res, domain.CodeConfirmation, err)
			return res
		}
		if !ok {
			res.Status = domain.ActionCancelled
			res.Reason = domain.ReasonUserCancelled
			return res
		}
	}

	created, err := handler.Execute(ctx, req)
	res.Children = created
	res.CreatedCount = len(created)
	if err != nil {
		fail(&res, domain.CodeExecution, err)
		return res
	}

	res.Status = domain.ActionSucceeded
	res.Assigned = p.assign(ctx, node, parsed, scope)
	return res
}

func (p *ActionProcessor) confirm(ctx context.Context, preview domain.ActionPreview) (bool, error) {
	if p.confirmer == nil {
		return true, nil
	}
	p.state.setPendingPreview(&preview)
	defer p.state.setPendingPreview(nil)
	return p.confirmer.Confirm(ctx, preview)
}

func (p *ActionProcessor) resolveTarget(ctx context.Context, node *domain.PromptNode, cfg domain.ActionConfig) (string, error) {
	switch cfg.Placement {
	case domain.PlaceParent:
		if node.ParentID == "" {
			return node.ID, nil
		}
		return node.ParentID, nil
	case domain.PlaceSpecific:
		target, err := p.store.GetNode(ctx, cfg.TargetPromptID)
		if err != nil {
			return "", fmt.Errorf("target prompt %s: %w", cfg.TargetPromptID, err)
		}
		return target.ID, nil
	default:
		return node.ID, nil
	}
}

// assign publishes configured values from parsed output into the scope.
// Values that fail their declared type are skipped.
func (p *ActionProcessor) assign(ctx context.Context, node *domain.PromptNode, parsed any, scope *domain.VariableScope) map[string]any {
	cfg := node.VariableAssignmentsConfig
	if cfg == nil || !cfg.Enabled || scope == nil {
		return nil
	}
	values := make(map[string]any)
	types := make(map[string]string)
	for _, a := range cfg.Assignments {
		v, err := p.paths.Eval(a.Path, parsed)
		if err != nil {
			p.logger.WarnContext(ctx, "variable assignment failed", "node_id", node.ID, "name", a.Name, "path", a.Path, "error", err)
			continue
		}
		if v == nil {
			continue
		}
		values[a.Name] = v
		if a.Type != "" {
			types[a.Name] = a.Type
		}
	}

	rejected := map[string]bool{}
	if sch, err := schema.ParseTypeMap(types); err != nil {
		p.logger.WarnContext(ctx, "invalid variable types", "node_id", node.ID, "error", err)
		for name := range types {
			rejected[name] = true
		}
	} else if err := schema.Validate(sch, values); err != nil {
		rejected = schema.FailedKeys(err)
		for _, e := range schema.ValidationErrors(err) {
			p.logger.WarnContext(ctx, "variable type mismatch", "node_id", node.ID, "error", e)
		}
	}

	assigned := make(map[string]any)
	for _, a := range cfg.Assignments {
		v, ok := values[a.Name]
		if !ok || rejected[a.Name] {
			continue
		}
		if _, done := assigned[a.Name]; done {
			continue
		}
		if !scope.Set(a.Name, v) {
			p.logger.DebugContext(ctx, "variable already bound", "node_id", node.ID, "name", a.Name)
			continue
		}
		assigned[a.Name] = v
	}
	return assigned
}

func (p *ActionProcessor) finish(ctx context.Context, node *domain.PromptNode, res *domain.ActionResult, parsed any) {
	record := &domain.ActionRecord{
		Status:          res.Status,
		PostAction:      res.PostAction,
		CreatedCount:    res.CreatedCount,
		TargetParentID:  res.TargetParentID,
		ErrorCode:       res.ErrorCode,
		Error:           res.Error,
		AvailableArrays: res.AvailableArrays,
		ExecutedAt:      p.now(),
	}
	update := domain.NodeUpdate{LastActionResult: record}
	switch v := parsed.(type) {
	case map[string]any:
		update.ExtractedVariables = v
	case nil:
	default:
		update.ExtractedVariables = map[string]any{"value": v}
	}
	if err := p.store.UpdateNode(ctx, node.ID, update); err != nil && !errors.Is(err, context.Canceled) {
		p.logger.WarnContext(ctx, "failed to persist action result", "node_id", node.ID, "error", err)
	}

	level := slog.LevelInfo
	if res.Status != domain.ActionSucceeded {
		level = slog.LevelWarn
	}
	p.logger.Log(ctx, level, "post action finished",
		"node_id", node.ID, "action", res.PostAction, "status", res.Status,
		"created", res.CreatedCount, "code", res.ErrorCode)

	if p.hooks.OnAction != nil {
		p.hooks.OnAction(ctx, &domain.ActionEvent{
			EventBase: domain.EventBase{Timestamp: p.now(), Type: domain.EventAction},
			NodeID:    node.ID,
			Result:    *res,
		})
	}
}

func fail(res *domain.ActionResult, code string, err error) {
	res.Status = domain.ActionFailed
	res.ErrorCode = code
	res.Error = err.Error()
}
