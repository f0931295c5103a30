package runtime

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/cascade/pkg/domain"
)

// step is one entry of the walker's worklist.
type step struct {
	node    *domain.PromptNode
	depth   int
	spawned bool
}

type outcome struct {
	result domain.NodeResult
	spawn  []*domain.PromptNode
	stop   bool
	fatal  error
}

// RunCascade executes rootID and then every descendant depth-first, in
// sibling order. Children created by an auto-running action are visited
// right after the node that created them.
func (e *Engine) RunCascade(ctx context.Context, rootID string, opts domain.CascadeOptions) (*domain.CascadeResult, error) {
	root, err := e.store.GetSubtree(ctx, rootID)
	if err != nil {
		return nil, fmt.Errorf("load tree %s: %w", rootID, err)
	}
	if len(root.Children) == 0 {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoChildrenToCascade, rootID)
	}
	if err := e.state.begin(e.newID(), domain.ModeCascade, rootID); err != nil {
		return nil, err
	}

	result := &domain.CascadeResult{RootID: rootID, StartedAt: e.now(), Status: domain.RunRunning}
	result.TraceID = e.tel.startTrace(ctx, domain.TraceStart{RootNodeID: rootID, Mode: domain.ModeCascade})
	e.state.setTrace(result.TraceID)

	maxDepth := opts.EffectiveMaxDepth()
	scope := domain.NewVariableScope(opts.Seed)
	e.logger.InfoContext(ctx, "cascade started", "root_id", rootID, "max_depth", maxDepth, "trace_id", result.TraceID)

	var runErr error
	work := []step{{node: root}}
	for len(work) > 0 {
		if e.state.CancelRequested() {
			result.Cancelled = true
			e.logger.InfoContext(ctx, "cascade cancelled", "root_id", rootID)
			break
		}
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		s := work[len(work)-1]
		work = work[:len(work)-1]

		if s.node.ExcludeFromCascade {
			result.Skipped = append(result.Skipped, s.node.ID)
			e.state.setNodeStatus(s.node.ID, domain.NodeSkipped)
			continue
		}
		if s.depth > maxDepth {
			result.DepthLimitReached = true
			e.logger.WarnContext(ctx, "depth limit reached", "node_id", s.node.ID, "depth", s.depth, "max_depth", maxDepth)
			continue
		}

		out := e.visit(ctx, result.TraceID, s, scope)
		result.Results = append(result.Results, out.result)
		if out.fatal != nil {
			runErr = out.fatal
			break
		}
		if out.stop {
			for _, c := range s.node.Children {
				result.Skipped = append(result.Skipped, c.ID)
			}
			continue
		}

		next := make([]step, 0, len(out.spawn)+len(s.node.Children))
		for _, c := range out.spawn {
			next = append(next, step{node: c, depth: s.depth + 1, spawned: true})
		}
		for _, c := range s.node.Children {
			next = append(next, step{node: c, depth: s.depth + 1})
		}
		for i := len(next) - 1; i >= 0; i-- {
			work = append(work, next[i])
		}
	}

	return e.complete(ctx, result, runErr)
}

// visit runs one node and its post-action. Generation failures are fatal;
// cancelled questions and failed actions only stop the node's own subtree.
func (e *Engine) visit(ctx context.Context, traceID string, s step, scope *domain.VariableScope) outcome {
	node := s.node
	res := domain.NodeResult{NodeID: node.ID, Name: node.Name, Depth: s.depth, Spawned: s.spawned}
	var out outcome

	e.state.setCurrent(node.ID)
	started := e.now()
	if e.hooks.OnNodeStart != nil {
		e.hooks.OnNodeStart(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: started, Type: domain.EventNodeStart, TraceID: traceID},
			NodeID:    node.ID,
			NodeName:  node.Name,
			NodeType:  node.EffectiveType(),
			Depth:     s.depth,
			Status:    domain.NodeRunning,
		})
	}
	spanID := e.tel.startSpan(ctx, traceID, domain.SpanStart{NodeID: node.ID, NodeName: node.Name, Model: node.Model, Depth: s.depth})

	exec, err := e.executor.RunNode(ctx, node, scope, nil)
	if err != nil {
		e.tel.failSpan(ctx, spanID, err)
		res.Error = err.Error()
		if errors.Is(err, domain.ErrNodeCancelled) || errors.Is(err, domain.ErrInterrupted) {
			res.Status = domain.NodeCancelled
			out.stop = true
		} else {
			res.Status = domain.NodeFailed
			out.fatal = err
		}
	} else {
		e.tel.completeSpan(ctx, spanID, domain.SpanCompletion{
			Usage:        exec.Usage,
			Latency:      exec.Latency,
			Output:       exec.Response,
			ResponseID:   exec.ResponseID,
			FinishReason: exec.FinishReason,
		})
		res.Success = true
		res.Status = domain.NodeSucceeded
		res.Usage = exec.Usage
		res.Response = exec.Response

		if exec.Node.IsAction() {
			ar := e.actions.Process(ctx, exec.Node, exec.Response, scope)
			res.Action = &ar
			switch ar.Status {
			case domain.ActionFailed:
				res.Success = false
				res.Status = domain.NodeFailed
				res.Error = fmt.Sprintf("%s: %s", ar.ErrorCode, ar.Error)
				out.stop = true
			case domain.ActionSucceeded:
				if exec.Node.AutoRunChildren {
					out.spawn = ar.Children
				}
			}
		}
	}
	res.Latency = e.now().Sub(started)
	e.state.setNodeStatus(node.ID, res.Status)

	if e.hooks.OnNodeFinish != nil {
		e.hooks.OnNodeFinish(ctx, &domain.NodeEvent{
			EventBase: domain.EventBase{Timestamp: e.now(), Type: domain.EventNodeEnd, TraceID: traceID},
			NodeID:    node.ID,
			NodeName:  node.Name,
			NodeType:  node.EffectiveType(),
			Depth:     s.depth,
			Status:    res.Status,
			Latency:   res.Latency,
			Usage:     res.Usage,
			Err:       res.Error,
		})
	}
	e.logger.DebugContext(ctx, "node finished", "node_id", node.ID, "status", res.Status, "depth", s.depth)

	out.result = res
	return out
}
