// Package loop drives a task run: it alternates model calls and tool
// dispatch over a session, compacting the history when it nears the
// context budget, until the verifier declares the task done or a budget
// runs out.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stride-agent/stride/pkg/cache"
	"github.com/stride-agent/stride/pkg/compact"
	"github.com/stride-agent/stride/pkg/llm"
	"github.com/stride-agent/stride/pkg/session"
	"github.com/stride-agent/stride/pkg/tools"
	"github.com/stride-agent/stride/pkg/types"
	"github.com/stride-agent/stride/pkg/verify"
)

// Config bounds a single run.
type Config struct {
	// SystemPrompt seeds every session.
	SystemPrompt string
	// MaxSteps bounds loop iterations. Zero means unlimited.
	MaxSteps int
	// WallClock bounds total run time. Zero means unlimited.
	WallClock time.Duration
	// MaxOutputTokens caps each model response.
	MaxOutputTokens int
	// MaxParseRetries bounds re-asks after an empty model response.
	MaxParseRetries int
	// MaxOverflowRetries bounds compact-and-retry cycles after a
	// context overflow rejection.
	MaxOverflowRetries int
}

// Result is the terminal report of a run.
type Result struct {
	FinalText string
	Steps     int
	Usage     types.TokenUsage
	Cost      float64
	Completed bool
	State     verify.State
	Reason    string // set when the run ended without completing
}

// Controller wires the loop's collaborators together for one or more
// runs. Each Run gets a fresh session and verifier state. The meter is
// the same one the verifier and compactor call through, so Result.Usage
// and Result.Cost cover every model call of the run and the cost limit
// binds them all.
type Controller struct {
	meter      *llm.Meter
	registry   *tools.ToolRegistry
	dispatcher *tools.Dispatcher
	compactor  *compact.Engine
	segmenter  *cache.Segmenter
	verifier   *verify.Verifier
	events     *types.EventEmitter
	cfg        Config
	log        *slog.Logger
}

// New creates a controller.
func New(
	meter *llm.Meter,
	registry *tools.ToolRegistry,
	dispatcher *tools.Dispatcher,
	compactor *compact.Engine,
	segmenter *cache.Segmenter,
	verifier *verify.Verifier,
	cfg Config,
	log *slog.Logger,
) *Controller {
	if log == nil {
		log = slog.Default()
	}
	if cfg.MaxParseRetries <= 0 {
		cfg.MaxParseRetries = 3
	}
	if cfg.MaxOverflowRetries <= 0 {
		cfg.MaxOverflowRetries = 2
	}
	return &Controller{
		meter:      meter,
		registry:   registry,
		dispatcher: dispatcher,
		compactor:  compactor,
		segmenter:  segmenter,
		verifier:   verifier,
		events:     types.NewEventEmitter(),
		cfg:        cfg,
		log:        log,
	}
}

// Events returns the controller's event emitter for subscription.
func (c *Controller) Events() *types.EventEmitter {
	return c.events
}

// Run executes the task described by instruction until the verifier
// declares it done or a budget is exhausted. Budget exhaustion is a
// normal result, not an error; only fatal and unrecoverable failures
// return a non-nil error.
func (c *Controller) Run(ctx context.Context, instruction string) (*Result, error) {
	if c.cfg.WallClock > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.WallClock)
		defer cancel()
	}

	sess := session.New(c.cfg.SystemPrompt, instruction)
	res := &Result{State: verify.StateExecuting}
	var runErr error

	var endOnce sync.Once
	end := func() {
		endOnce.Do(func() {
			res.State = c.verifier.State()
			res.Usage = c.meter.Usage()
			res.Cost = c.meter.Cost()
			c.events.Emit(types.AgentEvent{
				Type:    types.EventRunEnd,
				Step:    res.Steps,
				Content: res.Reason,
				Error:   runErr,
			})
		})
	}
	defer end()

	c.events.Emit(types.AgentEvent{Type: types.EventRunStart, Content: instruction})
	c.log.Info("run started", "session", sess.ID(), "instruction", truncateForLog(instruction))

	for step := 1; ; step++ {
		if c.cfg.MaxSteps > 0 && step > c.cfg.MaxSteps {
			res.Reason = fmt.Sprintf("step budget exhausted after %d steps", c.cfg.MaxSteps)
			c.log.Warn("run stopped", "reason", res.Reason)
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			res.Reason = "time budget exhausted"
			c.log.Warn("run stopped", "reason", res.Reason, "error", err)
			return res, nil
		}
		res.Steps = step
		c.events.Emit(types.AgentEvent{Type: types.EventStepStart, Step: step})

		if c.compactor.NeedsCompaction(sess) {
			c.events.Emit(types.AgentEvent{
				Type:    types.EventCompaction,
				Step:    step,
				Content: fmt.Sprintf("%d tokens", sess.TotalTokens()),
			})
			if err := c.compactor.Compact(ctx, sess); err != nil {
				runErr = fmt.Errorf("compaction failed: %w", err)
				return res, runErr
			}
		}

		resp, err := c.complete(ctx, sess, res)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				res.Reason = "time budget exhausted"
				c.log.Warn("run stopped", "reason", res.Reason)
				return res, nil
			}
			runErr = err
			return res, runErr
		}

		if len(resp.ToolCalls) > 0 {
			c.verifier.OnActivity()
			c.appendAssistantTurn(sess, resp)
			c.dispatchAll(ctx, sess, resp.ToolCalls, step)
			continue
		}

		// No tool calls: the model is claiming completion.
		c.appendAssistantTurn(sess, resp)
		c.events.Emit(types.AgentEvent{Type: types.EventVerify, Step: step})
		outcome, verr := c.verifier.OnCompletionSignal(ctx, instruction, resp.Content)
		if verr != nil {
			runErr = fmt.Errorf("verification failed: %w", verr)
			return res, runErr
		}
		if outcome.State == verify.StateDone {
			res.Completed = true
			res.FinalText = resp.Content
			c.log.Info("run completed", "steps", step, "tokens", res.Usage.Total())
			return res, nil
		}
		if outcome.Feedback != "" {
			sess.Append(types.NewTextTurn(types.RoleUser, outcome.Feedback))
		}
	}
}

// complete performs one model call, retrying context overflows with a
// compaction in between and re-asking on empty responses. The meter
// does the usage and cost accounting; this only snapshots its totals
// into the result.
func (c *Controller) complete(ctx context.Context, sess *session.Session, res *Result) (*types.ChatResponse, error) {
	overflows := 0
	reasks := 0
	var extra []types.Turn

	for {
		turns := sess.Turns()
		plan := cache.Plan{}
		if c.meter.SupportsBreakpoints() {
			plan = c.segmenter.PlanFor(turns, sess.Epoch())
		}
		if len(extra) > 0 {
			turns = append(turns, extra...)
		}
		c.events.Emit(types.AgentEvent{Type: types.EventModelCall, Step: res.Steps})

		resp, err := c.meter.Complete(ctx, llm.Request{
			Turns:       turns,
			Tools:       c.registry.GetDefinitions(),
			Breakpoints: plan,
			MaxTokens:   c.cfg.MaxOutputTokens,
		})
		res.Usage = c.meter.Usage()
		res.Cost = c.meter.Cost()
		if err != nil {
			if llm.IsContextOverflow(err) && overflows < c.cfg.MaxOverflowRetries {
				overflows++
				c.log.Warn("context overflow, compacting and retrying", "attempt", overflows)
				if cerr := c.compactor.Compact(ctx, sess); cerr != nil {
					return nil, fmt.Errorf("compaction after overflow failed: %w", cerr)
				}
				extra = nil
				continue
			}
			return nil, err
		}

		if strings.TrimSpace(resp.Content) == "" && len(resp.ToolCalls) == 0 {
			reasks++
			if reasks >= c.cfg.MaxParseRetries {
				return nil, &llm.ParseError{Detail: "model returned empty responses repeatedly"}
			}
			c.log.Warn("empty model response, re-asking", "attempt", reasks)
			// The correction turn is not persisted in the session.
			extra = []types.Turn{types.NewTextTurn(types.RoleUser,
				"Your previous response was empty. Respond with either tool calls to continue the task or a final answer.")}
			continue
		}
		return resp, nil
	}
}

// appendAssistantTurn records a model response in the session.
func (c *Controller) appendAssistantTurn(sess *session.Session, resp *types.ChatResponse) {
	turn := types.Turn{
		Role:      types.RoleAssistant,
		ToolCalls: resp.ToolCalls,
		Cacheable: true,
	}
	if resp.Content != "" {
		turn.Blocks = []types.ContentBlock{types.TextBlock(resp.Content)}
	}
	sess.Append(turn)
}

// dispatchAll runs the step's tool calls in order and appends their
// results as observation turns.
func (c *Controller) dispatchAll(ctx context.Context, sess *session.Session, calls []types.ToolCall, step int) {
	for _, call := range calls {
		c.events.Emit(types.AgentEvent{Type: types.EventToolStart, Step: step, ToolName: call.Name})
		outcome := c.dispatcher.Invoke(ctx, call)
		c.events.Emit(types.AgentEvent{
			Type:     types.EventToolEnd,
			Step:     step,
			ToolName: call.Name,
			Content:  string(outcome.Status),
		})
		sess.Append(types.Turn{
			Role: types.RoleTool,
			Blocks: []types.ContentBlock{types.ToolResultBlock(outcome.Result, types.ToolResultPayload{
				ToolCallID: call.ID,
				ExitStatus: outcome.ExitStatus,
				Truncated:  outcome.Truncated,
				TimedOut:   outcome.Status == types.ToolStatusTimeout,
			})},
			Cacheable: true,
		})
	}
}

func truncateForLog(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
