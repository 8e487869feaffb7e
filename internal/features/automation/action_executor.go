package automation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Altroz1812/wfm-sep-loanzen/internal/features/workflow"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"
	"go.uber.org/zap"
)

const defaultScriptTimeout = 5 * time.Second

// ActionExecutor runs one auto-rule action for a case.
type ActionExecutor interface {
	ExecuteAction(ctx context.Context, req DispatchRequest, rule workflow.AutoRule) error
}

type ActionExecutorImpl struct {
	endpoint      AutomationEndpoint
	logger        *zap.Logger
	scriptTimeout time.Duration
}

func NewActionExecutor(endpoint AutomationEndpoint, logger *zap.Logger) ActionExecutor {
	return &ActionExecutorImpl{
		endpoint:      endpoint,
		logger:        logger,
		scriptTimeout: defaultScriptTimeout,
	}
}

func (e *ActionExecutorImpl) ExecuteAction(ctx context.Context, req DispatchRequest, rule workflow.AutoRule) error {
	action, err := ParseAction(rule.Action)
	if err != nil {
		return err
	}

	switch action.Kind {
	case ActionCall:
		return e.executeCall(ctx, req, action.Target, rule.Params)
	case ActionScript:
		return e.executeScript(ctx, req, action.Target, rule.Params)
	default:
		return fmt.Errorf("unsupported action type: %s", action.Kind)
	}
}

func (e *ActionExecutorImpl) executeCall(ctx context.Context, req DispatchRequest, endpoint string, params map[string]any) error {
	if e.endpoint == nil {
		return fmt.Errorf("no automation endpoint configured for %q", endpoint)
	}
	result, err := e.endpoint.Call(ctx, req.TenantID, req.CaseID, endpoint, params)
	if err != nil {
		return err
	}
	e.logger.Debug("automation endpoint called",
		zap.String("tenant_id", req.TenantID),
		zap.String("case_id", req.CaseID),
		zap.String("endpoint", endpoint),
		zap.Int("result_keys", len(result)),
	)
	return nil
}

// executeScript runs params["script"] with tenant_id, case_id, stage, params
// and data in scope.
func (e *ActionExecutorImpl) executeScript(ctx context.Context, req DispatchRequest, name string, params map[string]any) error {
	source, _ := params["script"].(string)
	if source == "" {
		return fmt.Errorf("script %q has no source", name)
	}

	data, err := plain(req.Data)
	if err != nil {
		return fmt.Errorf("script %q: %w", name, err)
	}
	scriptParams, err := plain(params)
	if err != nil {
		return fmt.Errorf("script %q: %w", name, err)
	}

	script := tengo.NewScript([]byte(source))
	script.SetImports(stdlib.GetModuleMap("math", "text", "times", "fmt", "json"))
	for k, v := range map[string]any{
		"tenant_id": req.TenantID,
		"case_id":   req.CaseID,
		"stage":     req.Stage,
		"params":    scriptParams,
		"data":      data,
		"result":    nil,
	} {
		if err := script.Add(k, v); err != nil {
			return fmt.Errorf("script %q: bind %s: %w", name, k, err)
		}
	}

	compiled, err := script.Compile()
	if err != nil {
		return fmt.Errorf("failed to compile script %q: %w", name, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.scriptTimeout)
	defer cancel()
	if err := compiled.RunContext(runCtx); err != nil {
		return fmt.Errorf("failed to run script %q: %w", name, err)
	}
	// A script fails a rule by assigning an error value to result.
	if failed, ok := compiled.Get("result").Object().(*tengo.Error); ok {
		msg, _ := tengo.ToString(failed.Value)
		return fmt.Errorf("script %q: %s", name, msg)
	}

	e.logger.Debug("executed script",
		zap.String("tenant_id", req.TenantID),
		zap.String("case_id", req.CaseID),
		zap.String("script", name),
	)
	return nil
}

// plain converts v into the map/slice/scalar shapes tengo can bind.
func plain(v map[string]any) (map[string]any, error) {
	if v == nil {
		return map[string]any{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
