package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"conceptgraph/application/services"
	"conceptgraph/domain/core/valueobjects"
	domainservices "conceptgraph/domain/services"
)

// repairer is the part of RelationshipService the job drives
type repairer interface {
	FixCycles(ctx context.Context, scope valueobjects.ScopeID) (*services.RepairReport, error)
	Health(ctx context.Context, scope valueobjects.ScopeID) (*domainservices.HealthReport, error)
}

// repairDetail is the detail of the scheduled EventBridge rule, e.g.
// {"scopes": ["calculus-1", "linear-algebra"]}
type repairDetail struct {
	Scopes []string `json:"scopes"`
	Scope  string   `json:"scope,omitempty"`
}

// ScopeSummary is the outcome for one scope
type ScopeSummary struct {
	Scope        string  `json:"scope"`
	CyclesFound  int     `json:"cycles_found"`
	EdgesRemoved int     `json:"edges_removed"`
	Remaining    int     `json:"cycles_remaining"`
	Score        float64 `json:"score"`
	Orphans      int     `json:"orphans"`
	DeepNodes    int     `json:"deep_nodes"`
	Error        string  `json:"error,omitempty"`
}

// Response is returned to the invoker and lands in the Lambda logs
type Response struct {
	Scopes []ScopeSummary `json:"scopes"`
	Failed int            `json:"failed"`
}

type repairHandler struct {
	svc    repairer
	logger *zap.Logger
}

func parseScopes(raw json.RawMessage) ([]valueobjects.ScopeID, error) {
	var detail repairDetail
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &detail); err != nil {
			return nil, fmt.Errorf("invalid event detail: %w", err)
		}
	}
	if detail.Scope != "" {
		detail.Scopes = append(detail.Scopes, detail.Scope)
	}

	seen := make(map[string]bool, len(detail.Scopes))
	scopes := make([]valueobjects.ScopeID, 0, len(detail.Scopes))
	for _, s := range detail.Scopes {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		scopes = append(scopes, valueobjects.ScopeID(s))
	}
	if len(scopes) == 0 {
		return nil, fmt.Errorf("event detail names no scopes")
	}
	return scopes, nil
}

// Handle repairs every scope named in the event. One failing scope does not
// stop the others; the invocation fails only when every scope failed.
func (h *repairHandler) Handle(ctx context.Context, event events.CloudWatchEvent) (*Response, error) {
	scopes, err := parseScopes(event.Detail)
	if err != nil {
		h.logger.Error("Rejected repair event", zap.String("eventID", event.ID), zap.Error(err))
		return nil, err
	}

	resp := &Response{Scopes: make([]ScopeSummary, 0, len(scopes))}
	for _, scope := range scopes {
		summary := h.repair(ctx, scope)
		if summary.Error != "" {
			resp.Failed++
		}
		resp.Scopes = append(resp.Scopes, summary)
	}

	h.logger.Info("Scheduled cycle repair finished",
		zap.String("eventID", event.ID),
		zap.Int("scopes", len(scopes)),
		zap.Int("failed", resp.Failed))

	if resp.Failed == len(scopes) {
		return resp, fmt.Errorf("cycle repair failed for all %d scopes", len(scopes))
	}
	return resp, nil
}

func (h *repairHandler) repair(ctx context.Context, scope valueobjects.ScopeID) ScopeSummary {
	summary := ScopeSummary{Scope: scope.String()}

	report, err := h.svc.FixCycles(ctx, scope)
	if report != nil {
		summary.CyclesFound = report.CyclesFound
		summary.EdgesRemoved = len(report.Removed)
		summary.Remaining = len(report.Remaining)
	}
	if err != nil {
		h.logger.Error("Cycle repair failed", zap.String("scope", scope.String()), zap.Error(err))
		summary.Error = err.Error()
		return summary
	}

	health, err := h.svc.Health(ctx, scope)
	if err != nil {
		h.logger.Error("Health check failed", zap.String("scope", scope.String()), zap.Error(err))
		summary.Error = err.Error()
		return summary
	}
	summary.Score = health.Score
	summary.Orphans = len(health.Orphans)
	summary.DeepNodes = len(health.DeepNodes)

	if summary.Remaining > 0 {
		h.logger.Warn("Cycles remain after repair",
			zap.String("scope", scope.String()),
			zap.Int("remaining", summary.Remaining))
	}
	return summary
}
