package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"conceptgraph/application/services"
	"conceptgraph/domain/core/valueobjects"
	domainservices "conceptgraph/domain/services"
)

type fakeRepairer struct {
	fixed  []valueobjects.ScopeID
	broken map[valueobjects.ScopeID]bool
}

func (f *fakeRepairer) FixCycles(_ context.Context, scope valueobjects.ScopeID) (*services.RepairReport, error) {
	f.fixed = append(f.fixed, scope)
	if f.broken[scope] {
		return nil, errors.New("lock timeout")
	}
	return &services.RepairReport{
		Scope:       scope,
		CyclesFound: 1,
		Removed:     []domainservices.RemovedEdge{{}},
	}, nil
}

func (f *fakeRepairer) Health(_ context.Context, scope valueobjects.ScopeID) (*domainservices.HealthReport, error) {
	return &domainservices.HealthReport{
		Scope:   scope,
		Orphans: []valueobjects.ConceptID{"lonely"},
		Score:   98,
	}, nil
}

func scheduled(detail string) events.CloudWatchEvent {
	return events.CloudWatchEvent{
		ID:         "evt-1",
		DetailType: "Scheduled Event",
		Source:     "aws.events",
		Detail:     json.RawMessage(detail),
	}
}

func TestParseScopes(t *testing.T) {
	scopes, err := parseScopes(json.RawMessage(`{"scopes":["calc","algebra","calc",""],"scope":"geometry"}`))
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.ScopeID{"calc", "algebra", "geometry"}, scopes)

	_, err = parseScopes(json.RawMessage(`{}`))
	assert.Error(t, err)

	_, err = parseScopes(nil)
	assert.Error(t, err)

	_, err = parseScopes(json.RawMessage(`{"scopes":`))
	assert.Error(t, err)
}

func TestRepairHandler_Handle(t *testing.T) {
	svc := &fakeRepairer{broken: map[valueobjects.ScopeID]bool{"algebra": true}}
	h := &repairHandler{svc: svc, logger: zap.NewNop()}

	resp, err := h.Handle(context.Background(), scheduled(`{"scopes":["calc","algebra"]}`))
	require.NoError(t, err)
	assert.Equal(t, []valueobjects.ScopeID{"calc", "algebra"}, svc.fixed)
	assert.Equal(t, 1, resp.Failed)

	require.Len(t, resp.Scopes, 2)
	calc := resp.Scopes[0]
	assert.Equal(t, "calc", calc.Scope)
	assert.Equal(t, 1, calc.CyclesFound)
	assert.Equal(t, 1, calc.EdgesRemoved)
	assert.Equal(t, 98.0, calc.Score)
	assert.Equal(t, 1, calc.Orphans)
	assert.Empty(t, calc.Error)

	assert.Equal(t, "lock timeout", resp.Scopes[1].Error)
}

func TestRepairHandler_AllScopesFail(t *testing.T) {
	svc := &fakeRepairer{broken: map[valueobjects.ScopeID]bool{"calc": true}}
	h := &repairHandler{svc: svc, logger: zap.NewNop()}

	resp, err := h.Handle(context.Background(), scheduled(`{"scope":"calc"}`))
	require.Error(t, err)
	assert.Equal(t, 1, resp.Failed)
}

func TestRepairHandler_BadDetail(t *testing.T) {
	h := &repairHandler{svc: &fakeRepairer{}, logger: zap.NewNop()}

	_, err := h.Handle(context.Background(), scheduled(`{"scopes":[]}`))
	assert.Error(t, err)
}
