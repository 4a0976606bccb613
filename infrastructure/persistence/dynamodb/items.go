package dynamodb

import (
	"fmt"

	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/utils"
)

// conceptItem is the stored shape of a ConceptNode
type conceptItem struct {
	PK         string  `dynamodbav:"PK"`
	SK         string  `dynamodbav:"SK"`
	GSI1PK     string  `dynamodbav:"GSI1PK"`
	GSI1SK     string  `dynamodbav:"GSI1SK"`
	EntityType string  `dynamodbav:"EntityType"`
	ConceptID  string  `dynamodbav:"ConceptID"`
	Scope      string  `dynamodbav:"Scope"`
	Name       string  `dynamodbav:"Name"`
	Difficulty int     `dynamodbav:"Difficulty"`
	Importance float64 `dynamodbav:"Importance"`
	Level      string  `dynamodbav:"Level,omitempty"`
	ParentName string  `dynamodbav:"ParentName,omitempty"`
	Active     bool    `dynamodbav:"Active"`
}

func toConceptItem(n *entities.ConceptNode) conceptItem {
	return conceptItem{
		PK:         conceptPK(n.ID.String()),
		SK:         sortKeyMetadata,
		GSI1PK:     scopeGSI(n.Scope.String()),
		GSI1SK:     conceptPK(n.ID.String()),
		EntityType: entityConcept,
		ConceptID:  n.ID.String(),
		Scope:      n.Scope.String(),
		Name:       n.Name,
		Difficulty: n.Difficulty,
		Importance: n.Importance,
		Level:      string(n.Level),
		ParentName: n.ParentName,
		Active:     n.Active,
	}
}

func (i conceptItem) toEntity() *entities.ConceptNode {
	return &entities.ConceptNode{
		ID:         valueobjects.ConceptID(i.ConceptID),
		Scope:      valueobjects.ScopeID(i.Scope),
		Name:       i.Name,
		Difficulty: i.Difficulty,
		Importance: i.Importance,
		Level:      entities.Level(i.Level),
		ParentName: i.ParentName,
		Active:     i.Active,
	}
}

// edgeItem is the stored shape of a ConceptEdge
type edgeItem struct {
	PK         string  `dynamodbav:"PK"`
	SK         string  `dynamodbav:"SK"`
	GSI1PK     string  `dynamodbav:"GSI1PK"`
	GSI1SK     string  `dynamodbav:"GSI1SK"`
	GSI2PK     string  `dynamodbav:"GSI2PK"`
	GSI2SK     string  `dynamodbav:"GSI2SK"`
	EntityType string  `dynamodbav:"EntityType"`
	EdgeID     string  `dynamodbav:"EdgeID"`
	Scope      string  `dynamodbav:"Scope"`
	SourceID   string  `dynamodbav:"SourceID"`
	TargetID   string  `dynamodbav:"TargetID"`
	EdgeType   string  `dynamodbav:"EdgeType"`
	Weight     float64 `dynamodbav:"Weight"`
	Strength   string  `dynamodbav:"Strength,omitempty"`
	Active     bool    `dynamodbav:"Active"`
	Reasoning  string  `dynamodbav:"Reasoning,omitempty"`
	Depth      *int    `dynamodbav:"Depth,omitempty"`
	CreatedAt  string  `dynamodbav:"CreatedAt"`
	UpdatedAt  string  `dynamodbav:"UpdatedAt"`
}

func toEdgeItem(scope valueobjects.ScopeID, e *entities.ConceptEdge) edgeItem {
	id := e.ID.String()
	return edgeItem{
		PK:         edgePK(id),
		SK:         sortKeyMetadata,
		GSI1PK:     sourceGSI(e.SourceID.String()),
		GSI1SK:     edgePK(id),
		GSI2PK:     targetGSI(e.TargetID.String()),
		GSI2SK:     edgePK(id),
		EntityType: entityEdge,
		EdgeID:     id,
		Scope:      scope.String(),
		SourceID:   e.SourceID.String(),
		TargetID:   e.TargetID.String(),
		EdgeType:   string(e.Type),
		Weight:     e.Weight,
		Strength:   string(e.Strength),
		Active:     e.Active,
		Reasoning:  e.Reasoning,
		Depth:      e.Depth,
		CreatedAt:  utils.FormatRFC3339(e.CreatedAt),
		UpdatedAt:  utils.FormatRFC3339(e.UpdatedAt),
	}
}

func (i edgeItem) toEntity() (*entities.ConceptEdge, error) {
	createdAt, err := utils.ParseRFC3339(i.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("edge %s: invalid CreatedAt: %w", i.EdgeID, err)
	}
	updatedAt, err := utils.ParseRFC3339(i.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("edge %s: invalid UpdatedAt: %w", i.EdgeID, err)
	}
	return &entities.ConceptEdge{
		ID:        valueobjects.EdgeID(i.EdgeID),
		SourceID:  valueobjects.ConceptID(i.SourceID),
		TargetID:  valueobjects.ConceptID(i.TargetID),
		Type:      entities.RelationshipType(i.EdgeType),
		Weight:    i.Weight,
		Strength:  entities.Strength(i.Strength),
		Active:    i.Active,
		Reasoning: i.Reasoning,
		Depth:     i.Depth,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}, nil
}
