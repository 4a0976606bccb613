package dynamodb

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"conceptgraph/application/ports"
	"conceptgraph/domain/core/entities"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/errors"
	"conceptgraph/pkg/observability"
	"conceptgraph/pkg/utils"
)

// EdgeRepository implements ports.EdgeRepository. Outgoing edges are read
// from GSI1 and incoming edges from GSI2.
type EdgeRepository struct {
	table
	now func() time.Time
}

var _ ports.EdgeRepository = (*EdgeRepository)(nil)

// NewEdgeRepository creates a new relationship repository
func NewEdgeRepository(client Client, cfg TableConfig, metrics *observability.Collector, logger *zap.Logger) *EdgeRepository {
	return &EdgeRepository{table: newTable(client, cfg, metrics, logger), now: time.Now}
}

// Outgoing returns active edges whose source is nodeID
func (r *EdgeRepository) Outgoing(ctx context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error) {
	return r.queryEdges(ctx, "OutgoingEdges", r.cfg.SourceIndex, "GSI1PK", sourceGSI(nodeID.String()), filter)
}

// Incoming returns active edges whose target is nodeID
func (r *EdgeRepository) Incoming(ctx context.Context, nodeID valueobjects.ConceptID, filter ...entities.RelationshipType) ([]*entities.ConceptEdge, error) {
	return r.queryEdges(ctx, "IncomingEdges", r.cfg.TargetIndex, "GSI2PK", targetGSI(nodeID.String()), filter)
}

func (r *EdgeRepository) queryEdges(
	ctx context.Context,
	operation, index, keyName, keyValue string,
	filter []entities.RelationshipType,
) (edges []*entities.ConceptEdge, err error) {
	started := time.Now()
	defer func() { r.record(operation, started, err) }()

	keyEx := expression.Key(keyName).Equal(expression.Value(keyValue))
	cond := expression.Name("Active").Equal(expression.Value(true))
	if len(filter) > 0 {
		others := make([]expression.OperandBuilder, 0, len(filter)-1)
		for _, t := range filter[1:] {
			others = append(others, expression.Value(string(t)))
		}
		cond = cond.And(expression.Name("EdgeType").In(expression.Value(string(filter[0])), others...))
	}

	expr, err := expression.NewBuilder().
		WithKeyCondition(keyEx).
		WithFilter(cond).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	items, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.cfg.TableName),
		IndexName:                 aws.String(index),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, classifyError(operation, err)
	}

	edges = make([]*entities.ConceptEdge, 0, len(items))
	for _, raw := range items {
		var item edgeItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("Skipping malformed edge item", zap.String("key", keyValue), zap.Error(err))
			continue
		}
		edge, err := item.toEntity()
		if err != nil {
			r.logger.Warn("Skipping malformed edge item", zap.String("key", keyValue), zap.Error(err))
			continue
		}
		edges = append(edges, edge)
	}
	sort.Slice(edges, func(i, j int) bool { return edges[i].ID < edges[j].ID })
	return edges, nil
}

// Deactivate soft-deletes an edge. A missing edge yields ErrEdgeNotFound.
func (r *EdgeRepository) Deactivate(ctx context.Context, edgeID valueobjects.EdgeID) (err error) {
	started := time.Now()
	defer func() { r.record("DeactivateEdge", started, err) }()

	update := expression.Set(expression.Name("Active"), expression.Value(false)).
		Set(expression.Name("UpdatedAt"), expression.Value(utils.FormatRFC3339(r.now())))
	cond := expression.AttributeExists(expression.Name("PK"))

	expr, err := expression.NewBuilder().
		WithUpdate(update).
		WithCondition(cond).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(r.cfg.TableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: edgePK(edgeID.String())},
			"SK": &types.AttributeValueMemberS{Value: sortKeyMetadata},
		},
		UpdateExpression:          expr.Update(),
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			return errors.ErrEdgeNotFound.Clone().WithDetail("edge_id", edgeID.String())
		}
		return classifyError("DeactivateEdge", err)
	}

	r.logger.Debug("Edge deactivated", zap.String("edgeID", edgeID.String()))
	return nil
}

// Upsert creates or replaces an edge
func (r *EdgeRepository) Upsert(ctx context.Context, scope valueobjects.ScopeID, edge *entities.ConceptEdge) (err error) {
	if err := edge.Validate(); err != nil {
		return err
	}

	started := time.Now()
	defer func() { r.record("UpsertEdge", started, err) }()

	av, err := attributevalue.MarshalMap(toEdgeItem(scope, edge))
	if err != nil {
		return fmt.Errorf("failed to marshal edge: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.cfg.TableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("Failed to save edge",
			zap.String("edgeID", edge.ID.String()),
			zap.String("scope", scope.String()),
			zap.Error(err))
		return classifyError("UpsertEdge", err)
	}
	return nil
}
