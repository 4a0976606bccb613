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
	"conceptgraph/pkg/observability"
)

// TableConfig names the table and the two secondary indexes
type TableConfig struct {
	TableName   string
	SourceIndex string // GSI1: concepts by scope, edges by source
	TargetIndex string // GSI2: edges by target
}

// table bundles what every repository in this package needs
type table struct {
	client  Client
	cfg     TableConfig
	metrics *observability.Collector
	logger  *zap.Logger
}

func newTable(client Client, cfg TableConfig, metrics *observability.Collector, logger *zap.Logger) table {
	if cfg.SourceIndex == "" {
		cfg.SourceIndex = "GSI1"
	}
	if cfg.TargetIndex == "" {
		cfg.TargetIndex = "GSI2"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return table{client: client, cfg: cfg, metrics: metrics, logger: logger}
}

func (t table) record(operation string, started time.Time, err error) {
	if t.metrics != nil {
		t.metrics.RecordDBOperation(operation, t.cfg.TableName, started, err)
	}
}

// query runs a paginated Query and returns every item
func (t table) query(ctx context.Context, input *dynamodb.QueryInput) ([]map[string]types.AttributeValue, error) {
	var items []map[string]types.AttributeValue
	for {
		out, err := t.client.Query(ctx, input)
		if err != nil {
			return nil, err
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}
}

// NodeRepository implements ports.NodeRepository
type NodeRepository struct {
	table
}

var _ ports.NodeRepository = (*NodeRepository)(nil)

// NewNodeRepository creates a new concept repository
func NewNodeRepository(client Client, cfg TableConfig, metrics *observability.Collector, logger *zap.Logger) *NodeRepository {
	return &NodeRepository{table: newTable(client, cfg, metrics, logger)}
}

// Get retrieves a concept by ID; (nil, nil) when absent
func (r *NodeRepository) Get(ctx context.Context, id valueobjects.ConceptID) (node *entities.ConceptNode, err error) {
	started := time.Now()
	defer func() { r.record("GetConcept", started, err) }()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.cfg.TableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: conceptPK(id.String())},
			"SK": &types.AttributeValueMemberS{Value: sortKeyMetadata},
		},
	})
	if err != nil {
		return nil, classifyError("GetConcept", err)
	}
	if out.Item == nil {
		return nil, nil
	}

	var item conceptItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal concept: %w", err)
	}
	return item.toEntity(), nil
}

// ListActive retrieves every active concept of a scope ordered by ID
func (r *NodeRepository) ListActive(ctx context.Context, scope valueobjects.ScopeID) (nodes []*entities.ConceptNode, err error) {
	started := time.Now()
	defer func() { r.record("ListConcepts", started, err) }()

	keyEx := expression.Key("GSI1PK").Equal(expression.Value(scopeGSI(scope.String())))
	filter := expression.Name("Active").Equal(expression.Value(true))
	expr, err := expression.NewBuilder().
		WithKeyCondition(keyEx).
		WithFilter(filter).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	items, err := r.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(r.cfg.TableName),
		IndexName:                 aws.String(r.cfg.SourceIndex),
		KeyConditionExpression:    expr.KeyCondition(),
		FilterExpression:          expr.Filter(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		return nil, classifyError("ListConcepts", err)
	}

	nodes = make([]*entities.ConceptNode, 0, len(items))
	for _, raw := range items {
		var item conceptItem
		if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
			r.logger.Warn("Skipping malformed concept item",
				zap.String("scope", scope.String()),
				zap.Error(err))
			continue
		}
		nodes = append(nodes, item.toEntity())
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })

	r.logger.Debug("Listed concepts",
		zap.String("scope", scope.String()),
		zap.Int("count", len(nodes)))
	return nodes, nil
}

// Save persists a concept (create or update)
func (r *NodeRepository) Save(ctx context.Context, node *entities.ConceptNode) (err error) {
	if err := node.Validate(); err != nil {
		return err
	}

	started := time.Now()
	defer func() { r.record("SaveConcept", started, err) }()

	av, err := attributevalue.MarshalMap(toConceptItem(node))
	if err != nil {
		return fmt.Errorf("failed to marshal concept: %w", err)
	}

	if _, err := r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(r.cfg.TableName),
		Item:      av,
	}); err != nil {
		r.logger.Error("Failed to save concept",
			zap.String("conceptID", node.ID.String()),
			zap.Error(err))
		return classifyError("SaveConcept", err)
	}
	return nil
}
