package dynamodb

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"conceptgraph/application/ports"
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/observability"
)

// masteryItem is a learner's recorded proficiency for one concept
type masteryItem struct {
	PK        string  `dynamodbav:"PK"`
	SK        string  `dynamodbav:"SK"`
	Level     float64 `dynamodbav:"Level"`
	UpdatedAt string  `dynamodbav:"UpdatedAt"`
}

// MasteryRepository reads learner mastery written by the study tracker
type MasteryRepository struct {
	table
}

var _ ports.MasteryLookup = (*MasteryRepository)(nil)

// NewMasteryRepository creates a new mastery reader
func NewMasteryRepository(client Client, cfg TableConfig, metrics *observability.Collector, logger *zap.Logger) *MasteryRepository {
	return &MasteryRepository{table: newTable(client, cfg, metrics, logger)}
}

// MasteryLevel returns the stored level clamped to [0,1]. A learner with no
// record for the concept has mastery 0.
func (r *MasteryRepository) MasteryLevel(ctx context.Context, userID string, nodeID valueobjects.ConceptID) (level float64, err error) {
	started := time.Now()
	defer func() { r.record("GetMastery", started, err) }()

	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(r.cfg.TableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(userID)},
			"SK": &types.AttributeValueMemberS{Value: masterySK(nodeID.String())},
		},
		ProjectionExpression: aws.String("#level"),
		ExpressionAttributeNames: map[string]string{
			"#level": "Level",
		},
	})
	if err != nil {
		return 0, classifyError("GetMastery", err)
	}
	if out.Item == nil {
		return 0, nil
	}

	var item masteryItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return 0, fmt.Errorf("failed to unmarshal mastery: %w", err)
	}

	switch {
	case item.Level < 0:
		return 0, nil
	case item.Level > 1:
		return 1, nil
	}
	return item.Level, nil
}
