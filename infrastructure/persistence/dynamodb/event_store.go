package dynamodb

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"conceptgraph/application/ports"
	"conceptgraph/domain/events"
	"conceptgraph/pkg/observability"
	"conceptgraph/pkg/utils"
)

// maxBatchWrite is the DynamoDB limit of items per BatchWriteItem call
const maxBatchWrite = 25

// EventStore keeps the audit trail of relationship decisions and repairs
type EventStore struct {
	table
	retention time.Duration
}

var _ ports.EventStore = (*EventStore)(nil)

// eventRecord represents how events are stored in DynamoDB
type eventRecord struct {
	PK          string                 `dynamodbav:"PK"` // EVENTS#<scope>
	SK          string                 `dynamodbav:"SK"` // EVENT#<timestamp>#<event_id>
	EventID     string                 `dynamodbav:"EventID"`
	EventType   string                 `dynamodbav:"EventType"`
	AggregateID string                 `dynamodbav:"AggregateID"`
	EventData   map[string]interface{} `dynamodbav:"EventData"`
	Timestamp   string                 `dynamodbav:"Timestamp"`
	Version     int                    `dynamodbav:"Version"`

	// TTL for automatic cleanup
	TTL int64 `dynamodbav:"TTL,omitempty"`
}

// NewEventStore creates a new DynamoDB event store. Records expire after
// retention; zero keeps them forever.
func NewEventStore(client Client, cfg TableConfig, retention time.Duration, metrics *observability.Collector, logger *zap.Logger) *EventStore {
	return &EventStore{table: newTable(client, cfg, metrics, logger), retention: retention}
}

// SaveEvents persists domain events in batches of 25
func (es *EventStore) SaveEvents(ctx context.Context, domainEvents []events.DomainEvent) (err error) {
	if len(domainEvents) == 0 {
		return nil
	}

	started := time.Now()
	defer func() { es.record("SaveEvents", started, err) }()

	writeRequests := make([]types.WriteRequest, 0, len(domainEvents))
	for _, event := range domainEvents {
		record, err := es.eventToRecord(event)
		if err != nil {
			return fmt.Errorf("failed to convert event to record: %w", err)
		}

		item, err := attributevalue.MarshalMap(record)
		if err != nil {
			return fmt.Errorf("failed to marshal event record: %w", err)
		}
		writeRequests = append(writeRequests, types.WriteRequest{
			PutRequest: &types.PutRequest{Item: item},
		})
	}

	for i := 0; i < len(writeRequests); i += maxBatchWrite {
		end := i + maxBatchWrite
		if end > len(writeRequests) {
			end = len(writeRequests)
		}

		result, err := es.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				es.cfg.TableName: writeRequests[i:end],
			},
		})
		if err != nil {
			return classifyError("SaveEvents", err)
		}

		// TODO: retry unprocessed items with backoff instead of failing the batch
		if unprocessed := len(result.UnprocessedItems[es.cfg.TableName]); unprocessed > 0 {
			return fmt.Errorf("failed to write %d events", unprocessed)
		}
	}

	es.logger.Debug("Stored audit events", zap.Int("count", len(domainEvents)))
	return nil
}

// GetEvents retrieves the events of a scope, oldest first
func (es *EventStore) GetEvents(ctx context.Context, aggregateID string) (result []events.DomainEvent, err error) {
	started := time.Now()
	defer func() { es.record("GetEvents", started, err) }()

	keyEx := expression.Key("PK").Equal(expression.Value(eventsPK(aggregateID)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyEx).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build expression: %w", err)
	}

	items, err := es.query(ctx, &dynamodb.QueryInput{
		TableName:                 aws.String(es.cfg.TableName),
		KeyConditionExpression:    expr.KeyCondition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
		ScanIndexForward:          aws.Bool(true),
	})
	if err != nil {
		return nil, classifyError("GetEvents", err)
	}

	result = make([]events.DomainEvent, 0, len(items))
	for _, item := range items {
		var record eventRecord
		if err := attributevalue.UnmarshalMap(item, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal event record: %w", err)
		}
		event, err := recordToEvent(record)
		if err != nil {
			return nil, err
		}
		result = append(result, event)
	}
	return result, nil
}

// eventToRecord flattens the typed event into a generic map via JSON
func (es *EventStore) eventToRecord(event events.DomainEvent) (*eventRecord, error) {
	eventBytes, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	eventData := make(map[string]interface{})
	if err := json.Unmarshal(eventBytes, &eventData); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event to map: %w", err)
	}

	timestamp := event.GetTimestamp()
	eventID := uuid.New().String()

	record := &eventRecord{
		PK:          eventsPK(event.GetAggregateID()),
		SK:          fmt.Sprintf("EVENT#%s#%s", timestamp.UTC().Format(time.RFC3339Nano), eventID),
		EventID:     eventID,
		EventType:   event.GetEventType(),
		AggregateID: event.GetAggregateID(),
		EventData:   eventData,
		Timestamp:   utils.FormatRFC3339(timestamp),
		Version:     event.GetVersion(),
	}
	if es.retention > 0 {
		record.TTL = timestamp.Add(es.retention).Unix()
	}
	return record, nil
}

func recordToEvent(record eventRecord) (events.DomainEvent, error) {
	timestamp, err := utils.ParseRFC3339(record.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	return &events.StoredEvent{
		BaseEvent: events.BaseEvent{
			AggregateID: record.AggregateID,
			EventType:   record.EventType,
			Timestamp:   timestamp,
			Version:     record.Version,
		},
		EventID: record.EventID,
		Data:    record.EventData,
	}, nil
}
