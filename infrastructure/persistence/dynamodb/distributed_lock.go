package dynamodb

import (
	"context"
	stderrors "errors"
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
	"conceptgraph/domain/core/valueobjects"
	"conceptgraph/pkg/errors"
	"conceptgraph/pkg/utils"
)

// DistributedLock serializes writers of one scope across processes using
// DynamoDB conditional writes. A lock whose TTL has passed may be
// taken over, so a crashed holder blocks the scope for at most the TTL.
type DistributedLock struct {
	client    Client
	tableName string
	owner     string
	ttl       time.Duration
	retry     time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

var _ ports.ScopeLocker = (*DistributedLock)(nil)

// lockRecord represents a lock record in DynamoDB
type lockRecord struct {
	PK         string `dynamodbav:"PK"`         // LOCK#<scope>
	SK         string `dynamodbav:"SK"`         // LOCK
	LockID     string `dynamodbav:"LockID"`     // Unique lock identifier
	Owner      string `dynamodbav:"Owner"`      // Lock owner identifier
	AcquiredAt string `dynamodbav:"AcquiredAt"` // RFC3339 timestamp
	ExpiresAt  string `dynamodbav:"ExpiresAt"`  // RFC3339 timestamp
	TTL        int64  `dynamodbav:"TTL"`        // Unix timestamp for DynamoDB TTL
}

// NewDistributedLock creates a new distributed lock. owner identifies this
// process in lock records; an empty owner gets a random one.
func NewDistributedLock(client Client, tableName, owner string, ttl time.Duration, logger *zap.Logger) *DistributedLock {
	if owner == "" {
		owner = uuid.New().String()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DistributedLock{
		client:    client,
		tableName: tableName,
		owner:     owner,
		ttl:       ttl,
		retry:     100 * time.Millisecond,
		logger:    logger,
		now:       time.Now,
	}
}

// Lock blocks until the scope lock is acquired or ctx ends. Contention is
// retried with backoff; any other failure is returned at once.
func (dl *DistributedLock) Lock(ctx context.Context, scope valueobjects.ScopeID) (func(context.Context) error, error) {
	interval := dl.retry
	for {
		lockID, err := dl.tryAcquire(ctx, scope)
		if err == nil {
			return func(ctx context.Context) error {
				return dl.release(ctx, scope, lockID)
			}, nil
		}
		if !isConditionFailed(err) {
			return nil, classifyError("AcquireLock", err)
		}

		select {
		case <-ctx.Done():
			cause := ctx.Err()
			if stderrors.Is(cause, context.DeadlineExceeded) {
				cause = errors.NewTimeoutError("AcquireLock").WithCause(cause)
			}
			return nil, errors.ErrScopeLocked.Clone().
				WithDetail("scope", scope.String()).
				WithCause(cause)
		case <-time.After(interval):
			if interval < time.Second {
				interval = time.Duration(float64(interval) * 1.5)
			}
		}
	}
}

func (dl *DistributedLock) tryAcquire(ctx context.Context, scope valueobjects.ScopeID) (string, error) {
	now := dl.now()
	expiresAt := now.Add(dl.ttl)
	lockID := fmt.Sprintf("%s_%d", dl.owner, now.UnixNano())

	item, err := attributevalue.MarshalMap(lockRecord{
		PK:         lockPK(scope.String()),
		SK:         sortKeyLock,
		LockID:     lockID,
		Owner:      dl.owner,
		AcquiredAt: utils.FormatRFC3339(now),
		ExpiresAt:  utils.FormatRFC3339(expiresAt),
		TTL:        expiresAt.Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal lock: %w", err)
	}

	cond := expression.AttributeNotExists(expression.Name("PK")).
		Or(expression.Name("TTL").LessThan(expression.Value(now.Unix())))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return "", fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = dl.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                 aws.String(dl.tableName),
		Item:                      item,
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			dl.logger.Debug("Scope lock already held", zap.String("scope", scope.String()))
		}
		return "", err
	}

	dl.logger.Debug("Scope lock acquired",
		zap.String("scope", scope.String()),
		zap.String("lockID", lockID),
		zap.Duration("ttl", dl.ttl))
	return lockID, nil
}

// release deletes the lock record if this holder still owns it
func (dl *DistributedLock) release(ctx context.Context, scope valueobjects.ScopeID, lockID string) error {
	cond := expression.Name("LockID").Equal(expression.Value(lockID)).
		And(expression.Name("Owner").Equal(expression.Value(dl.owner)))
	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build expression: %w", err)
	}

	_, err = dl.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dl.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: lockPK(scope.String())},
			"SK": &types.AttributeValueMemberS{Value: sortKeyLock},
		},
		ConditionExpression:       expr.Condition(),
		ExpressionAttributeNames:  expr.Names(),
		ExpressionAttributeValues: expr.Values(),
	})
	if err != nil {
		if isConditionFailed(err) {
			// Expired and taken over by another writer
			dl.logger.Warn("Scope lock already released or owned by someone else",
				zap.String("scope", scope.String()),
				zap.String("lockID", lockID))
			return nil
		}
		return classifyError("ReleaseLock", err)
	}

	dl.logger.Debug("Scope lock released",
		zap.String("scope", scope.String()),
		zap.String("lockID", lockID))
	return nil
}
