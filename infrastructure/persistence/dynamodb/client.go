// Package dynamodb stores concepts, relationships, scope locks and audit
// events in a single DynamoDB table.
//
// Key layout:
//
//	concept  PK=CONCEPT#<id>  SK=METADATA  GSI1PK=SCOPE#<scope>  GSI1SK=CONCEPT#<id>
//	edge     PK=EDGE#<id>     SK=METADATA  GSI1PK=SOURCE#<src>   GSI1SK=EDGE#<id>
//	                                       GSI2PK=TARGET#<tgt>   GSI2SK=EDGE#<id>
//	lock     PK=LOCK#<scope>  SK=LOCK
//	event    PK=EVENTS#<scope> SK=EVENT#<timestamp>#<event id>
//	mastery  PK=USER#<user id>  SK=MASTERY#<concept id>
package dynamodb

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/smithy-go"

	apperrors "conceptgraph/pkg/errors"
)

// Client is the subset of the DynamoDB API used by this package.
// *dynamodb.Client satisfies it.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	BatchWriteItem(ctx context.Context, params *dynamodb.BatchWriteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.BatchWriteItemOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

const (
	sortKeyMetadata = "METADATA"
	sortKeyLock     = "LOCK"

	entityConcept = "CONCEPT"
	entityEdge    = "EDGE"
)

func conceptPK(id string) string   { return "CONCEPT#" + id }
func edgePK(id string) string      { return "EDGE#" + id }
func scopeGSI(scope string) string { return "SCOPE#" + scope }
func sourceGSI(id string) string   { return "SOURCE#" + id }
func targetGSI(id string) string   { return "TARGET#" + id }
func lockPK(scope string) string   { return "LOCK#" + scope }
func eventsPK(scope string) string { return "EVENTS#" + scope }
func userPK(id string) string      { return "USER#" + id }
func masterySK(id string) string   { return "MASTERY#" + id }

// isConditionFailed reports whether err is a failed ConditionExpression
func isConditionFailed(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "ConditionalCheckFailedException"
}

// classifyError maps DynamoDB API errors onto AppErrors so callers can ask
// IsRetryable without knowing about the SDK.
func classifyError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var ae smithy.APIError
	if !errors.As(err, &ae) {
		return apperrors.NewDatabaseError(operation, err)
	}

	switch ae.ErrorCode() {
	case "ResourceNotFoundException":
		return apperrors.NewNotFoundError("table").WithCause(err).WithCode(ae.ErrorCode())
	case "ConditionalCheckFailedException":
		return apperrors.NewConflictError("conditional check failed").WithCause(err).WithCode(ae.ErrorCode())
	case "ProvisionedThroughputExceededException", "RequestLimitExceeded", "ThrottlingException":
		return apperrors.NewDatabaseError(operation, err).WithCode(ae.ErrorCode()).WithRetryable(true)
	case "InternalServerError", "ServiceUnavailable":
		return apperrors.NewUnavailableError("dynamodb").WithCause(err).WithCode(ae.ErrorCode())
	case "ValidationException":
		return apperrors.NewValidationError(fmt.Sprintf("%s: %s", operation, ae.ErrorMessage())).WithCause(err).WithCode(ae.ErrorCode())
	default:
		return apperrors.NewDatabaseError(operation, err).WithCode(ae.ErrorCode())
	}
}
