package repository

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"asset-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by the repositories.
type DynamoAPI interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// jobItem is the DynamoDB layout of a job record. The stage artifact keeps
// the attribute name used by the first deployment so old records stay readable.
type jobItem struct {
	CommandID          string `dynamodbav:"commandId"`
	JobType            string `dynamodbav:"jobType,omitempty"`
	ModelID            string `dynamodbav:"modelId,omitempty"`
	StageArtifactURI   string `dynamodbav:"generated-3d-assets-uri"`
	FollowUpFormat     string `dynamodbav:"followUpFormat,omitempty"`
	Stage              string `dynamodbav:"stage,omitempty"`
	DerivedArtifactURI string `dynamodbav:"derivedArtifactUri,omitempty"`
	FollowUpCommandID  string `dynamodbav:"followUpCommandId,omitempty"`
	FollowUpClaim      string `dynamodbav:"followUpClaim,omitempty"`
	FollowUpClaimedAt  int64  `dynamodbav:"followUpClaimedAt,omitempty"` // unix millis
	CreatedAt          string `dynamodbav:"timestamp"`
	UpdatedAt          string `dynamodbav:"updatedAt,omitempty"`
}

// DynamoJobRepository stores job records in a DynamoDB table keyed by commandId.
type DynamoJobRepository struct {
	client DynamoAPI
	table  string
}

// NewDynamoJobRepository creates a new DynamoDB job repository
func NewDynamoJobRepository(client DynamoAPI, table string) *DynamoJobRepository {
	return &DynamoJobRepository{client: client, table: table}
}

// CreateRecord writes a new record unless one exists for the command id
func (r *DynamoJobRepository) CreateRecord(ctx context.Context, record *models.JobRecord) error {
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.Stage == "" {
		record.Stage = models.Stage1Pending
	}

	item, err := attributevalue.MarshalMap(toJobItem(record))
	if err != nil {
		return fmt.Errorf("failed to marshal job record: %w", err)
	}

	_, err = r.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(r.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(commandId)"),
	})
	if err != nil {
		return r.mapError(err, "create", record.CommandID)
	}
	return nil
}

// GetRecord retrieves a job record by command id
func (r *DynamoJobRepository) GetRecord(ctx context.Context, commandID string) (*models.JobRecord, error) {
	out, err := r.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(r.table),
		Key:            r.key(commandID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get job record %s: %w", commandID, err)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}

	var item jobItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job record %s: %w", commandID, err)
	}
	record := fromJobItem(item)
	if !record.Stage.Valid() {
		return nil, fmt.Errorf("job record %s has unknown stage %q", commandID, record.Stage)
	}
	return record, nil
}

// AdvanceStage moves a record between stages if it is still at from.
// Records without a stage attribute count as Stage1Pending.
func (r *DynamoJobRepository) AdvanceStage(ctx context.Context, commandID string, from, to models.Stage) error {
	condition := "attribute_exists(commandId) AND #stage = :from"
	if from == models.Stage1Pending {
		condition = "attribute_exists(commandId) AND (#stage = :from OR attribute_not_exists(#stage))"
	}

	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 r.key(commandID),
		UpdateExpression:    aws.String("SET #stage = :to, updatedAt = :now"),
		ConditionExpression: aws.String(condition),
		ExpressionAttributeNames: map[string]string{
			"#stage": "stage",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":from": str(string(from)),
			":to":   str(string(to)),
			":now":  str(timestamp(time.Now())),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return r.mapError(err, "advance", commandID)
	}
	return nil
}

// ClaimFollowUp claims the follow-up dispatch for token
func (r *DynamoJobRepository) ClaimFollowUp(ctx context.Context, commandID, token string, now time.Time, lease time.Duration) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.table),
		Key:              r.key(commandID),
		UpdateExpression: aws.String("SET #stage = :dispatching, followUpClaim = :token, followUpClaimedAt = :now, updatedAt = :ts"),
		ConditionExpression: aws.String("attribute_exists(commandId) AND attribute_not_exists(derivedArtifactUri) AND " +
			"(#stage = :done OR (#stage = :dispatching AND followUpClaimedAt < :stale))"),
		ExpressionAttributeNames: map[string]string{
			"#stage": "stage",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":dispatching": str(string(models.Stage2Dispatching)),
			":done":        str(string(models.Stage1Done)),
			":token":       str(token),
			":now":         num(now.UnixMilli()),
			":stale":       num(now.Add(-lease).UnixMilli()),
			":ts":          str(timestamp(now)),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return r.mapError(err, "claim", commandID)
	}
	return nil
}

// RecordFollowUp stores the follow-up dispatch on a claimed record
func (r *DynamoJobRepository) RecordFollowUp(ctx context.Context, commandID, token, followUpCommandID, derivedURI string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        aws.String(r.table),
		Key:              r.key(commandID),
		UpdateExpression: aws.String("SET #stage = :pending, derivedArtifactUri = :derived, followUpCommandId = :cmd, updatedAt = :ts"),
		ConditionExpression: aws.String("#stage = :dispatching AND followUpClaim = :token AND " +
			"attribute_not_exists(derivedArtifactUri)"),
		ExpressionAttributeNames: map[string]string{
			"#stage": "stage",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pending":     str(string(models.Stage2Pending)),
			":dispatching": str(string(models.Stage2Dispatching)),
			":derived":     str(derivedURI),
			":cmd":         str(followUpCommandID),
			":token":       str(token),
			":ts":          str(timestamp(time.Now())),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return r.mapError(err, "record follow-up", commandID)
	}
	return nil
}

// ReleaseFollowUp drops a claim after a failed dispatch
func (r *DynamoJobRepository) ReleaseFollowUp(ctx context.Context, commandID, token string) error {
	_, err := r.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:           aws.String(r.table),
		Key:                 r.key(commandID),
		UpdateExpression:    aws.String("SET #stage = :done, updatedAt = :ts REMOVE followUpClaim, followUpClaimedAt"),
		ConditionExpression: aws.String("#stage = :dispatching AND followUpClaim = :token"),
		ExpressionAttributeNames: map[string]string{
			"#stage": "stage",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":done":        str(string(models.Stage1Done)),
			":dispatching": str(string(models.Stage2Dispatching)),
			":token":       str(token),
			":ts":          str(timestamp(time.Now())),
		},
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		return r.mapError(err, "release follow-up", commandID)
	}
	return nil
}

func (r *DynamoJobRepository) key(commandID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{"commandId": str(commandID)}
}

// mapError turns a failed condition check into ErrNotFound when the item is
// missing and ErrConditionFailed otherwise.
func (r *DynamoJobRepository) mapError(err error, op, commandID string) error {
	var ccf *types.ConditionalCheckFailedException
	if errors.As(err, &ccf) {
		if op != "create" && len(ccf.Item) == 0 {
			return ErrNotFound
		}
		return ErrConditionFailed
	}
	return fmt.Errorf("failed to %s job record %s: %w", op, commandID, err)
}

func toJobItem(record *models.JobRecord) jobItem {
	item := jobItem{
		CommandID:          record.CommandID,
		JobType:            record.JobType,
		ModelID:            record.ModelID,
		StageArtifactURI:   record.StageArtifactURI,
		FollowUpFormat:     record.FollowUpFormat,
		Stage:              string(record.Stage),
		DerivedArtifactURI: record.DerivedArtifactURI,
		FollowUpCommandID:  record.FollowUpCommandID,
		FollowUpClaim:      record.FollowUpClaim,
		CreatedAt:          timestamp(record.CreatedAt),
		UpdatedAt:          timestamp(record.UpdatedAt),
	}
	if record.FollowUpClaimedAt != nil {
		item.FollowUpClaimedAt = record.FollowUpClaimedAt.UnixMilli()
	}
	return item
}

func fromJobItem(item jobItem) *models.JobRecord {
	record := &models.JobRecord{
		CommandID:          item.CommandID,
		JobType:            item.JobType,
		ModelID:            item.ModelID,
		StageArtifactURI:   item.StageArtifactURI,
		FollowUpFormat:     item.FollowUpFormat,
		Stage:              models.Stage(item.Stage),
		DerivedArtifactURI: item.DerivedArtifactURI,
		FollowUpCommandID:  item.FollowUpCommandID,
		FollowUpClaim:      item.FollowUpClaim,
		CreatedAt:          parseTimestamp(item.CreatedAt),
		UpdatedAt:          parseTimestamp(item.UpdatedAt),
	}
	if record.Stage == "" {
		record.Stage = models.Stage1Pending
	}
	if item.FollowUpClaimedAt > 0 {
		t := time.UnixMilli(item.FollowUpClaimedAt).UTC()
		record.FollowUpClaimedAt = &t
	}
	return record
}

func str(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func num(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp accepts RFC 3339 and the zone-less ISO format of older records.
func parseTimestamp(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

var _ JobRepository = (*DynamoJobRepository)(nil)
