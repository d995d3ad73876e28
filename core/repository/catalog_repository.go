package repository

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"

	"asset-orchestrator/core/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// ErrInvalidCursor is returned for a pagination cursor that cannot be decoded.
var ErrInvalidCursor = errors.New("invalid pagination cursor")

// CatalogRepository reads the product asset catalog table.
type CatalogRepository struct {
	client DynamoAPI
	table  string
}

// NewCatalogRepository creates a new catalog repository
func NewCatalogRepository(client DynamoAPI, table string) *CatalogRepository {
	return &CatalogRepository{client: client, table: table}
}

// ListItems scans up to limit items starting after cursor.
func (r *CatalogRepository) ListItems(ctx context.Context, limit int, cursor string) (*models.CatalogPage, error) {
	input := &dynamodb.ScanInput{
		TableName: aws.String(r.table),
		Limit:     aws.Int32(int32(limit)),
	}
	if cursor != "" {
		startKey, err := decodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		input.ExclusiveStartKey = startKey
	}

	out, err := r.client.Scan(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog: %w", err)
	}

	page := &models.CatalogPage{Items: make([]models.CatalogItem, 0, len(out.Items))}
	if err := attributevalue.UnmarshalListOfMaps(out.Items, &page.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal catalog items: %w", err)
	}

	if len(out.LastEvaluatedKey) > 0 {
		page.LastKey, err = encodeCursor(out.LastEvaluatedKey)
		if err != nil {
			return nil, err
		}
	}

	return page, nil
}

func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	var plain map[string]interface{}
	if err := attributevalue.UnmarshalMap(key, &plain); err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	raw, err := json.Marshal(plain)
	if err != nil {
		return "", fmt.Errorf("failed to encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		// The first deployment passed the key as plain JSON.
		raw = []byte(cursor)
	}

	var plain map[string]interface{}
	if err := json.Unmarshal(raw, &plain); err != nil || len(plain) == 0 {
		return nil, ErrInvalidCursor
	}
	key, err := attributevalue.MarshalMap(plain)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	return key, nil
}
