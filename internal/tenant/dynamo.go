package tenant

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	dbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Store loads a tenant's full configuration list.
type Store interface {
	// Load returns every config in the tenant record, or [ErrTenantNotFound].
	Load(ctx context.Context, tenantID string) ([]Config, error)
}

// DynamoStore reads tenant records from a DynamoDB table keyed by tenant id.
type DynamoStore struct {
	client *dynamodb.Client
	table  string
}

var _ Store = (*DynamoStore)(nil)

// NewDynamo creates a DynamoStore reading from table.
func NewDynamo(client *dynamodb.Client, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table}
}

// Load implements [Store]. The record's configValue attribute holds the
// configuration JSON, either as a single object or an array of objects.
func (s *DynamoStore) Load(ctx context.Context, tenantID string) ([]Config, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]dbtypes.AttributeValue{
			"tenantId": &dbtypes.AttributeValueMemberS{Value: tenantID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tenant: get item %s: %w", tenantID, err)
	}
	if out.Item == nil {
		return nil, fmt.Errorf("tenant %s: %w", tenantID, ErrTenantNotFound)
	}

	var record struct {
		ConfigValue string `dynamodbav:"configValue"`
	}
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, fmt.Errorf("tenant: decode record %s: %w", tenantID, err)
	}
	if record.ConfigValue == "" {
		return nil, fmt.Errorf("tenant: record %s has no configValue", tenantID)
	}
	return ParseConfigValue([]byte(record.ConfigValue))
}

// ParseConfigValue decodes a configValue payload, accepting both a bare
// config object and an array of configs.
func ParseConfigValue(data []byte) ([]Config, error) {
	var configs []Config
	if err := json.Unmarshal(data, &configs); err == nil {
		return configs, nil
	}
	var single Config
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, fmt.Errorf("tenant: decode configValue: %w", err)
	}
	return []Config{single}, nil
}
