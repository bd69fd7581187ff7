package ddb

import (
	"context"
	"fetchguard/internal/types"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// SessionStore implements ports.SessionStore with one item per user. The ttl attribute is the token
// expiry so DynamoDB TTL reaps sessions nobody restores.
type SessionStore struct {
	table string
	cli   *dynamodb.Client
}

type sessionItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	ExpiresAt int64  `dynamodbav:"ttl"`
	types.SessionRecord
}

func NewSessionStore(table string, cli *dynamodb.Client) *SessionStore {
	createTableIfNotExists(cli, table)
	return &SessionStore{table: table, cli: cli}
}

func (s *SessionStore) LoadSession(ctx context.Context, userID string) (types.SessionRecord, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      &s.table,
		Key:            sessionKey(userID),
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return types.SessionRecord{}, types.Err(types.ErrDataStoreAccess, err, "load session %s", userID)
	}
	if out.Item == nil {
		return types.SessionRecord{}, types.ErrNotFound
	}
	var it sessionItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return types.SessionRecord{}, types.Err(types.ErrEncode, err, "session %s", userID)
	}
	return it.SessionRecord, nil
}

func (s *SessionStore) SaveSession(ctx context.Context, rec types.SessionRecord) error {
	if rec.UserID == "" {
		return types.Err(types.ErrInvalidParam, nil, "session without user id")
	}
	item, err := attributevalue.MarshalMap(sessionItem{
		PK:            pkSession(rec.UserID),
		SK:            skProfile(),
		ExpiresAt:     rec.TokenExpiry,
		SessionRecord: rec,
	})
	if err != nil {
		return types.Err(types.ErrEncode, err, "session %s", rec.UserID)
	}
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &s.table,
		Item:      item,
	})
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "save session %s", rec.UserID)
	}
	return nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, userID string) error {
	_, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &s.table,
		Key:       sessionKey(userID),
	})
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "delete session %s", userID)
	}
	return nil
}

func sessionKey(userID string) map[string]ddbTypes.AttributeValue {
	return map[string]ddbTypes.AttributeValue{
		"PK": &ddbTypes.AttributeValueMemberS{Value: pkSession(userID)},
		"SK": &ddbTypes.AttributeValueMemberS{Value: skProfile()},
	}
}
