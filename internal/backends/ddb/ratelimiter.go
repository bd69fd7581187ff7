package ddb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RateLimiter implements ports.RateLimiter with a fixed-window counter item per scope, shared by
// every process pointing at the same table.
type RateLimiter struct {
	table string
	cli   *dynamodb.Client
	now   func() time.Time
}

func NewRateLimiter(table string, cli *dynamodb.Client) *RateLimiter {
	createTableIfNotExists(cli, table)
	return &RateLimiter{table: table, cli: cli, now: time.Now}
}

func (s *RateLimiter) Acquire(ctx context.Context, scope string, ratePerWindow int, window time.Duration) (bool, error) {
	if ratePerWindow <= 0 {
		return false, nil
	}
	if window < time.Second {
		window = time.Second
	}
	now := s.now()
	bucket := now.Unix() / int64(window/time.Second)
	ttl := now.Add(window + 2*time.Minute).Unix()

	// ADD creates count=1 on a fresh window; the condition rejects once capacity is reached.
	_, err := s.cli.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pkRate(scope)},
			"SK": &ddbTypes.AttributeValueMemberS{Value: skRateWin(bucket)},
		},
		UpdateExpression: awsString(
			"SET #ttl = if_not_exists(#ttl, :ttl) " +
				"ADD #count :one",
		),
		ExpressionAttributeNames: map[string]string{
			"#count": "count",
			"#ttl":   "ttl",
		},
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":one": &ddbTypes.AttributeValueMemberN{Value: "1"},
			":ttl": &ddbTypes.AttributeValueMemberN{Value: itoa(ttl)},
			":cap": &ddbTypes.AttributeValueMemberN{Value: itoa(int64(ratePerWindow))},
		},
		ConditionExpression: awsString("attribute_not_exists(#count) OR #count < :cap"),
	})
	if err != nil {
		var cc *ddbTypes.ConditionalCheckFailedException
		if errorAs(err, &cc) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
