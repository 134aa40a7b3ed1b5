package ddb

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// RateLimiter counts requests per scope in one-minute buckets stored as TTL items.
type RateLimiter struct {
	table string
	cli   *dynamodb.Client
}

func NewRateLimiter(ctx context.Context, table string, cli *dynamodb.Client) (*RateLimiter, error) {
	if err := createTableIfNotExists(ctx, cli, table); err != nil {
		return nil, err
	}
	return &RateLimiter{table: table, cli: cli}, nil
}

func (s *RateLimiter) Acquire(ctx context.Context, scope string, ratePerWindow int, window time.Duration) (bool, error) {
	if ratePerWindow <= 0 {
		return false, nil
	}
	epochMin := time.Now().Unix() / 60
	ttl := time.Now().Add(window + 2*time.Minute).Unix() // grace to ensure cleanup

	// ADD count 1, set ttl if absent, condition count < capacity.
	_, err := s.cli.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pkRate(scope)},
			"SK": &ddbTypes.AttributeValueMemberS{Value: skRateWin(epochMin)},
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
			return false, nil // limited
		}
		return false, err
	}
	return true, nil
}
