package ddb

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	SClient = "CLIENT"
	SRate   = "RATE"
	SKey    = "KEY"
	SWin    = "WIN"
)

func pkClients() string               { return SClient }
func skClient(key string) string      { return fmt.Sprintf("%s#%s", SKey, key) }
func skSeq() string                   { return "SEQ" }
func pkRate(scope string) string      { return fmt.Sprintf("%s#%s", SRate, scope) }
func skRateWin(epochMin int64) string { return fmt.Sprintf("%s#%d", SWin, epochMin) }

func createTableIfNotExists(ctx context.Context, client *dynamodb.Client, table string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: &table,
		AttributeDefinitions: []ddbTypes.AttributeDefinition{
			{AttributeName: awsString("PK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
			{AttributeName: awsString("SK"), AttributeType: ddbTypes.ScalarAttributeTypeS},
		},
		KeySchema: []ddbTypes.KeySchemaElement{
			{AttributeName: awsString("PK"), KeyType: ddbTypes.KeyTypeHash},
			{AttributeName: awsString("SK"), KeyType: ddbTypes.KeyTypeRange},
		},
		BillingMode: ddbTypes.BillingModePayPerRequest,
	})
	var re *ddbTypes.ResourceInUseException
	if err != nil && !errors.As(err, &re) {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

func itoa(i int64) string                { return strconv.FormatInt(i, 10) }
func awsString(s string) *string         { return &s }
func awsBool(b bool) *bool               { return &b }
func errorAs(err error, target any) bool { return errors.As(err, target) }
