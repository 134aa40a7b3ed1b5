package ddb

import (
	"context"
	"sort"
	"strconv"

	"zwop/internal/types"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbTypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Repository is a ClientRepository on a single DynamoDB table. All clients share the
// partition PK=CLIENT; each carries a seq drawn from a counter item so List can restore
// insertion order.
type Repository struct {
	table string
	cli   *dynamodb.Client
}

type clientItem struct {
	PK  string `dynamodbav:"PK"`
	SK  string `dynamodbav:"SK"`
	Seq int64  `dynamodbav:"seq"`
	types.Record
}

// NewRepository creates the table if it does not exist yet.
func NewRepository(ctx context.Context, table string, cli *dynamodb.Client) (*Repository, error) {
	if err := createTableIfNotExists(ctx, cli, table); err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "")
	}
	return &Repository{table: table, cli: cli}, nil
}

func (s *Repository) Get(ctx context.Context, key string) (types.Client, error) {
	out, err := s.cli.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.table,
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pkClients()},
			"SK": &ddbTypes.AttributeValueMemberS{Value: skClient(key)},
		},
		ConsistentRead: awsBool(true),
	})
	if err != nil {
		return nil, types.Err(types.ErrDataStoreAccess, err, "")
	}
	if out.Item == nil {
		return nil, types.Err(types.ErrNotFound, nil, "no client for key")
	}
	item, err := decodeItem(out.Item)
	if err != nil {
		return nil, err
	}
	return item.client, nil
}

func (s *Repository) List(ctx context.Context) ([]types.Client, error) {
	var items []decodedItem
	p := dynamodb.NewQueryPaginator(s.cli, &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("PK = :pk AND begins_with(SK, :sk)"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: pkClients()},
			":sk": &ddbTypes.AttributeValueMemberS{Value: SKey + "#"},
		},
		ConsistentRead: awsBool(true),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, types.Err(types.ErrDataStoreAccess, err, "")
		}
		for _, raw := range page.Items {
			item, err := decodeItem(raw)
			if err != nil {
				return nil, err
			}
			items = append(items, item)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].seq < items[j].seq })

	clients := make([]types.Client, 0, len(items))
	for _, it := range items {
		clients = append(clients, it.client)
	}
	return clients, nil
}

func (s *Repository) Put(ctx context.Context, client types.ScopedClient) error {
	return s.insert(ctx, client)
}

func (s *Repository) PutAdmin(ctx context.Context, client types.AdminClient) error {
	return s.insert(ctx, client)
}

func (s *Repository) insert(ctx context.Context, c types.Client) error {
	if err := c.Validate(); err != nil {
		return err
	}
	seq, err := s.nextSeq(ctx)
	if err != nil {
		return types.Err(types.ErrDataStoreAccess, err, "")
	}
	item, err := attributevalue.MarshalMap(clientItem{
		PK:     pkClients(),
		SK:     skClient(c.ClientKey()),
		Seq:    seq,
		Record: types.ToRecord(c),
	})
	if err != nil {
		return err
	}
	// A failed put only leaves a gap in seq.
	_, err = s.cli.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.table,
		Item:                item,
		ConditionExpression: awsString("attribute_not_exists(SK)"),
	})
	if err != nil {
		var cc *ddbTypes.ConditionalCheckFailedException
		if errorAs(err, &cc) {
			return types.Err(types.ErrDuplicateKey, nil, "%s client", c.Kind())
		}
		return types.Err(types.ErrDataStoreAccess, err, "")
	}
	return nil
}

func (s *Repository) nextSeq(ctx context.Context) (int64, error) {
	out, err := s.cli.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: &s.table,
		Key: map[string]ddbTypes.AttributeValue{
			"PK": &ddbTypes.AttributeValueMemberS{Value: pkClients()},
			"SK": &ddbTypes.AttributeValueMemberS{Value: skSeq()},
		},
		UpdateExpression:          awsString("ADD #n :one"),
		ExpressionAttributeNames:  map[string]string{"#n": "n"},
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{":one": &ddbTypes.AttributeValueMemberN{Value: "1"}},
		ReturnValues:              ddbTypes.ReturnValueUpdatedNew,
	})
	if err != nil {
		return 0, err
	}
	n, ok := out.Attributes["n"].(*ddbTypes.AttributeValueMemberN)
	if !ok {
		return 0, types.Err(types.ErrCorruptStore, nil, "sequence counter is not a number")
	}
	return strconv.ParseInt(n.Value, 10, 64)
}

// ClearAll deletes every client and the sequence counter. Used in tests only.
func (s *Repository) ClearAll(ctx context.Context) error {
	p := dynamodb.NewQueryPaginator(s.cli, &dynamodb.QueryInput{
		TableName:              &s.table,
		KeyConditionExpression: awsString("PK = :pk"),
		ExpressionAttributeValues: map[string]ddbTypes.AttributeValue{
			":pk": &ddbTypes.AttributeValueMemberS{Value: pkClients()},
		},
		ProjectionExpression: awsString("PK, SK"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return err
		}
		for _, it := range page.Items {
			if _, err := s.cli.DeleteItem(ctx, &dynamodb.DeleteItemInput{
				TableName: &s.table,
				Key:       map[string]ddbTypes.AttributeValue{"PK": it["PK"], "SK": it["SK"]},
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

type decodedItem struct {
	seq    int64
	client types.Client
}

func decodeItem(raw map[string]ddbTypes.AttributeValue) (decodedItem, error) {
	var item clientItem
	if err := attributevalue.UnmarshalMap(raw, &item); err != nil {
		return decodedItem{}, types.Err(types.ErrCorruptStore, err, "")
	}
	c, err := item.Record.Client()
	if err != nil {
		return decodedItem{}, types.Err(types.ErrCorruptStore, err, "")
	}
	return decodedItem{seq: item.Seq, client: c}, nil
}
