package services

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/sirupsen/logrus"

	"party_server/config"
	"party_server/models"
)

// ErrConditionFailed is returned when a conditioned write loses a race,
// e.g. a matchmaking claim on an entry another process already removed.
// Callers treat it as "no effect this cycle", never as a crash.
var ErrConditionFailed = errors.New("conditional write failed")

// Store is the narrow contract every service talks to. DynamoService is the
// production implementation; tests substitute an in-memory fake.
type Store interface {
	GetItem(ctx context.Context, table, pk, sk string, out interface{}) (bool, error)
	PutItem(ctx context.Context, table string, item interface{}) error
	DeleteItem(ctx context.Context, table, pk, sk string) error
	QueryPrefix(ctx context.Context, table, pk, skPrefix string, out interface{}) error
	QueryRange(ctx context.Context, table, pk, skFrom, skTo string, out interface{}) error
	TransactWrite(ctx context.Context, ops ...TransactOp) error
}

// TransactOp is one element of a grouped multi-key write. Build with PutOp,
// DeleteOp, DeleteIfExistsOp or SetExpiryOp.
type TransactOp struct {
	table     string
	put       interface{}
	putCond   bool
	delPK     string
	delSK     string
	isDelete  bool
	delCond   bool
	expiryPK  string
	expirySK  string
	expiresAt int64
	isExpiry  bool
}

// PutOp writes item to table as part of a transaction.
func PutOp(table string, item interface{}) TransactOp {
	return TransactOp{table: table, put: item}
}

// PutIfAbsentOp writes item only when nothing exists at its key, failing the
// whole transaction with ErrConditionFailed otherwise. This is how
// back-reference writes stay unique when two processes race over one user.
func PutIfAbsentOp(table string, item interface{}) TransactOp {
	return TransactOp{table: table, put: item, putCond: true}
}

// DeleteOp removes an item regardless of whether it exists.
func DeleteOp(table, pk, sk string) TransactOp {
	return TransactOp{table: table, delPK: pk, delSK: sk, isDelete: true}
}

// DeleteIfExistsOp removes an item and fails the whole transaction with
// ErrConditionFailed when the item is already gone. This is the claim
// primitive used by the matchmaking engine.
func DeleteIfExistsOp(table, pk, sk string) TransactOp {
	return TransactOp{table: table, delPK: pk, delSK: sk, isDelete: true, delCond: true}
}

// SetExpiryOp rewrites only the expiresAt attribute of an item. Used by the
// TTL refresh path so the party unit and every back-reference move to the
// same window in one transaction.
func SetExpiryOp(table, pk, sk string, expiresAt int64) TransactOp {
	return TransactOp{table: table, expiryPK: pk, expirySK: sk, expiresAt: expiresAt, isExpiry: true}
}

// DynamoService is the shared store adapter: a thin, typed wrapper over
// DynamoDB with a bounded timeout on every call. Infrastructure failures
// surface as StoreUnavailable; nothing leaks SDK error types upward.
type DynamoService struct {
	Client  *dynamodb.Client
	Timeout time.Duration
}

// InitializeDynamoDBClient initializes the DynamoDB client.
func InitializeDynamoDBClient(region string) *dynamodb.Client {
	cfg, err := awsconfig.LoadDefaultConfig(context.TODO(), awsconfig.WithRegion(region))
	if err != nil {
		logrus.Fatalf("Failed to load AWS config: %v", err)
	}
	return dynamodb.NewFromConfig(cfg)
}

// NewDynamoService builds the store adapter with the configured call timeout.
func NewDynamoService(client *dynamodb.Client, cfg *config.Config) *DynamoService {
	return &DynamoService{
		Client:  client,
		Timeout: time.Duration(cfg.StoreTimeoutMs) * time.Millisecond,
	}
}

func (ds *DynamoService) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, ds.Timeout)
}

func keyAttrs(pk, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"pk": &types.AttributeValueMemberS{Value: pk},
		"sk": &types.AttributeValueMemberS{Value: sk},
	}
}

// GetItem loads one item into out and reports whether it was found.
func (ds *DynamoService) GetItem(ctx context.Context, table, pk, sk string, out interface{}) (bool, error) {
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	output, err := ds.Client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &table,
		Key:       keyAttrs(pk, sk),
	})
	if err != nil {
		return false, models.StoreError(err)
	}
	if output.Item == nil {
		return false, nil
	}
	if err := attributevalue.UnmarshalMap(output.Item, out); err != nil {
		return false, models.StoreError(err)
	}
	return true, nil
}

// PutItem marshals item and writes it to table.
func (ds *DynamoService) PutItem(ctx context.Context, table string, item interface{}) error {
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	marshaled, err := attributevalue.MarshalMap(item)
	if err != nil {
		return models.StoreError(err)
	}
	_, err = ds.Client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: &table,
		Item:      marshaled,
	})
	if err != nil {
		return models.StoreError(err)
	}
	return nil
}

// DeleteItem removes an item, succeeding even when it does not exist.
func (ds *DynamoService) DeleteItem(ctx context.Context, table, pk, sk string) error {
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	_, err := ds.Client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: &table,
		Key:       keyAttrs(pk, sk),
	})
	if err != nil {
		return models.StoreError(err)
	}
	return nil
}

// QueryPrefix loads every item in a partition whose sort key starts with
// skPrefix, in sort-key order. An empty prefix loads the whole partition.
func (ds *DynamoService) QueryPrefix(ctx context.Context, table, pk, skPrefix string, out interface{}) error {
	keyCondition := "pk = :pk"
	values := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if skPrefix != "" {
		keyCondition = "pk = :pk AND begins_with(sk, :prefix)"
		values[":prefix"] = &types.AttributeValueMemberS{Value: skPrefix}
	}
	return ds.query(ctx, table, keyCondition, values, out)
}

// QueryRange loads every item in a partition whose sort key falls in
// [skFrom, skTo], in sort-key order.
func (ds *DynamoService) QueryRange(ctx context.Context, table, pk, skFrom, skTo string, out interface{}) error {
	return ds.query(ctx, table, "pk = :pk AND sk BETWEEN :from AND :to", map[string]types.AttributeValue{
		":pk":   &types.AttributeValueMemberS{Value: pk},
		":from": &types.AttributeValueMemberS{Value: skFrom},
		":to":   &types.AttributeValueMemberS{Value: skTo},
	}, out)
}

func (ds *DynamoService) query(ctx context.Context, table, keyCondition string, values map[string]types.AttributeValue, out interface{}) error {
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	output, err := ds.Client.Query(ctx, &dynamodb.QueryInput{
		TableName:                 &table,
		KeyConditionExpression:    &keyCondition,
		ExpressionAttributeValues: values,
	})
	if err != nil {
		return models.StoreError(err)
	}
	if err := attributevalue.UnmarshalListOfMaps(output.Items, out); err != nil {
		return models.StoreError(err)
	}
	return nil
}

// TransactWrite applies every op as one atomic unit. A lost claim surfaces
// as ErrConditionFailed; any other failure as StoreUnavailable.
func (ds *DynamoService) TransactWrite(ctx context.Context, ops ...TransactOp) error {
	ctx, cancel := ds.bound(ctx)
	defer cancel()

	items := make([]types.TransactWriteItem, 0, len(ops))
	for _, op := range ops {
		switch {
		case op.put != nil:
			marshaled, err := attributevalue.MarshalMap(op.put)
			if err != nil {
				return models.StoreError(err)
			}
			put := &types.Put{TableName: aws.String(op.table), Item: marshaled}
			if op.putCond {
				put.ConditionExpression = aws.String("attribute_not_exists(pk)")
			}
			items = append(items, types.TransactWriteItem{Put: put})
		case op.isDelete:
			del := &types.Delete{TableName: aws.String(op.table), Key: keyAttrs(op.delPK, op.delSK)}
			if op.delCond {
				del.ConditionExpression = aws.String("attribute_exists(pk)")
			}
			items = append(items, types.TransactWriteItem{Delete: del})
		case op.isExpiry:
			items = append(items, types.TransactWriteItem{
				Update: &types.Update{
					TableName:        aws.String(op.table),
					Key:              keyAttrs(op.expiryPK, op.expirySK),
					UpdateExpression: aws.String("SET expiresAt = :exp"),
					ExpressionAttributeValues: map[string]types.AttributeValue{
						":exp": &types.AttributeValueMemberN{Value: formatInt(op.expiresAt)},
					},
				},
			})
		}
	}

	_, err := ds.Client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		var canceled *types.TransactionCanceledException
		if errors.As(err, &canceled) {
			for _, reason := range canceled.CancellationReasons {
				if reason.Code != nil && *reason.Code == "ConditionalCheckFailed" {
					return ErrConditionFailed
				}
			}
		}
		var conditionFailed *types.ConditionalCheckFailedException
		if errors.As(err, &conditionFailed) {
			return ErrConditionFailed
		}
		return models.StoreError(err)
	}
	return nil
}

func formatInt(n int64) string {
	return strconv.FormatInt(n, 10)
}
