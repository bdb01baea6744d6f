package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	ddbtypes "github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"

	"github.com/omni402/omnitab/types"
)

const (
	defaultSettlementsTable = "settlements"
	merchantIndex           = "merchant_address-index"
	invoiceIndex            = "invoice_id-index"
)

// settlementItem is the DynamoDB projection of a Settlement.
//
// Table requirements:
//   - PK: edge_tx_hash (string, stored lower-cased)
//   - GSI merchant_address-index (PK: merchant_address, SK: created_at)
//   - GSI invoice_id-index (PK: invoice_id_lc)
type settlementItem struct {
	EdgeTxHash       string `dynamodbav:"edge_tx_hash"`
	ID               string `dynamodbav:"id"`
	InvoiceID        string `dynamodbav:"invoice_id"`
	InvoiceIDLC      string `dynamodbav:"invoice_id_lc"`
	SourceChain      int64  `dynamodbav:"source_chain"`
	PayerAddress     string `dynamodbav:"payer_address"`
	MerchantAddress  string `dynamodbav:"merchant_address"`
	Amount           string `dynamodbav:"amount"`
	LzMessageID      string `dynamodbav:"lz_message_id"`
	Status           string `dynamodbav:"status"`
	CreatedAt        string `dynamodbav:"created_at"`
	SettledAt        string `dynamodbav:"settled_at,omitempty"`
	SettlementTxHash string `dynamodbav:"settlement_tx_hash,omitempty"`
}

var _ Store = (*DynamoStore)(nil)

// DynamoStore persists settlements in DynamoDB. The conditional put on the
// edge_tx_hash partition key is the uniqueness constraint the settlement
// protocol relies on.
type DynamoStore struct {
	ddb   *dynamodb.Client
	table string
}

// NewDynamoStore wraps a DynamoDB client. An empty table name falls back to
// "settlements".
func NewDynamoStore(ddb *dynamodb.Client, table string) *DynamoStore {
	if table == "" {
		table = defaultSettlementsTable
	}
	return &DynamoStore{ddb: ddb, table: table}
}

func (d *DynamoStore) FindByEdgeTx(ctx context.Context, edgeTxHash string) (*types.Settlement, error) {
	out, err := d.ddb.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(d.table),
		Key: map[string]ddbtypes.AttributeValue{
			"edge_tx_hash": &ddbtypes.AttributeValueMemberS{Value: normalizeKey(edgeTxHash)},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get settlement: %w", err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}

	var it settlementItem
	if err := attributevalue.UnmarshalMap(out.Item, &it); err != nil {
		return nil, fmt.Errorf("unmarshal settlement: %w", err)
	}
	return fromItem(it), nil
}

func (d *DynamoStore) Create(ctx context.Context, s *types.Settlement) (*types.Settlement, error) {
	cp := *s
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	if cp.Status == "" {
		cp.Status = types.SettlementPending
	}

	av, err := attributevalue.MarshalMap(toItem(&cp))
	if err != nil {
		return nil, fmt.Errorf("marshal settlement: %w", err)
	}

	_, err = d.ddb.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(d.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(edge_tx_hash)"),
	})
	if err != nil {
		var condFailed *ddbtypes.ConditionalCheckFailedException
		if errors.As(err, &condFailed) {
			return nil, ErrDuplicateEdgeTx
		}
		return nil, fmt.Errorf("put settlement: %w", err)
	}

	return &cp, nil
}

func (d *DynamoStore) MarkSettled(ctx context.Context, invoiceID, settlementTxHash string) (int, error) {
	out, err := d.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		IndexName:              aws.String(invoiceIndex),
		KeyConditionExpression: aws.String("invoice_id_lc = :inv"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":inv": &ddbtypes.AttributeValueMemberS{Value: normalizeKey(invoiceID)},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("query settlements by invoice: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	count := 0
	for _, raw := range out.Items {
		var it settlementItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return count, fmt.Errorf("unmarshal settlement: %w", err)
		}

		// Conditional on status so repeated confirmations are no-ops and
		// concurrent updaters cannot double-transition.
		_, err := d.ddb.UpdateItem(ctx, &dynamodb.UpdateItemInput{
			TableName: aws.String(d.table),
			Key: map[string]ddbtypes.AttributeValue{
				"edge_tx_hash": &ddbtypes.AttributeValueMemberS{Value: it.EdgeTxHash},
			},
			ConditionExpression: aws.String("#s = :pending"),
			UpdateExpression:    aws.String("SET #s = :settled, settled_at = :at, settlement_tx_hash = :tx"),
			ExpressionAttributeNames: map[string]string{
				"#s": "status",
			},
			ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
				":pending": &ddbtypes.AttributeValueMemberS{Value: string(types.SettlementPending)},
				":settled": &ddbtypes.AttributeValueMemberS{Value: string(types.SettlementSettled)},
				":at":      &ddbtypes.AttributeValueMemberS{Value: now},
				":tx":      &ddbtypes.AttributeValueMemberS{Value: settlementTxHash},
			},
		})
		if err != nil {
			var condFailed *ddbtypes.ConditionalCheckFailedException
			if errors.As(err, &condFailed) {
				continue
			}
			return count, fmt.Errorf("update settlement: %w", err)
		}
		count++
	}

	return count, nil
}

func (d *DynamoStore) ListByMerchant(ctx context.Context, merchant string, limit int) ([]*types.Settlement, error) {
	if limit <= 0 {
		limit = 50
	}

	out, err := d.ddb.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(d.table),
		IndexName:              aws.String(merchantIndex),
		KeyConditionExpression: aws.String("merchant_address = :m"),
		ExpressionAttributeValues: map[string]ddbtypes.AttributeValue{
			":m": &ddbtypes.AttributeValueMemberS{Value: normalizeKey(merchant)},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("query settlements by merchant: %w", err)
	}

	items := make([]*types.Settlement, 0, len(out.Items))
	for _, raw := range out.Items {
		var it settlementItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, fmt.Errorf("unmarshal settlement: %w", err)
		}
		items = append(items, fromItem(it))
	}
	return items, nil
}

func toItem(s *types.Settlement) settlementItem {
	it := settlementItem{
		EdgeTxHash:       normalizeKey(s.EdgeTxHash),
		ID:               s.ID,
		InvoiceID:        s.InvoiceID,
		InvoiceIDLC:      normalizeKey(s.InvoiceID),
		SourceChain:      s.SourceChain,
		PayerAddress:     s.PayerAddress,
		MerchantAddress:  s.MerchantAddress,
		Amount:           s.Amount,
		LzMessageID:      s.LzMessageID,
		Status:           string(s.Status),
		CreatedAt:        s.CreatedAt.UTC().Format(time.RFC3339Nano),
		SettlementTxHash: s.SettlementTxHash,
	}
	if s.SettledAt != nil {
		it.SettledAt = s.SettledAt.UTC().Format(time.RFC3339Nano)
	}
	return it
}

func fromItem(it settlementItem) *types.Settlement {
	createdAt, _ := time.Parse(time.RFC3339Nano, it.CreatedAt)
	s := &types.Settlement{
		ID:               it.ID,
		InvoiceID:        it.InvoiceID,
		SourceChain:      it.SourceChain,
		PayerAddress:     it.PayerAddress,
		MerchantAddress:  it.MerchantAddress,
		Amount:           it.Amount,
		EdgeTxHash:       it.EdgeTxHash,
		LzMessageID:      it.LzMessageID,
		Status:           types.SettlementStatus(it.Status),
		CreatedAt:        createdAt,
		SettlementTxHash: it.SettlementTxHash,
	}
	if it.SettledAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, it.SettledAt); err == nil {
			s.SettledAt = &t
		}
	}
	return s
}
