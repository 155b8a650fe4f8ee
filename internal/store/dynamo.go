package store

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// dynamoMaxGroupOps is the TransactWriteItems hard limit.
const dynamoMaxGroupOps = 100

// Index names and their key attributes. Email and normalized phone are the
// only fields the pipeline resolves identity on, so they are the only ones
// carrying a GSI.
const (
	emailIndexName = "EmailIndex"
	phoneIndexName = "PhoneIndex"
	emailKeyAttr   = "EmailKey"
	phoneKeyAttr   = "PhoneKey"
)

// DynamoStore implements Store on a single DynamoDB table.
//
// Layout: PK = "COMPANY#{companyID}#{collection}", SK = document ID, document
// fields as top-level attributes so partial updates stay transactional. Two
// GSIs provide the exact-match identity lookups:
//
//	EmailIndex: EmailKey = PK + "#EMAIL#" + email
//	PhoneIndex: PhoneKey = PK + "#PHONE#" + normalized phone
type DynamoStore struct {
	client    *dynamodb.Client
	tableName string
}

// NewDynamoStore creates a DynamoDB-backed store.
func NewDynamoStore(ctx context.Context, tableName, region, profile string) (*DynamoStore, error) {
	var cfg aws.Config
	var err error

	if profile != "" {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
			awsconfig.WithSharedConfigProfile(profile),
		)
	} else {
		cfg, err = awsconfig.LoadDefaultConfig(ctx,
			awsconfig.WithRegion(region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return &DynamoStore{
		client:    dynamodb.NewFromConfig(cfg),
		tableName: tableName,
	}, nil
}

func partitionKey(companyID, collection string) string {
	return fmt.Sprintf("COMPANY#%s#%s", companyID, collection)
}

// QueryByField resolves an exact-match identity query through the matching
// GSI. Only email and normalized_phone are indexed; anything else is a
// caller bug surfaced as ErrUnindexedField.
func (s *DynamoStore) QueryByField(ctx context.Context, companyID, collection, field, value string) ([]Ref, error) {
	var indexName, keyAttr string
	switch field {
	case "email":
		indexName, keyAttr = emailIndexName, emailKeyAttr
	case "normalized_phone":
		indexName, keyAttr = phoneIndexName, phoneKeyAttr
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnindexedField, field)
	}

	keyValue := fmt.Sprintf("%s#%s#%s", partitionKey(companyID, collection), fieldTag(field), value)

	result, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		IndexName:              aws.String(indexName),
		KeyConditionExpression: aws.String("#k = :v"),
		ExpressionAttributeNames: map[string]string{
			"#k": keyAttr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberS{Value: keyValue},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", indexName, err)
	}

	refs := make([]Ref, 0, len(result.Items))
	for _, item := range result.Items {
		sk, ok := item["SK"].(*types.AttributeValueMemberS)
		if !ok {
			continue
		}
		refs = append(refs, Ref{Collection: collection, ID: sk.Value})
	}
	return refs, nil
}

func fieldTag(field string) string {
	if field == "email" {
		return "EMAIL"
	}
	return "PHONE"
}

// GetDocument fetches a document by key and strips the table bookkeeping
// attributes before returning it.
func (s *DynamoStore) GetDocument(ctx context.Context, companyID string, ref Ref) (Document, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: partitionKey(companyID, ref.Collection)},
			"SK": &types.AttributeValueMemberS{Value: ref.ID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("getting item: %w", err)
	}
	if result.Item == nil {
		return nil, fmt.Errorf("%w: %s/%s", ErrDocumentNotFound, ref.Collection, ref.ID)
	}

	var doc Document
	if err := attributevalue.UnmarshalMap(result.Item, &doc); err != nil {
		return nil, fmt.Errorf("unmarshaling item: %w", err)
	}
	delete(doc, "PK")
	delete(doc, "SK")
	delete(doc, emailKeyAttr)
	delete(doc, phoneKeyAttr)
	return doc, nil
}

// NewGroup opens an atomic write group backed by TransactWriteItems.
func (s *DynamoStore) NewGroup(companyID string) Group {
	return &dynamoGroup{store: s, companyID: companyID}
}

// MaxGroupOps reports the TransactWriteItems limit.
func (s *DynamoStore) MaxGroupOps() int { return dynamoMaxGroupOps }

type dynamoOp struct {
	set bool
	ref Ref
	doc Document
}

type dynamoGroup struct {
	store     *DynamoStore
	companyID string
	ops       []dynamoOp
}

func (g *dynamoGroup) Set(ref Ref, doc Document)    { g.ops = append(g.ops, dynamoOp{set: true, ref: ref, doc: doc}) }
func (g *dynamoGroup) Update(ref Ref, doc Document) { g.ops = append(g.ops, dynamoOp{ref: ref, doc: doc}) }
func (g *dynamoGroup) Len() int                     { return len(g.ops) }

// Commit submits every queued operation as one TransactWriteItems call.
func (g *dynamoGroup) Commit(ctx context.Context) error {
	if len(g.ops) == 0 {
		return nil
	}
	if len(g.ops) > g.store.MaxGroupOps() {
		return fmt.Errorf("%w: %d ops, limit %d", ErrGroupTooLarge, len(g.ops), g.store.MaxGroupOps())
	}

	now := time.Now().UTC().Format(time.RFC3339)
	items := make([]types.TransactWriteItem, 0, len(g.ops))
	for _, op := range g.ops {
		if op.set {
			item, err := g.buildPut(op, now)
			if err != nil {
				return err
			}
			items = append(items, item)
		} else {
			item, err := g.buildUpdate(op, now)
			if err != nil {
				return err
			}
			items = append(items, item)
		}
	}

	_, err := g.store.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{
		TransactItems: items,
	})
	if err != nil {
		return fmt.Errorf("committing group of %d ops: %w", len(g.ops), err)
	}
	g.ops = nil
	return nil
}

func (g *dynamoGroup) buildPut(op dynamoOp, now string) (types.TransactWriteItem, error) {
	pk := partitionKey(g.companyID, op.ref.Collection)

	resolved := make(Document, len(op.doc))
	for k, v := range op.doc {
		resolved[k] = resolveTimestamp(v, now)
	}

	item, err := attributevalue.MarshalMap(resolved)
	if err != nil {
		return types.TransactWriteItem{}, fmt.Errorf("marshaling document %s: %w", op.ref.ID, err)
	}
	item["PK"] = &types.AttributeValueMemberS{Value: pk}
	item["SK"] = &types.AttributeValueMemberS{Value: op.ref.ID}

	if email, ok := resolved["email"].(string); ok && email != "" {
		item[emailKeyAttr] = &types.AttributeValueMemberS{Value: pk + "#EMAIL#" + email}
	}
	if digits, ok := resolved["normalized_phone"].(string); ok && digits != "" {
		item[phoneKeyAttr] = &types.AttributeValueMemberS{Value: pk + "#PHONE#" + digits}
	}

	return types.TransactWriteItem{
		Put: &types.Put{
			TableName: aws.String(g.store.tableName),
			Item:      item,
		},
	}, nil
}

func (g *dynamoGroup) buildUpdate(op dynamoOp, now string) (types.TransactWriteItem, error) {
	pk := partitionKey(g.companyID, op.ref.Collection)

	expr := ""
	names := make(map[string]string, len(op.doc))
	values := make(map[string]types.AttributeValue, len(op.doc))
	i := 0
	addSet := func(field string, value interface{}) error {
		av, err := attributevalue.Marshal(value)
		if err != nil {
			return fmt.Errorf("marshaling field %s: %w", field, err)
		}
		nameRef := fmt.Sprintf("#f%d", i)
		valueRef := fmt.Sprintf(":v%d", i)
		if expr == "" {
			expr = "SET "
		} else {
			expr += ", "
		}
		expr += nameRef + " = " + valueRef
		names[nameRef] = field
		values[valueRef] = av
		i++
		return nil
	}

	for k, v := range op.doc {
		if err := addSet(k, resolveTimestamp(v, now)); err != nil {
			return types.TransactWriteItem{}, err
		}
	}
	// Keep identity index keys in sync when the fields they mirror change.
	if email, ok := op.doc["email"].(string); ok && email != "" {
		if err := addSet(emailKeyAttr, pk+"#EMAIL#"+email); err != nil {
			return types.TransactWriteItem{}, err
		}
	}
	if digits, ok := op.doc["normalized_phone"].(string); ok && digits != "" {
		if err := addSet(phoneKeyAttr, pk+"#PHONE#"+digits); err != nil {
			return types.TransactWriteItem{}, err
		}
	}

	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(g.store.tableName),
			Key: map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: pk},
				"SK": &types.AttributeValueMemberS{Value: op.ref.ID},
			},
			UpdateExpression:          aws.String(expr),
			ConditionExpression:       aws.String("attribute_exists(PK)"),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		},
	}, nil
}
