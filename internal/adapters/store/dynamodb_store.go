package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"go.uber.org/zap"

	"github.com/mikey/sms-spam-classifier/internal/core"
)

const (
	pkUserPrefix    = "USER#"
	pkHistoryPrefix = "HIST#"
	skProfile       = "PROFILE"
	skRecordPrefix  = "REC#"
)

// dynamodbAPI is the subset of the DynamoDB client used by DynamoDBStore.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// DynamoDBConfig selects the table and endpoint.
type DynamoDBConfig struct {
	Table    string
	Region   string
	Endpoint string
}

// DynamoDBStore implements core.Store on a single DynamoDB table keyed by
// PK and SK. Expired history is removed by the table's TTL on the "ttl"
// attribute, so there is no background cleanup.
type DynamoDBStore struct {
	api       dynamodbAPI
	tableName string
	logger    *zap.Logger
	opts      Options
	now       func() time.Time
}

// NewDynamoDBStore builds a client from the default AWS credential chain
func NewDynamoDBStore(ctx context.Context, cfg DynamoDBConfig, logger *zap.Logger, opts Options) (*DynamoDBStore, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return newDynamoDBStore(client, cfg.Table, logger, opts)
}

func newDynamoDBStore(api dynamodbAPI, tableName string, logger *zap.Logger, opts Options) (*DynamoDBStore, error) {
	if api == nil {
		return nil, errors.New("dynamodb: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("dynamodb: table name must not be empty")
	}
	return &DynamoDBStore{api: api, tableName: tableName, logger: logger, opts: opts, now: time.Now}, nil
}

func userPK(email string) string {
	return pkUserPrefix + email
}

func historyPK(identity string) string {
	return pkHistoryPrefix + identity
}

// recordSK sorts records by creation time, then id.
func recordSK(r *core.HistoryRecord) string {
	return fmt.Sprintf("%s%019d#%s", skRecordPrefix, r.CreatedAt.UnixNano(), r.ID)
}

// CreateUser stores a user unless the email is taken
func (s *DynamoDBStore) CreateUser(ctx context.Context, user *core.User) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":            &types.AttributeValueMemberS{Value: userPK(user.Email)},
			"SK":            &types.AttributeValueMemberS{Value: skProfile},
			"id":            &types.AttributeValueMemberS{Value: user.ID},
			"email":         &types.AttributeValueMemberS{Value: user.Email},
			"password_hash": &types.AttributeValueMemberS{Value: user.PasswordHash},
			"created_at":    &types.AttributeValueMemberN{Value: strconv.FormatInt(user.CreatedAt.UnixNano(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return core.ErrUserExists
		}
		return fmt.Errorf("dynamodb: CreateUser: %w", err)
	}
	return nil
}

// GetUser returns the user for email
func (s *DynamoDBStore) GetUser(ctx context.Context, email string) (*core.User, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: userPK(email)},
			"SK": &types.AttributeValueMemberS{Value: skProfile},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: GetUser: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, core.ErrUserNotFound
	}

	user := &core.User{}
	if user.ID, err = strAttr(out.Item, "id"); err != nil {
		return nil, err
	}
	if user.Email, err = strAttr(out.Item, "email"); err != nil {
		return nil, err
	}
	if user.PasswordHash, err = strAttr(out.Item, "password_hash"); err != nil {
		return nil, err
	}
	nanos, err := intAttr(out.Item, "created_at")
	if err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(0, nanos).UTC()
	return user, nil
}

// Append stores a history record
func (s *DynamoDBStore) Append(ctx context.Context, record *core.HistoryRecord) error {
	r := *record
	r.CreatedAt = recordTime(record)
	data, err := json.Marshal(toStored(&r))
	if err != nil {
		return fmt.Errorf("dynamodb: Append marshal: %w", err)
	}

	item := map[string]types.AttributeValue{
		"PK":     &types.AttributeValueMemberS{Value: historyPK(r.Identity)},
		"SK":     &types.AttributeValueMemberS{Value: recordSK(&r)},
		"record": &types.AttributeValueMemberS{Value: string(data)},
	}
	if s.opts.Retention > 0 {
		expires := r.CreatedAt.Add(s.opts.Retention).Unix()
		item["ttl"] = &types.AttributeValueMemberN{Value: strconv.FormatInt(expires, 10)}
	}

	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("dynamodb: Append: %w", err)
	}
	return nil
}

// ListFor returns the newest records for identity
func (s *DynamoDBStore) ListFor(ctx context.Context, identity string, limit int) ([]core.HistoryRecord, error) {
	if limit <= 0 {
		return []core.HistoryRecord{}, nil
	}
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: historyPK(identity)},
			":prefix": &types.AttributeValueMemberS{Value: skRecordPrefix},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamodb: ListFor query: %w", err)
	}

	records := make([]core.HistoryRecord, 0, len(out.Items))
	cutoff := s.expiryCutoff()
	for _, item := range out.Items {
		raw, err := strAttr(item, "record")
		if err != nil {
			return nil, err
		}
		var stored storedRecord
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return nil, fmt.Errorf("dynamodb: ListFor unmarshal: %w", err)
		}
		// TTL deletion lags, so expired items can still be returned.
		if stored.CreatedAt < cutoff {
			continue
		}
		records = append(records, stored.toRecord())
	}
	return records, nil
}

func (s *DynamoDBStore) expiryCutoff() int64 {
	if s.opts.Retention <= 0 {
		return 0
	}
	return s.now().Add(-s.opts.Retention).UnixNano()
}

// Ping checks that the table exists
func (s *DynamoDBStore) Ping(ctx context.Context) error {
	_, err := s.api.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(s.tableName)})
	if err != nil {
		return fmt.Errorf("dynamodb: describe table %q: %w", s.tableName, err)
	}
	return nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *DynamoDBStore) Close() error {
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("dynamodb: missing attribute %q", key)
	}
	str, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("dynamodb: attribute %q is not a string", key)
	}
	return str.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int64, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("dynamodb: missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("dynamodb: attribute %q is not a number", key)
	}
	parsed, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamodb: parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
