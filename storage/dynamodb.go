package storage

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type DynamoOptions struct {
	Table string
	// Endpoint points the client at DynamoDB Local. Empty uses AWS.
	Endpoint string
	Region   string
}

type DynamoStore struct {
	db    *dynamodb.Client
	table string
}

var _ Store = (*DynamoStore)(nil)

func OpenDynamoStore(ctx context.Context, opts DynamoOptions) (*DynamoStore, error) {
	if opts.Table == "" {
		return nil, errors.New("dynamodb store requires a table name")
	}
	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(opts.Region),
	}
	if opts.Endpoint != "" {
		customResolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
			return aws.Endpoint{URL: opts.Endpoint}, nil
		})
		loadOpts = append(loadOpts,
			awsconfig.WithEndpointResolverWithOptions(customResolver),
			awsconfig.WithCredentialsProvider(credentials.StaticCredentialsProvider{
				Value: aws.Credentials{
					AccessKeyID: "dummy", SecretAccessKey: "dummy", SessionToken: "dummy",
				},
			}),
		)
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}

	s := &DynamoStore{db: dynamodb.NewFromConfig(cfg), table: opts.Table}
	s.ensureTableExists(ctx)
	return s, nil
}

func (s *DynamoStore) ensureTableExists(ctx context.Context) {
	_, err := s.db.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.table),
		AttributeDefinitions: []types.AttributeDefinition{
			{
				AttributeName: aws.String("Slot"),
				AttributeType: types.ScalarAttributeTypeS,
			},
		},
		KeySchema: []types.KeySchemaElement{
			{
				AttributeName: aws.String("Slot"),
				KeyType:       types.KeyTypeHash,
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		log.Debug().Err(err).Str("table", s.table).Msg("table might already exist")
	}
}

func (s *DynamoStore) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.db.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.table),
		Key: map[string]types.AttributeValue{
			"Slot": &types.AttributeValueMemberS{Value: key},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, errors.Wrapf(err, "dynamodb get %s", key)
	}
	if len(out.Item) == 0 {
		return nil, ErrNotFound
	}
	blob, ok := out.Item["Blob"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.Errorf("dynamodb item %s has no Blob attribute", key)
	}
	return []byte(blob.Value), nil
}

func (s *DynamoStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.table),
		Item: map[string]types.AttributeValue{
			"Slot":      &types.AttributeValueMemberS{Value: key},
			"Blob":      &types.AttributeValueMemberS{Value: string(value)},
			"UpdatedAt": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339)},
		},
	})
	if err != nil {
		return errors.Wrapf(err, "dynamodb put %s", key)
	}
	return nil
}

func (s *DynamoStore) Close() error { return nil }
