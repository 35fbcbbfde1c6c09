package lease

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

// DDBClient is the interface for DynamoDB operations used by the locker.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

// DDBLockerOptions contains configuration options for the DynamoDB locker.
type DDBLockerOptions struct {
	// TTL bounds how long a crashed writer can block a scope.
	TTL time.Duration

	// RetryInterval is the poll interval while a scope is held elsewhere.
	RetryInterval time.Duration
}

// DDBLocker implements Locker with DynamoDB conditional writes. S3 offers no
// compare-and-swap, so the lease table provides the mutual exclusion the
// object store lacks.
//
// Table schema:
//   - Partition key: scope (string)
//
// Create table with:
//
//	aws dynamodb create-table \
//	  --table-name pagevec-leases \
//	  --attribute-definitions AttributeName=scope,AttributeType=S \
//	  --key-schema AttributeName=scope,KeyType=HASH \
//	  --billing-mode PAY_PER_REQUEST
type DDBLocker struct {
	client    DDBClient
	tableName string
	opts      DDBLockerOptions
}

// NewDDBLocker creates a new DynamoDB-backed locker.
func NewDDBLocker(client DDBClient, tableName string, optFns ...func(o *DDBLockerOptions)) *DDBLocker {
	opts := DDBLockerOptions{
		TTL:           2 * time.Minute,
		RetryInterval: 500 * time.Millisecond,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &DDBLocker{
		client:    client,
		tableName: tableName,
		opts:      opts,
	}
}

// Acquire claims the scope with a conditional put, polling while another
// holder's unexpired lease exists.
func (l *DDBLocker) Acquire(ctx context.Context, scope string) (Lease, error) {
	owner := uuid.NewString()

	for {
		now := time.Now()
		expires := now.Add(l.opts.TTL)

		_, err := l.client.PutItem(ctx, &dynamodb.PutItemInput{
			TableName: aws.String(l.tableName),
			Item: map[string]types.AttributeValue{
				"scope":      &types.AttributeValueMemberS{Value: scope},
				"owner":      &types.AttributeValueMemberS{Value: owner},
				"expires_at": &types.AttributeValueMemberN{Value: strconv.FormatInt(expires.Unix(), 10)},
			},
			ConditionExpression: aws.String("attribute_not_exists(#s) OR expires_at < :now"),
			ExpressionAttributeNames: map[string]string{
				"#s": "scope",
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":now": &types.AttributeValueMemberN{Value: strconv.FormatInt(now.Unix(), 10)},
			},
		})
		if err == nil {
			return &ddbLease{locker: l, scope: scope, owner: owner}, nil
		}

		var ccf *types.ConditionalCheckFailedException
		if !errors.As(err, &ccf) {
			return nil, err
		}

		select {
		case <-time.After(l.opts.RetryInterval):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

type ddbLease struct {
	locker *DDBLocker
	scope  string
	owner  string
}

func (l *ddbLease) Release(ctx context.Context) error {
	_, err := l.locker.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(l.locker.tableName),
		Key: map[string]types.AttributeValue{
			"scope": &types.AttributeValueMemberS{Value: l.scope},
		},
		ConditionExpression: aws.String("#o = :owner"),
		ExpressionAttributeNames: map[string]string{
			"#o": "owner",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":owner": &types.AttributeValueMemberS{Value: l.owner},
		},
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return ErrNotHeld
		}
		return err
	}
	return nil
}
