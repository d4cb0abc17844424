package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/lexgo/blobstore"
)

// ErrConcurrentCommit is returned when another writer committed the
// same sequence number first.
var ErrConcurrentCommit = errors.New("concurrent commit detected")

// DDBClient is the subset of the DynamoDB API the commit store uses.
type DDBClient interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Commit records which snapshot blob is current for an index.
type Commit struct {
	// Seq is the commit sequence number, starting at 1.
	Seq uint64

	// Snapshot is the blob name the commit points at.
	Snapshot string

	// Generation is the writer generation the snapshot reflects.
	Generation uint64
}

// CommitStore tracks the current snapshot of an index in DynamoDB.
//
// S3 has no compare-and-swap, so a bare "CURRENT" object cannot
// safely coordinate concurrent writers. DynamoDB conditional writes
// provide the missing atomicity: each commit inserts a new row keyed
// by (index_uri, seq) with a condition that the row does not exist
// yet, so exactly one of two racing writers wins.
//
// Table schema:
//   - Partition key: index_uri (string)
//   - Sort key: seq (number), monotonically increasing
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name lexgo-commits \
//	  --attribute-definitions AttributeName=index_uri,AttributeType=S AttributeName=seq,AttributeType=N \
//	  --key-schema AttributeName=index_uri,KeyType=HASH AttributeName=seq,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
type CommitStore struct {
	client    DDBClient
	tableName string
	indexURI  string // e.g. "s3://bucket/prefix", the partition key
}

// NewCommitStore creates a commit store. indexURI identifies the index
// (conventionally "s3://bucket/prefix") and is used as the partition key.
func NewCommitStore(client DDBClient, tableName, indexURI string) *CommitStore {
	return &CommitStore{
		client:    client,
		tableName: tableName,
		indexURI:  indexURI,
	}
}

// Latest returns the most recent commit, or blobstore.ErrNotFound if
// nothing has been committed yet.
func (s *CommitStore) Latest(ctx context.Context) (Commit, error) {
	resp, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("index_uri = :uri"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":uri": &types.AttributeValueMemberS{Value: s.indexURI},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(1),
	})
	if err != nil {
		return Commit{}, fmt.Errorf("s3: query commits: %w", err)
	}
	if len(resp.Items) == 0 {
		return Commit{}, blobstore.ErrNotFound
	}
	return commitFromItem(resp.Items[0])
}

// Commit atomically records snapshot as the current blob for the
// index. generation is the writer generation the snapshot reflects.
// Returns ErrConcurrentCommit if another writer got there first.
func (s *CommitStore) Commit(ctx context.Context, snapshot string, generation uint64) (Commit, error) {
	var seq uint64 = 1
	latest, err := s.Latest(ctx)
	switch {
	case err == nil:
		seq = latest.Seq + 1
	case errors.Is(err, blobstore.ErrNotFound):
	default:
		return Commit{}, err
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"index_uri":  &types.AttributeValueMemberS{Value: s.indexURI},
			"seq":        &types.AttributeValueMemberN{Value: strconv.FormatUint(seq, 10)},
			"snapshot":   &types.AttributeValueMemberS{Value: snapshot},
			"generation": &types.AttributeValueMemberN{Value: strconv.FormatUint(generation, 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(seq)"),
	})
	if err != nil {
		var condErr *types.ConditionalCheckFailedException
		if errors.As(err, &condErr) {
			return Commit{}, ErrConcurrentCommit
		}
		return Commit{}, fmt.Errorf("s3: commit: %w", err)
	}

	return Commit{Seq: seq, Snapshot: snapshot, Generation: generation}, nil
}

func commitFromItem(item map[string]types.AttributeValue) (Commit, error) {
	seqAttr, ok := item["seq"].(*types.AttributeValueMemberN)
	if !ok {
		return Commit{}, errors.New("s3: invalid seq attribute")
	}
	snapAttr, ok := item["snapshot"].(*types.AttributeValueMemberS)
	if !ok {
		return Commit{}, errors.New("s3: invalid snapshot attribute")
	}
	genAttr, ok := item["generation"].(*types.AttributeValueMemberN)
	if !ok {
		return Commit{}, errors.New("s3: invalid generation attribute")
	}

	seq, err := strconv.ParseUint(seqAttr.Value, 10, 64)
	if err != nil {
		return Commit{}, fmt.Errorf("s3: parse seq: %w", err)
	}
	gen, err := strconv.ParseUint(genAttr.Value, 10, 64)
	if err != nil {
		return Commit{}, fmt.Errorf("s3: parse generation: %w", err)
	}

	return Commit{Seq: seq, Snapshot: snapAttr.Value, Generation: gen}, nil
}
