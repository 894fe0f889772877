// Package repository persists the preference table and completed
// conversation turns in DynamoDB for hosted deployments. Local runs use
// the JSON file store instead; the two sit behind the same interfaces.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pranav271103/smart-scheduler-ai-agent/internal/domain"
	"github.com/pranav271103/smart-scheduler-ai-agent/internal/prefs"
)

const (
	skPrefs      = "PREFS"
	skPrefixTurn = "TURN#"
	ttlDuration  = 90 * 24 * time.Hour
)

// dynamodbAPI is the minimal DynamoDB interface required by Store.
// Defined here for testability.
type dynamodbAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// Store wraps a DynamoDB table keyed by user. The preference document is
// written whole on each save, matching the load-then-store discipline of
// the single-writer dialogue controller.
type Store struct {
	api       dynamodbAPI
	tableName string
	userID    string
}

// New creates a Store for one user's partition.
func New(api dynamodbAPI, tableName, userID string) (*Store, error) {
	if api == nil {
		return nil, errors.New("repository: api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("repository: table name must not be empty")
	}
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("repository: user id must not be empty")
	}
	return &Store{api: api, tableName: tableName, userID: userID}, nil
}

func (s *Store) pk() string {
	return "USER#" + s.userID
}

func turnSK(ts time.Time) string {
	return skPrefixTurn + ts.UTC().Format(time.RFC3339Nano)
}

func ttlValue() int64 {
	return time.Now().Add(ttlDuration).Unix()
}

// Load reads the preference document. A missing item yields (nil, nil) so
// the tracker falls back to defaults.
func (s *Store) Load(ctx context.Context) (*prefs.Preferences, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: s.pk()},
			"SK": &types.AttributeValueMemberS{Value: skPrefs},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: Load get item: %w", err)
	}
	if out == nil || len(out.Item) == 0 {
		return nil, nil
	}
	doc, ok := out.Item["doc"].(*types.AttributeValueMemberS)
	if !ok {
		return nil, errors.New("repository: Load: preference item missing doc attribute")
	}
	var p prefs.Preferences
	if err := json.Unmarshal([]byte(doc.Value), &p); err != nil {
		return nil, fmt.Errorf("repository: Load decode: %w", err)
	}
	return &p, nil
}

// Save replaces the whole preference document.
func (s *Store) Save(ctx context.Context, p *prefs.Preferences) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("repository: Save encode: %w", err)
	}
	_, err = s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":  &types.AttributeValueMemberS{Value: s.pk()},
			"SK":  &types.AttributeValueMemberS{Value: skPrefs},
			"doc": &types.AttributeValueMemberS{Value: string(raw)},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: Save put item: %w", err)
	}
	return nil
}

// SaveTurn appends a completed conversation turn with a TTL.
func (s *Store) SaveTurn(ctx context.Context, conversationID string, turn domain.Turn) error {
	if strings.TrimSpace(conversationID) == "" {
		return errors.New("repository: SaveTurn: conversation id is required")
	}
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":             &types.AttributeValueMemberS{Value: s.pk()},
			"SK":             &types.AttributeValueMemberS{Value: turnSK(turn.At)},
			"conversationId": &types.AttributeValueMemberS{Value: conversationID},
			"input":          &types.AttributeValueMemberS{Value: turn.Input},
			"response":       &types.AttributeValueMemberS{Value: turn.Response},
			"ttl":            &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", ttlValue())},
		},
	})
	if err != nil {
		return fmt.Errorf("repository: SaveTurn put item: %w", err)
	}
	return nil
}

// RecentTurns returns up to limit of the newest turns, oldest first.
func (s *Store) RecentTurns(ctx context.Context, limit int) ([]domain.Turn, error) {
	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: s.pk()},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixTurn},
		},
		// Read newest first so LIMIT favors the most recent context.
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	})
	if err != nil {
		return nil, fmt.Errorf("repository: RecentTurns query: %w", err)
	}

	turns := make([]domain.Turn, 0, len(out.Items))
	for _, item := range out.Items {
		turn, err := itemToTurn(item)
		if err != nil {
			return nil, fmt.Errorf("repository: RecentTurns unmarshal: %w", err)
		}
		turns = append(turns, turn)
	}
	// Reverse to chronological order before returning to prompt assembly.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

func itemToTurn(item map[string]types.AttributeValue) (domain.Turn, error) {
	var turn domain.Turn
	if sk, ok := item["SK"].(*types.AttributeValueMemberS); ok {
		if ts, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(sk.Value, skPrefixTurn)); err == nil {
			turn.At = ts
		}
	}
	in, ok := item["input"].(*types.AttributeValueMemberS)
	if !ok {
		return domain.Turn{}, errors.New("turn item missing input attribute")
	}
	turn.Input = in.Value
	if resp, ok := item["response"].(*types.AttributeValueMemberS); ok {
		turn.Response = resp.Value
	}
	return turn, nil
}
