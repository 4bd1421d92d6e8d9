// Package dynamo persists noise records and counters in DynamoDB.
//
// DynamoDB has no ORDER BY or geospatial operators, so FetchRecords pushes
// the equality and range constraints into a Scan filter and then orders and
// truncates the page in memory. Counters live in their own table and are
// changed with UpdateItem ADD inside a transaction, which is atomic on the
// server.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"noisemap/internal/domain/entities"
	"noisemap/internal/repository"
)

// API is the subset of *dynamodb.Client used by Store.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, opts ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	TransactWriteItems(ctx context.Context, in *dynamodb.TransactWriteItemsInput, opts ...func(*dynamodb.Options)) (*dynamodb.TransactWriteItemsOutput, error)
}

// Tables names the two tables. Records are keyed by "id", counters by "pk".
type Tables struct {
	Records  string
	Counters string
}

// Options configures the client built by Connect.
type Options struct {
	Region   string
	Endpoint string
	Tables   Tables
}

const (
	counterPrefix = "ctr#"
	opPrefix      = "op#"
)

// Store implements repository.RecordStore and repository.CounterStore.
type Store struct {
	client API
	tables Tables
}

var (
	_ repository.RecordStore  = (*Store)(nil)
	_ repository.CounterStore = (*Store)(nil)
)

// Connect loads the default AWS configuration chain and returns a Store.
func Connect(ctx context.Context, opts Options) (*Store, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(opts.Region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
	})
	return New(client, opts.Tables), nil
}

func New(client API, tables Tables) *Store {
	return &Store{client: client, tables: tables}
}

func unavailable(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", repository.ErrStoreUnavailable, err)
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func numberAttr(v float64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(v, 'f', -1, 64)}
}

func intAttr(v int64) types.AttributeValue {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(v, 10)}
}

func stringAttr(v string) types.AttributeValue {
	return &types.AttributeValueMemberS{Value: v}
}

func marshalRecord(rec *entities.NoiseRecord) map[string]types.AttributeValue {
	item := map[string]types.AttributeValue{
		"id":       stringAttr(rec.ID),
		"owner_id": stringAttr(rec.OwnerID),
		"kind":     stringAttr(string(rec.Kind)),
		"visible":  &types.AttributeValueMemberBOOL{Value: rec.Visible},
	}
	if entities.FiniteLevel(rec.Level) {
		item["level"] = numberAttr(*rec.Level)
	}
	if rec.Position != nil {
		item["lat"] = numberAttr(rec.Position.Latitude)
		item["lng"] = numberAttr(rec.Position.Longitude)
	}
	if rec.HasTimestamp() {
		item["recorded_at"] = intAttr(rec.Timestamp.UnixNano())
	}
	optional := map[string]string{
		"spatial_key":      rec.SpatialKey,
		"address":          rec.Address,
		"complaint_origin": rec.ComplaintOrigin,
		"complaint_impact": rec.ComplaintImpact,
		"sensation":        rec.Sensation,
		"comment":          rec.Comment,
	}
	for name, v := range optional {
		if v != "" {
			item[name] = stringAttr(v)
		}
	}
	return item
}

func getString(item map[string]types.AttributeValue, name string) string {
	if v, ok := item[name].(*types.AttributeValueMemberS); ok {
		return v.Value
	}
	return ""
}

func getNumber(item map[string]types.AttributeValue, name string) (float64, bool) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v.Value, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func getInt(item map[string]types.AttributeValue, name string) (int64, bool) {
	v, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Value, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// unmarshalRecord tolerates missing attributes; the analytics reducers
// decide what a record without a level or timestamp is good for.
func unmarshalRecord(item map[string]types.AttributeValue) *entities.NoiseRecord {
	rec := &entities.NoiseRecord{
		ID:              getString(item, "id"),
		OwnerID:         getString(item, "owner_id"),
		Kind:            entities.Kind(getString(item, "kind")),
		SpatialKey:      getString(item, "spatial_key"),
		Address:         getString(item, "address"),
		ComplaintOrigin: getString(item, "complaint_origin"),
		ComplaintImpact: getString(item, "complaint_impact"),
		Sensation:       getString(item, "sensation"),
		Comment:         getString(item, "comment"),
	}
	if v, ok := item["visible"].(*types.AttributeValueMemberBOOL); ok {
		rec.Visible = v.Value
	}
	if level, ok := getNumber(item, "level"); ok {
		rec.Level = entities.LevelOf(level)
	}
	lat, latOK := getNumber(item, "lat")
	lng, lngOK := getNumber(item, "lng")
	if latOK && lngOK {
		rec.Position = &entities.Location{Latitude: lat, Longitude: lng}
	}
	if ns, ok := getInt(item, "recorded_at"); ok && ns != 0 {
		rec.Timestamp = time.Unix(0, ns).UTC()
	}
	return rec
}

func (s *Store) Create(ctx context.Context, rec *entities.NoiseRecord) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Records),
		Item:                marshalRecord(rec),
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("record %s already exists", rec.ID)
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*entities.NoiseRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tables.Records),
		Key:            map[string]types.AttributeValue{"id": stringAttr(id)},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, unavailable(err)
	}
	if len(out.Item) == 0 {
		return nil, repository.ErrRecordNotFound
	}
	return unmarshalRecord(out.Item), nil
}

func (s *Store) Update(ctx context.Context, rec *entities.NoiseRecord) error {
	_, err := s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tables.Records),
		Item:                marshalRecord(rec),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return repository.ErrRecordNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(s.tables.Records),
		Key:                 map[string]types.AttributeValue{"id": stringAttr(id)},
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return repository.ErrRecordNotFound
	}
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// scanFilter translates the pushdown-capable parts of filter into a Scan
// filter expression. Ordering and Limit are applied after the scan.
// Attribute names always go through placeholders since several of them
// collide with DynamoDB reserved words.
func scanFilter(filter repository.RecordFilter) (*string, map[string]string, map[string]types.AttributeValue) {
	var clauses []string
	names := map[string]string{}
	values := map[string]types.AttributeValue{}

	if filter.Kind != "" {
		clauses = append(clauses, "#kind = :kind")
		names["#kind"] = "kind"
		values[":kind"] = stringAttr(string(filter.Kind))
	}
	if filter.VisibleOnly {
		clauses = append(clauses, "#visible = :visible")
		names["#visible"] = "visible"
		values[":visible"] = &types.AttributeValueMemberBOOL{Value: true}
	}
	if filter.OwnerID != "" {
		clauses = append(clauses, "#owner = :owner")
		names["#owner"] = "owner_id"
		values[":owner"] = stringAttr(filter.OwnerID)
	}
	if !filter.MinTimestamp.IsZero() {
		clauses = append(clauses, "#recorded_at >= :since")
		names["#recorded_at"] = "recorded_at"
		values[":since"] = intAttr(filter.MinTimestamp.UnixNano())
	}
	if filter.SpatialKeyPrefix != "" {
		clauses = append(clauses, "begins_with(#spatial_key, :prefix)")
		names["#spatial_key"] = "spatial_key"
		values[":prefix"] = stringAttr(filter.SpatialKeyPrefix)
	}

	if len(clauses) == 0 {
		return nil, nil, nil
	}
	return aws.String(strings.Join(clauses, " AND ")), names, values
}

func (s *Store) FetchRecords(ctx context.Context, filter repository.RecordFilter) ([]*entities.NoiseRecord, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	expr, names, values := scanFilter(filter)
	input := &dynamodb.ScanInput{
		TableName:                 aws.String(s.tables.Records),
		FilterExpression:          expr,
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
	}

	var records []*entities.NoiseRecord
	for {
		out, err := s.client.Scan(ctx, input)
		if err != nil {
			return nil, unavailable(err)
		}
		for _, item := range out.Items {
			records = append(records, unmarshalRecord(item))
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		input.ExclusiveStartKey = out.LastEvaluatedKey
	}

	return filter.Apply(records), nil
}

func counterPK(scope entities.CounterScope, key string) string {
	return counterPrefix + string(scope) + "#" + key
}

// Apply writes the op marker and every counter increment in one
// TransactWriteItems call. A cancelled transaction whose first reason is a
// failed condition on the op marker means the operation was already applied.
func (s *Store) Apply(ctx context.Context, opID string, deltas ...entities.CounterDelta) error {
	// A transaction may touch each item once, so repeated keys are merged.
	merged := make(map[string]int64)
	order := make([]string, 0, len(deltas))
	for _, d := range deltas {
		pk := counterPK(d.Scope, d.Key)
		if _, seen := merged[pk]; !seen {
			order = append(order, pk)
		}
		merged[pk] += d.Delta
	}

	items := make([]types.TransactWriteItem, 0, len(order)+1)
	if opID != "" {
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName: aws.String(s.tables.Counters),
				Item: map[string]types.AttributeValue{
					"pk":         stringAttr(opPrefix + opID),
					"applied_at": intAttr(time.Now().UnixNano()),
				},
				ConditionExpression: aws.String("attribute_not_exists(pk)"),
			},
		})
	}
	for _, pk := range order {
		items = append(items, types.TransactWriteItem{
			Update: &types.Update{
				TableName:                 aws.String(s.tables.Counters),
				Key:                       map[string]types.AttributeValue{"pk": stringAttr(pk)},
				UpdateExpression:          aws.String("ADD #value :delta"),
				ExpressionAttributeNames:  map[string]string{"#value": "value"},
				ExpressionAttributeValues: map[string]types.AttributeValue{":delta": intAttr(merged[pk])},
			},
		})
	}
	if len(items) == 0 {
		return nil
	}

	_, err := s.client.TransactWriteItems(ctx, &dynamodb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	var canceled *types.TransactionCanceledException
	if opID != "" && errors.As(err, &canceled) && len(canceled.CancellationReasons) > 0 &&
		aws.ToString(canceled.CancellationReasons[0].Code) == "ConditionalCheckFailed" {
		return nil
	}
	return unavailable(err)
}

func (s *Store) Get(ctx context.Context, scope entities.CounterScope, key string) (int64, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tables.Counters),
		Key:       map[string]types.AttributeValue{"pk": stringAttr(counterPK(scope, key))},
	})
	if err != nil {
		return 0, unavailable(err)
	}
	value, _ := getInt(out.Item, "value")
	return value, nil
}
