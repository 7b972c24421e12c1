package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"signal_report_backend/models"
)

// TradesCollection holds one document per trade, mirroring models.BinaryOptionTrade
const TradesCollection = "binary_option_trades"

// MongoStore reads the ledger from a MongoDB collection
type MongoStore struct {
	coll *mongo.Collection
}

// NewMongoStore wraps an existing collection
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

// ConnectMongo dials MongoDB, verifies the connection and returns the client together with a
// ledger over the trades collection. The caller owns the client and must disconnect it.
func ConnectMongo(ctx context.Context, uri, database string) (*mongo.Client, *MongoStore, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetServerAPIOptions(options.ServerAPI(options.ServerAPIVersion1)).
		SetMaxPoolSize(10).
		SetMinPoolSize(1).
		SetMaxConnIdleTime(30 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetRetryReads(true)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	store := NewMongoStore(client.Database(database).Collection(TradesCollection))
	if err := store.EnsureIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create ledger indexes")
	}

	log.Info().Str("database", database).Msg("MongoDB ledger connected")
	return client, store, nil
}

// EnsureIndexes creates the open_time index the range match relies on
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "open_time", Value: 1}},
	})
	return err
}

// CountByResult aggregates closed trades opened in [from, to)
func (s *MongoStore) CountByResult(ctx context.Context, from, to time.Time) (models.ResultCounts, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{
			{Key: "open_time", Value: bson.D{{Key: "$gte", Value: from.UTC()}, {Key: "$lt", Value: to.UTC()}}},
			{Key: "close_time", Value: bson.D{{Key: "$ne", Value: nil}}},
		}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
			{Key: "itm", Value: countWhere(models.ResultITM)},
			{Key: "otm", Value: countWhere(models.ResultOTM)},
		}}},
	}

	cursor, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return models.ResultCounts{}, fmt.Errorf("failed to aggregate trades: %w", err)
	}
	defer cursor.Close(ctx)

	var doc struct {
		Total int64 `bson:"total"`
		ITM   int64 `bson:"itm"`
		OTM   int64 `bson:"otm"`
	}
	if !cursor.Next(ctx) {
		// No matching trades: $group emits nothing
		if err := cursor.Err(); err != nil {
			return models.ResultCounts{}, fmt.Errorf("failed to read trade counts: %w", err)
		}
		return models.ResultCounts{}, nil
	}
	if err := cursor.Decode(&doc); err != nil {
		return models.ResultCounts{}, fmt.Errorf("failed to decode trade counts: %w", err)
	}

	return models.ResultCounts{Total: doc.Total, ITM: doc.ITM, OTM: doc.OTM}, nil
}

func countWhere(result models.TradeResult) bson.D {
	return bson.D{{Key: "$sum", Value: bson.D{{Key: "$cond", Value: bson.A{
		bson.D{{Key: "$eq", Value: bson.A{"$result", string(result)}}}, 1, 0,
	}}}}}
}
