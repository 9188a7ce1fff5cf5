// Package mongodb stores profiles and transactions as MongoDB documents.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"cofrinho/internal/core"
	applog "cofrinho/internal/log"
	"cofrinho/internal/store"
)

const (
	ProfileCollection     = "users"
	TransactionCollection = "transactions"

	// codeUnauthorized is the server error code for a refused operation.
	codeUnauthorized = 13
)

// Config selects the deployment and database.
type Config struct {
	URI      string
	Database string
	// Transactions wraps batch writes in a multi-document transaction.
	// Requires a replica set.
	Transactions bool
}

type Store struct {
	client       *mongo.Client
	db           *mongo.Database
	transactions bool
	logger       *applog.Logger
}

var _ store.Store = (*Store)(nil)

// Connect opens a client and ensures the indexes used by the listings.
func Connect(ctx context.Context, cfg Config, logger *applog.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("mongo uri is required")
	}
	if cfg.Database == "" {
		cfg.Database = "cofrinho"
	}
	if logger == nil {
		logger = applog.Discard()
	}
	logger = logger.WithComponent(applog.ComponentMongo)

	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(cfg.URI).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}

	s := &Store{
		client:       client,
		db:           client.Database(cfg.Database),
		transactions: cfg.Transactions,
		logger:       logger,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("connected to MongoDB", "database", cfg.Database, "transactions", cfg.Transactions)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.txs().Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "dueDate", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: -1}}},
		{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "groupId", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("create indexes: %w", mapError(err))
	}
	return nil
}

func (s *Store) profiles() *mongo.Collection { return s.db.Collection(ProfileCollection) }

func (s *Store) txs() *mongo.Collection { return s.db.Collection(TransactionCollection) }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongodb: %w", err)
	}
	return nil
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.ErrNotFound
	}
	var se mongo.ServerError
	if errors.As(err, &se) && se.HasErrorCode(codeUnauthorized) {
		return fmt.Errorf("%w: %v", core.ErrAccessDenied, err)
	}
	return err
}

func (s *Store) GetProfile(ctx context.Context, uid string) (*core.ProfileDocument, error) {
	var doc core.ProfileDocument
	if err := s.profiles().FindOne(ctx, bson.M{"_id": uid}).Decode(&doc); err != nil {
		return nil, fmt.Errorf("get profile %s: %w", uid, mapError(err))
	}
	return &doc, nil
}

func (s *Store) CreateProfile(ctx context.Context, doc core.ProfileDocument) error {
	_, err := s.profiles().ReplaceOne(ctx, bson.M{"_id": doc.UID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("create profile %s: %w", doc.UID, mapError(err))
	}
	return nil
}

func profileUpdate(patch core.ProfilePatch) bson.D {
	set := bson.D{}
	if xp, level, ok := patch.XP(); ok {
		set = append(set, bson.E{Key: "xp", Value: xp}, bson.E{Key: "level", Value: level})
	}
	if patch.Streak != nil {
		set = append(set, bson.E{Key: "streak", Value: *patch.Streak})
	}
	if patch.LastSavingsDate != nil {
		set = append(set, bson.E{Key: "lastSavingsDate", Value: *patch.LastSavingsDate})
	}
	if patch.TotalSavings != nil {
		set = append(set, bson.E{Key: "totalSavings", Value: *patch.TotalSavings})
	}
	if patch.SavingsCycle != nil {
		set = append(set, bson.E{Key: "savingsCycle", Value: *patch.SavingsCycle})
	}
	if patch.SavingsGoal != nil {
		set = append(set, bson.E{Key: "savingsGoal", Value: *patch.SavingsGoal})
	}
	return set
}

func (s *Store) UpdateProfile(ctx context.Context, uid string, patch core.ProfilePatch) error {
	set := profileUpdate(patch)
	if len(set) == 0 {
		_, err := s.GetProfile(ctx, uid)
		return err
	}
	res, err := s.profiles().UpdateOne(ctx, bson.M{"_id": uid}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("update profile %s: %w", uid, mapError(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update profile %s: %w", uid, core.ErrNotFound)
	}
	return nil
}

func (s *Store) GetTransaction(ctx context.Context, id string) (*core.Transaction, error) {
	var tx core.Transaction
	if err := s.txs().FindOne(ctx, bson.M{"_id": id}).Decode(&tx); err != nil {
		return nil, fmt.Errorf("get transaction %s: %w", id, mapError(err))
	}
	return &tx, nil
}

// withBatch runs fn inside a session transaction when enabled.
func (s *Store) withBatch(ctx context.Context, fn func(ctx context.Context) error) error {
	if !s.transactions {
		return fn(ctx)
	}
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", mapError(err))
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *Store) CreateTransactions(ctx context.Context, txs []core.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	docs := make([]any, 0, len(txs))
	for _, tx := range txs {
		docs = append(docs, tx)
	}
	err := s.withBatch(ctx, func(ctx context.Context) error {
		_, err := s.txs().InsertMany(ctx, docs)
		return err
	})
	if err != nil {
		return fmt.Errorf("create transactions: %w", mapError(err))
	}
	return nil
}

func (s *Store) UpdateTransaction(ctx context.Context, id string, patch core.TransactionPatch) error {
	set := bson.D{}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Value != nil {
		set = append(set, bson.E{Key: "value", Value: *patch.Value})
	}
	if patch.Category != nil {
		set = append(set, bson.E{Key: "category", Value: *patch.Category})
	}
	if patch.DueDate != nil {
		set = append(set, bson.E{Key: "dueDate", Value: *patch.DueDate})
	}
	if patch.IsPaid != nil {
		set = append(set, bson.E{Key: "isPaid", Value: *patch.IsPaid})
	}
	if len(set) == 0 {
		_, err := s.GetTransaction(ctx, id)
		return err
	}

	res, err := s.txs().UpdateOne(ctx, bson.M{"_id": id}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return fmt.Errorf("update transaction %s: %w", id, mapError(err))
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("update transaction %s: %w", id, core.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	if _, err := s.txs().DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete transaction %s: %w", id, mapError(err))
	}
	return nil
}

func (s *Store) DeleteTransactions(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	err := s.withBatch(ctx, func(ctx context.Context) error {
		_, err := s.txs().DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
		return err
	})
	if err != nil {
		return fmt.Errorf("delete transactions: %w", mapError(err))
	}
	return nil
}

func (s *Store) ListTransactionsByGroup(ctx context.Context, uid, groupID string) ([]core.Transaction, error) {
	filter := bson.M{"userId": uid, "groupId": groupID}
	return s.find(ctx, filter, bson.D{{Key: "dueDate", Value: 1}, {Key: "_id", Value: 1}})
}

func (s *Store) ListTransactionsByDueDate(ctx context.Context, uid string, from, to time.Time) ([]core.Transaction, error) {
	filter := bson.M{"userId": uid, "dueDate": bson.M{"$gte": from, "$lte": to}}
	return s.find(ctx, filter, bson.D{{Key: "dueDate", Value: -1}, {Key: "_id", Value: 1}})
}

func (s *Store) ListTransactions(ctx context.Context, uid string) ([]core.Transaction, error) {
	return s.find(ctx, bson.M{"userId": uid}, bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: 1}})
}

func (s *Store) find(ctx context.Context, filter bson.M, sort bson.D) ([]core.Transaction, error) {
	cursor, err := s.txs().Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapError(err))
	}
	defer cursor.Close(ctx)

	out := make([]core.Transaction, 0)
	for cursor.Next(ctx) {
		var tx core.Transaction
		if err := cursor.Decode(&tx); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		out = append(out, tx)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list transactions: %w", mapError(err))
	}
	return out, nil
}
