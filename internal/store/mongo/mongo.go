// Package mongo is the document store backed by MongoDB. Transactions need a
// replica set or sharded cluster; a standalone server rejects them.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"spendwise/internal/core"
	"spendwise/internal/store"
)

const (
	usersCollection    = "users"
	expensesCollection = "expenses"
	accountsCollection = "accounts"
)

type userDoc struct {
	ID                string `bson:"_id"`
	TotalExpenseCents int64  `bson:"totalExpenseCents"`
}

type expenseDoc struct {
	ID          string    `bson:"_id"`
	UserID      string    `bson:"userId"`
	Name        string    `bson:"name"`
	AmountCents int64     `bson:"amountCents"`
	Date        time.Time `bson:"date"`
}

func (d expenseDoc) expense() core.Expense {
	return core.Expense{
		ID:     d.ID,
		UserID: d.UserID,
		Name:   d.Name,
		Amount: core.Money{Cents: d.AmountCents},
		Date:   d.Date.UTC(),
	}
}

type accountDoc struct {
	Email        string    `bson:"_id"`
	UserID       string    `bson:"userId"`
	PasswordHash []byte    `bson:"passwordHash"`
	CreatedAt    time.Time `bson:"createdAt"`
}

type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	expenses *mongo.Collection
	accounts *mongo.Collection
}

var _ store.Backend = (*Store)(nil)

// Open connects to uri, pings the server and ensures the expense index.
func Open(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		expenses: db.Collection(expensesCollection),
		accounts: db.Collection(accountsCollection),
	}

	_, err = s.expenses.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "date", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("create expense index: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func getUser(ctx context.Context, users *mongo.Collection, userID string) (core.User, error) {
	var doc userDoc
	err := users.FindOne(ctx, bson.M{"_id": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.User{}, store.ErrNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("get user: %w", err)
	}
	return core.User{ID: doc.ID, TotalExpense: core.Money{Cents: doc.TotalExpenseCents}}, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (core.User, error) {
	return getUser(ctx, s.users, userID)
}

func (s *Store) GetExpense(ctx context.Context, userID, expenseID string) (core.Expense, error) {
	var doc expenseDoc
	err := s.expenses.FindOne(ctx, bson.M{"_id": expenseID, "userId": userID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return core.Expense{}, store.ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense: %w", err)
	}
	return doc.expense(), nil
}

func (s *Store) ListExpenses(ctx context.Context, userID string) ([]core.Expense, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: -1}, {Key: "_id", Value: -1}})
	cur, err := s.expenses.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	defer cur.Close(ctx)

	out := make([]core.Expense, 0)
	for cur.Next(ctx) {
		var doc expenseDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode expense: %w", err)
		}
		out = append(out, doc.expense())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate expenses: %w", err)
	}
	return out, nil
}

func replaceUser(ctx context.Context, users *mongo.Collection, u core.User) error {
	_, err := users.ReplaceOne(ctx,
		bson.M{"_id": u.ID},
		userDoc{ID: u.ID, TotalExpenseCents: u.TotalExpense.Cents},
		options.Replace().SetUpsert(true))
	return err
}

func (s *Store) CreateUser(ctx context.Context, user core.User) error {
	if err := replaceUser(ctx, s.users, user); err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

type tx struct {
	store.TxWrites
	users *mongo.Collection
}

func (t *tx) GetUser(ctx context.Context, userID string) (core.User, error) {
	if err := t.CheckRead(); err != nil {
		return core.User{}, err
	}
	return getUser(ctx, t.users, userID)
}

// withSession runs fn inside a driver-managed transaction, which retries
// transient conflicts on its own.
func (s *Store) withSession(ctx context.Context, fn func(sc mongo.SessionContext) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

func (s *Store) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return s.withSession(ctx, func(sc mongo.SessionContext) error {
		t := &tx{users: s.users}
		if err := fn(sc, t); err != nil {
			return err
		}
		for _, e := range t.Expenses {
			if err := e.Validate(); err != nil {
				return err
			}
			_, err := s.expenses.InsertOne(sc, expenseDoc{
				ID:          e.ID,
				UserID:      e.UserID,
				Name:        e.Name,
				AmountCents: e.Amount.Cents,
				Date:        e.Date.UTC(),
			})
			if err != nil {
				return fmt.Errorf("insert expense: %w", err)
			}
		}
		for _, u := range t.Users {
			if err := replaceUser(sc, s.users, u); err != nil {
				return fmt.Errorf("write user: %w", err)
			}
		}
		return nil
	})
}

type batch struct {
	store.BatchOps
	s *Store
}

func (s *Store) NewBatch() store.Batch {
	return &batch{s: s}
}

func (b *batch) Commit(ctx context.Context) error {
	s := b.s
	return s.withSession(ctx, func(sc mongo.SessionContext) error {
		for _, op := range b.Ops {
			if op.IsDelete() {
				res, err := s.expenses.DeleteOne(sc, bson.M{"_id": op.ExpenseID, "userId": op.UserID})
				if err != nil {
					return fmt.Errorf("delete expense: %w", err)
				}
				if res.DeletedCount == 0 {
					return store.ErrNotFound
				}
				continue
			}
			_, err := s.users.UpdateOne(sc,
				bson.M{"_id": op.UserID},
				bson.M{"$inc": bson.M{"totalExpenseCents": op.Delta.Cents}},
				options.Update().SetUpsert(true))
			if err != nil {
				return fmt.Errorf("increment total: %w", err)
			}
		}
		return nil
	})
}

func (s *Store) CreateAccount(ctx context.Context, a store.Account) error {
	_, err := s.accounts.InsertOne(ctx, accountDoc{
		Email:        strings.ToLower(a.Email),
		UserID:       a.UserID,
		PasswordHash: a.PasswordHash,
		CreatedAt:    a.CreatedAt.UTC(),
	})
	if mongo.IsDuplicateKeyError(err) {
		return store.ErrAccountExists
	}
	if err != nil {
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (store.Account, error) {
	var doc accountDoc
	err := s.accounts.FindOne(ctx, bson.M{"_id": strings.ToLower(email)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return store.Account{}, store.ErrNotFound
	}
	if err != nil {
		return store.Account{}, fmt.Errorf("get account: %w", err)
	}
	return store.Account{
		Email:        doc.Email,
		UserID:       doc.UserID,
		PasswordHash: doc.PasswordHash,
		CreatedAt:    doc.CreatedAt.UTC(),
	}, nil
}
