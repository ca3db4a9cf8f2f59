package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
)

// MongoUnitOfWork runs a callback inside a MongoDB transaction. Transactions
// need a replica set; with transactions disabled the callback runs directly.
type MongoUnitOfWork struct {
	client       *mongo.Client
	transactions bool
}

// NewMongoUnitOfWork builds a unit of work over client.
func NewMongoUnitOfWork(client *mongo.Client, transactions bool) *MongoUnitOfWork {
	return &MongoUnitOfWork{client: client, transactions: transactions}
}

// RunInTx executes fn in a transaction. Nested calls join the outer session.
func (u *MongoUnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if !u.transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}
	session, err := u.client.StartSession()
	if err != nil {
		return err
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}
