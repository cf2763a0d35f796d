package odm

import (
	"context"

	arango "github.com/arangodb/go-driver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// createDatabase creates a new ArangoDB database if it does not exist.
func (o *ODM) createDatabase(name string) (arango.Database, error) {
	ctx := context.Background()
	exists, err := o.client.DatabaseExists(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "odm: failed to check database: %v", name)
	}
	if exists {
		return nil, databaseAlreadyExists
	}
	db, err := o.client.CreateDatabase(ctx, name, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "odm: failed to create database: %v", name)
	}
	o.logger.Info("created database", zap.String("database", name))
	return db, nil
}

// openDatabase opens an ArangoDB database if it exists.
func (o *ODM) openDatabase(name string) (arango.Database, error) {
	ctx := context.Background()
	exists, err := o.client.DatabaseExists(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "odm: failed to check database: %v", name)
	}
	if !exists {
		return nil, databaseDoesNotExist
	}
	db, err := o.client.Database(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "odm: failed to open database: %v", name)
	}
	return db, nil
}
