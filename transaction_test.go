package odm

import (
	"context"
	"testing"

	arango "github.com/arangodb/go-driver"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBeginTwice(t *testing.T) {
	tx := NewTransactionManager(&fakeTransactor{}, nil, nil)
	assert.False(t, tx.HasTransaction())
	require.NoError(t, tx.Begin())
	assert.True(t, tx.HasTransaction())
	assert.Equal(t, transactionActive, tx.Begin())
}

func TestCommandsRequireTransaction(t *testing.T) {
	tx := NewTransactionManager(&fakeTransactor{}, nil, nil)

	_, err := tx.AddCommand("1;", "test")
	assert.Equal(t, noTransaction, err)
	assert.Equal(t, noTransaction, tx.AddReadCollection("users"))
	assert.Equal(t, noTransaction, tx.AddWriteCollection("users"))
	assert.Equal(t, noTransaction, tx.Cancel())
	_, err = tx.Commit(context.TODO())
	assert.Equal(t, noTransaction, err)
}

func TestCommitRunsQueuedQueries(t *testing.T) {
	db := &fakeTransactor{result: []interface{}{
		[]interface{}{map[string]interface{}{"_key": "1"}},
		nil,
	}}
	tx := NewTransactionManager(db, nil, nil)
	require.NoError(t, tx.Begin())
	require.NoError(t, tx.AddReadCollection("users"))
	require.NoError(t, tx.AddReadCollection("users"))
	require.NoError(t, tx.AddWriteCollection("logs"))

	q := NewQuery(&fakeDatabase{}, tx)
	_, err := q.GetAll(context.TODO(), "FOR u IN users RETURN u", nil)
	require.NoError(t, err)
	_, err = q.GetOne(context.TODO(), "FOR u IN users FILTER u._key == @key RETURN u", map[string]interface{}{"key": "2"})
	require.NoError(t, err)

	results, err := tx.Commit(context.TODO())
	require.NoError(t, err)

	assert.Equal(t, 1, db.calls)
	assert.Equal(t,
		`function () { var db = require("@arangodb").db; var result = []; `+
			`result[0] = db._createStatement({"query":"FOR u IN users RETURN u","bindVars":{}}).execute().elements(); `+
			`result[1] = function(){var elements = db._createStatement({"query":"FOR u IN users FILTER u._key == @key RETURN u","bindVars":{"key":"2"}}).execute().elements(); return elements[0] ? elements[0] : null}(); `+
			`return result; }`,
		db.action)
	assert.Equal(t, []string{"users"}, db.options.ReadCollections)
	assert.Equal(t, []string{"logs"}, db.options.WriteCollections)

	require.Len(t, results, 2)
	assert.Equal(t, "Query:getAll", results[0].Label)
	assert.Equal(t, []interface{}{map[string]interface{}{"_key": "1"}}, results[0].Value)
	assert.Equal(t, "Query:getOne", results[1].Label)
	assert.Nil(t, results[1].Value)
	assert.False(t, tx.HasTransaction())
}

func TestCommitEmptyTransaction(t *testing.T) {
	db := &fakeTransactor{}
	tx := NewTransactionManager(db, nil, nil)
	require.NoError(t, tx.Begin())

	results, err := tx.Commit(context.TODO())
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 0, db.calls)
	assert.False(t, tx.HasTransaction())
}

func TestCommitFailureClosesTransaction(t *testing.T) {
	db := &fakeTransactor{err: arango.ArangoError{Code: 500, ErrorNum: 1650, ErrorMessage: "transaction aborted"}}
	tx := NewTransactionManager(db, nil, nil)
	require.NoError(t, tx.Begin())
	_, err := tx.AddCommand("1;", "test")
	require.NoError(t, err)

	_, err = tx.Commit(context.TODO())
	var qe *QueryError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "transaction aborted", qe.Message)
	assert.Equal(t, 1650, qe.ErrorNum)
	assert.False(t, tx.HasTransaction())
	assert.Empty(t, tx.commands)
}

func TestCancelDropsCommands(t *testing.T) {
	tx := NewTransactionManager(&fakeTransactor{}, nil, nil)
	require.NoError(t, tx.Begin())
	pos, err := tx.AddCommand("1;", "first")
	require.NoError(t, err)
	assert.Equal(t, 0, pos)
	pos, err = tx.AddCommand("2;", "second")
	require.NoError(t, err)
	assert.Equal(t, 1, pos)

	require.NoError(t, tx.Cancel())
	assert.False(t, tx.HasTransaction())
	assert.Empty(t, tx.commands)
}

func TestTransactionMetrics(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	tx := NewTransactionManager(&fakeTransactor{result: []interface{}{}}, nil, m)
	require.NoError(t, tx.Begin())
	_, err = tx.AddCommand("1;", "Query:getAll")
	require.NoError(t, err)
	_, err = tx.Commit(context.TODO())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TransactionCommands.WithLabelValues("Query:getAll")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues(opCommit, "ok")))
}

func TestCommitRejectsNonArrayResult(t *testing.T) {
	tx := NewTransactionManager(&fakeTransactor{result: map[string]interface{}{"0": 1}}, nil, nil)
	require.NoError(t, tx.Begin())
	_, err := tx.AddCommand("1;", "test")
	require.NoError(t, err)

	results, err := tx.Commit(context.TODO())
	assert.Nil(t, results)
	assert.EqualError(t, err, "odm: unexpected transaction result of type map[string]interface {}")
	assert.False(t, tx.HasTransaction())
}
