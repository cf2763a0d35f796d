package odm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	arango "github.com/arangodb/go-driver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	labelGetAll = "Query:getAll"
	labelGetOne = "Query:getOne"
)

var (
	noExplainer = errors.New("odm: explain is not available")
	noPods      = errors.New("odm: no pod manager")
)

// Database is the part of arango.Database used to run queries.
type Database interface {
	Query(ctx context.Context, query string, bindVars map[string]interface{}) (arango.Cursor, error)
}

// Transactions decides whether queries are queued instead of executed.
// *TransactionManager satisfies it.
type Transactions interface {
	HasTransaction() bool
	AddCommand(command, label string) (int, error)
}

// Explainer returns the execution plan of a query without running it.
type Explainer interface {
	Explain(ctx context.Context, query string, bindVars map[string]interface{}) (map[string]interface{}, error)
}

// Query sends AQL queries to the server and shapes their results.
type Query struct {
	db        Database
	tx        Transactions
	explainer Explainer
	pods      *PodManager
	logger    *zap.Logger
	metrics   *Metrics
}

// QueryOption configures a Query.
type QueryOption func(*Query)

// WithExplainer sets the explainer used by Explain.
func WithExplainer(e Explainer) QueryOption { return func(q *Query) { q.explainer = e } }

// WithPodManager sets the pod manager used by ConvertToPods.
func WithPodManager(p *PodManager) QueryOption { return func(q *Query) { q.pods = p } }

// WithLogger sets the query logger.
func WithLogger(l *zap.Logger) QueryOption { return func(q *Query) { q.logger = l } }

// WithMetrics sets the collectors queries are recorded on.
func WithMetrics(m *Metrics) QueryOption { return func(q *Query) { q.metrics = m } }

// NewQuery creates a query helper executing on db. A nil tx means queries
// always execute immediately.
func NewQuery(db Database, tx Transactions, opts ...QueryOption) *Query {
	q := &Query{db: db, tx: tx, pods: &PodManager{}}
	for _, opt := range opts {
		opt(q)
	}
	if q.logger == nil {
		q.logger = zap.NewNop()
	}
	return q
}

// GetAll executes query and returns all results, or an empty slice when
// nothing is found. While a transaction is active the query is queued on it
// instead and GetAll returns no results. A transaction that ends before the
// query is queued leaves the query to run directly.
func (q *Query) GetAll(ctx context.Context, query string, params map[string]interface{}) ([]interface{}, error) {
	if q.inTransaction() {
		statement, err := statementJSON(query, params)
		if err != nil {
			return nil, err
		}
		queued, err := q.queue(fmt.Sprintf("db._createStatement(%s).execute().elements();", statement), labelGetAll)
		if queued || err != nil {
			return nil, err
		}
	}

	start := time.Now()
	results, err := q.readAll(ctx, query, params)
	q.done(opGetAll, query, start, err)
	if err != nil {
		return nil, normaliseDriverError(err)
	}
	return results, nil
}

// GetOne executes query and returns its first result, or nil when nothing
// is found. While a transaction is active the query is queued on it instead
// and GetOne returns nil.
func (q *Query) GetOne(ctx context.Context, query string, params map[string]interface{}) (interface{}, error) {
	if q.inTransaction() {
		statement, err := statementJSON(query, params)
		if err != nil {
			return nil, err
		}
		queued, err := q.queue(fmt.Sprintf("function(){var elements = db._createStatement(%s).execute().elements(); return elements[0] ? elements[0] : null}();", statement), labelGetOne)
		if queued || err != nil {
			return nil, err
		}
	}

	start := time.Now()
	result, err := q.readOne(ctx, query, params)
	q.done(opGetOne, query, start, err)
	if err != nil {
		return nil, normaliseDriverError(err)
	}
	return result, nil
}

// Explain returns the execution plan for query without executing it.
func (q *Query) Explain(ctx context.Context, query string, params map[string]interface{}) (map[string]interface{}, error) {
	if q.explainer == nil {
		return nil, noExplainer
	}
	start := time.Now()
	plan, err := q.explainer.Explain(ctx, query, bindVars(params))
	q.done(opExplain, query, start, err)
	if err != nil {
		return nil, normaliseDriverError(err)
	}
	return plan, nil
}

// ConvertToPods converts query results into models of the given type and
// marks them as saved.
func (q *Query) ConvertToPods(typ string, rows []interface{}) ([]*Model, error) {
	if q.pods == nil {
		return nil, noPods
	}
	models, err := q.pods.ConvertToPods(typ, rows)
	if err != nil {
		return nil, err
	}
	for _, m := range models {
		m.Pod().SetSaved()
	}
	return models, nil
}

func (q *Query) inTransaction() bool {
	return q.tx != nil && q.tx.HasTransaction()
}

// queue adds command to the active transaction. It reports false, with no
// error, when the transaction ended before the command could be added, in
// which case the query runs directly.
func (q *Query) queue(command, label string) (bool, error) {
	if _, err := q.tx.AddCommand(command, label); err != nil {
		if errors.Cause(err) == noTransaction {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (q *Query) readAll(ctx context.Context, query string, params map[string]interface{}) ([]interface{}, error) {
	cursor, err := q.db.Query(ctx, query, bindVars(params))
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	results := make([]interface{}, 0)
	for {
		var row interface{}
		_, err := cursor.ReadDocument(ctx, &row)
		if arango.IsNoMoreDocuments(err) {
			return results, nil
		}
		if err != nil {
			return nil, err
		}
		results = append(results, row)
	}
}

func (q *Query) readOne(ctx context.Context, query string, params map[string]interface{}) (interface{}, error) {
	cursor, err := q.db.Query(ctx, query, bindVars(params))
	if err != nil {
		return nil, err
	}
	defer cursor.Close()

	var row interface{}
	_, err = cursor.ReadDocument(ctx, &row)
	if arango.IsNoMoreDocuments(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (q *Query) done(op, query string, start time.Time, err error) {
	q.metrics.observe(op, start, err)
	if err != nil {
		q.logger.Warn("query failed",
			zap.String("operation", op),
			zap.String("query", query),
			zap.Error(err))
		return
	}
	q.logger.Debug("query executed",
		zap.String("operation", op),
		zap.String("query", query),
		zap.Duration("took", time.Since(start)))
}

type statement struct {
	Query    string                 `json:"query"`
	BindVars map[string]interface{} `json:"bindVars"`
}

// statementJSON renders the request body of a server-side statement.
// bindVars is always an object.
func statementJSON(query string, params map[string]interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(statement{Query: query, BindVars: bindVars(params)}); err != nil {
		return "", errors.Wrap(err, "odm: failed to encode statement")
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}

func bindVars(params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return map[string]interface{}{}
	}
	return params
}
