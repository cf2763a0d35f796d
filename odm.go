// Package odm provides the query facilities of an Object Document Mapper
// for ArangoDB.
package odm

import (
	"context"
	"net/url"
	"path"

	arango "github.com/arangodb/go-driver"
	"github.com/arangodb/go-driver/http"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Config struct {
	Name     string `yaml:"name"`
	Password string `yaml:"password"`
	URL      string `yaml:"url"`
	Username string `yaml:"username"`

	// Logger receives query logs, defaults to a no-op logger
	Logger *zap.Logger `yaml:"-"`
	// Registerer receives query metrics, defaults to a private registry
	Registerer prometheus.Registerer `yaml:"-"`
}

// ODM is the entry point holding the connection and the helpers sharing it.
type ODM struct {
	db     arango.Database
	client arango.Client
	config *Config
	conn   arango.Connection
	logger *zap.Logger

	metrics *Metrics
	pods    *PodManager
	query   *Query
	tx      *TransactionManager
}

// NewODM connects to ArangoDB and opens the configured database, creating
// it when it does not exist.
func NewODM(config *Config) (*ODM, error) {
	o := &ODM{
		config: config,
		logger: config.Logger,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	conn, err := http.NewConnection(http.ConnectionConfig{
		Endpoints: []string{config.URL},
	})
	if err != nil {
		return nil, errors.Wrap(err, "odm: failed to create ArangoDB connection")
	}
	o.conn = conn
	client, err := arango.NewClient(arango.ClientConfig{
		Connection:     o.conn,
		Authentication: arango.BasicAuthentication(config.Username, config.Password),
	})
	if err != nil {
		return nil, errors.Wrap(err, "odm: failed to create ArangoDB client")
	}
	o.client = client

	o.db, err = o.openDatabase(config.Name)
	if err == databaseDoesNotExist {
		o.db, err = o.createDatabase(config.Name)
	}
	if err != nil {
		return nil, err
	}

	o.metrics, err = NewMetrics(config.Registerer)
	if err != nil {
		return nil, err
	}
	o.pods = &PodManager{}
	o.tx = NewTransactionManager(o.db, o.logger, o.metrics)
	o.query = NewQuery(o.db, o.tx,
		WithExplainer(o),
		WithPodManager(o.pods),
		WithLogger(o.logger),
		WithMetrics(o.metrics),
	)
	o.logger.Info("connected to ArangoDB",
		zap.String("url", config.URL),
		zap.String("database", config.Name))
	return o, nil
}

// MustNewODM invokes NewODM, but panics on error
func MustNewODM(config *Config) *ODM {
	o, err := NewODM(config)
	if err != nil {
		panic(err)
	}
	return o
}

// Query returns the query helper.
func (o *ODM) Query() *Query { return o.query }

// Transactions returns the transaction manager.
func (o *ODM) Transactions() *TransactionManager { return o.tx }

// Pods returns the pod manager.
func (o *ODM) Pods() *PodManager { return o.pods }

// Database returns the underlying driver database.
func (o *ODM) Database() arango.Database { return o.db }

// Explain asks the server for the execution plan of query. Failures are
// returned as *QueryError.
func (o *ODM) Explain(ctx context.Context, query string, params map[string]interface{}) (map[string]interface{}, error) {
	plan, err := o.explain(ctx, query, bindVars(params))
	if err != nil {
		return nil, normaliseDriverError(err)
	}
	return plan, nil
}

func (o *ODM) explain(ctx context.Context, query string, bindVars map[string]interface{}) (map[string]interface{}, error) {
	req, err := o.conn.NewRequest("POST", path.Join("_db", url.PathEscape(o.db.Name()), "_api/explain"))
	if err != nil {
		return nil, err
	}
	if _, err := req.SetBody(statement{Query: query, BindVars: bindVars}); err != nil {
		return nil, err
	}
	resp, err := o.conn.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	if err := resp.CheckStatus(200); err != nil {
		return nil, err
	}
	var plan map[string]interface{}
	if err := resp.ParseBody("plan", &plan); err != nil {
		return nil, err
	}
	return plan, nil
}
