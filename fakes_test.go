package odm

import (
	"context"

	arango "github.com/arangodb/go-driver"
)

type fakeCursor struct {
	arango.Cursor
	rows   []interface{}
	pos    int
	err    error
	closed bool
}

func (c *fakeCursor) HasMore() bool { return c.pos < len(c.rows) }

func (c *fakeCursor) ReadDocument(ctx context.Context, result interface{}) (arango.DocumentMeta, error) {
	if c.err != nil {
		return arango.DocumentMeta{}, c.err
	}
	if c.pos >= len(c.rows) {
		return arango.DocumentMeta{}, arango.NoMoreDocumentsError{}
	}
	*(result.(*interface{})) = c.rows[c.pos]
	c.pos++
	return arango.DocumentMeta{}, nil
}

func (c *fakeCursor) Close() error {
	c.closed = true
	return nil
}

type fakeDatabase struct {
	cursor   *fakeCursor
	err      error
	calls    int
	query    string
	bindVars map[string]interface{}
}

func (d *fakeDatabase) Query(ctx context.Context, query string, bindVars map[string]interface{}) (arango.Cursor, error) {
	d.calls++
	d.query = query
	d.bindVars = bindVars
	if d.err != nil {
		return nil, d.err
	}
	return d.cursor, nil
}

type fakeTransactor struct {
	action  string
	options *arango.TransactionOptions
	result  interface{}
	err     error
	calls   int
}

func (t *fakeTransactor) Transaction(ctx context.Context, action string, options *arango.TransactionOptions) (interface{}, error) {
	t.calls++
	t.action = action
	t.options = options
	return t.result, t.err
}

type fakeExplainer struct {
	plan     map[string]interface{}
	err      error
	bindVars map[string]interface{}
}

func (e *fakeExplainer) Explain(ctx context.Context, query string, bindVars map[string]interface{}) (map[string]interface{}, error) {
	e.bindVars = bindVars
	return e.plan, e.err
}

func rows(docs ...map[string]interface{}) []interface{} {
	out := make([]interface{}, len(docs))
	for i, d := range docs {
		out[i] = d
	}
	return out
}
