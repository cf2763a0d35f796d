package odm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	arango "github.com/arangodb/go-driver"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Transactor runs a JavaScript transaction on the server.
// arango.Database satisfies it.
type Transactor interface {
	Transaction(ctx context.Context, action string, options *arango.TransactionOptions) (interface{}, error)
}

// TransactionResult is the value produced by one queued command.
type TransactionResult struct {
	Label string
	Value interface{}
}

type txCommand struct {
	command string
	label   string
}

// TransactionManager collects commands while a transaction is active and
// sends them to the server as a single JavaScript action on Commit.
type TransactionManager struct {
	db      Transactor
	logger  *zap.Logger
	metrics *Metrics

	mu       sync.Mutex
	active   bool
	commands []txCommand
	read     []string
	write    []string
}

// NewTransactionManager creates a transaction manager running its
// transactions on db.
func NewTransactionManager(db Transactor, logger *zap.Logger, metrics *Metrics) *TransactionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TransactionManager{db: db, logger: logger, metrics: metrics}
}

// Begin starts a transaction.
func (t *TransactionManager) Begin() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.active {
		return transactionActive
	}
	t.active = true
	return nil
}

// HasTransaction reports whether a transaction is active.
func (t *TransactionManager) HasTransaction() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}

// AddCommand queues a JavaScript statement and returns its position in
// the transaction result.
func (t *TransactionManager) AddCommand(command, label string) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return 0, noTransaction
	}
	t.commands = append(t.commands, txCommand{command: command, label: label})
	t.metrics.queued(label)
	t.logger.Debug("queued transaction command",
		zap.String("label", label),
		zap.Int("position", len(t.commands)-1))
	return len(t.commands) - 1, nil
}

// AddReadCollection declares a collection the transaction reads from.
func (t *TransactionManager) AddReadCollection(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return noTransaction
	}
	t.read = appendUnique(t.read, name)
	return nil
}

// AddWriteCollection declares a collection the transaction writes to.
func (t *TransactionManager) AddWriteCollection(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return noTransaction
	}
	t.write = appendUnique(t.write, name)
	return nil
}

// Cancel drops the active transaction and everything queued on it.
func (t *TransactionManager) Cancel() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return noTransaction
	}
	t.reset()
	return nil
}

// Commit runs all queued commands in one server-side transaction and
// returns their results in queue order. The transaction is closed whether
// or not the server accepted it.
func (t *TransactionManager) Commit(ctx context.Context) ([]TransactionResult, error) {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return nil, noTransaction
	}
	commands := t.commands
	options := &arango.TransactionOptions{
		ReadCollections:  t.read,
		WriteCollections: t.write,
	}
	t.reset()
	t.mu.Unlock()

	if len(commands) == 0 {
		return nil, nil
	}

	start := time.Now()
	raw, err := t.db.Transaction(ctx, transactionAction(commands), options)
	t.metrics.observe(opCommit, start, err)
	if err != nil {
		qe := normaliseDriverError(err)
		t.logger.Warn("transaction failed",
			zap.Int("commands", len(commands)),
			zap.String("message", qe.Message),
			zap.Int("errorNum", qe.ErrorNum))
		return nil, qe
	}

	values, ok := raw.([]interface{})
	if !ok {
		return nil, errors.New(fmt.Sprintf("odm: unexpected transaction result of type %T", raw))
	}
	results := make([]TransactionResult, len(commands))
	for i, c := range commands {
		results[i].Label = c.label
		if i < len(values) {
			results[i].Value = values[i]
		}
	}
	return results, nil
}

func (t *TransactionManager) reset() {
	t.active = false
	t.commands = nil
	t.read = nil
	t.write = nil
}

// transactionAction wraps commands into a single JavaScript function whose
// return value holds every command result by position.
func transactionAction(commands []txCommand) string {
	var b strings.Builder
	b.WriteString("function () { var db = require(\"@arangodb\").db; var result = []; ")
	for i, c := range commands {
		fmt.Fprintf(&b, "result[%d] = %s ", i, c.command)
	}
	b.WriteString("return result; }")
	return b.String()
}

func appendUnique(names []string, name string) []string {
	for _, n := range names {
		if n == name {
			return names
		}
	}
	return append(names, name)
}
