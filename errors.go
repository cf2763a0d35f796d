package odm

import (
	"fmt"

	arango "github.com/arangodb/go-driver"
	"github.com/pkg/errors"
)

var (
	databaseAlreadyExists = errors.New("odm: database already exists")
	databaseDoesNotExist  = errors.New("odm: database does not exist")
	transactionActive     = errors.New("odm: transaction already started")
	noTransaction         = errors.New("odm: no transaction started")
)

// QueryError is returned for every failure reported by the ArangoDB driver
// while running a query, an explain or a transaction.
type QueryError struct {
	// Message is the server error message, or the driver error text when
	// the failure never reached the server.
	Message string
	// Code is the HTTP status code reported by the server, 0 otherwise.
	Code int
	// ErrorNum is the ArangoDB error number, 0 otherwise.
	ErrorNum int

	cause error
}

func (e *QueryError) Error() string {
	if e.ErrorNum != 0 {
		return fmt.Sprintf("odm: query failed: %s (code %d, errorNum %d)", e.Message, e.Code, e.ErrorNum)
	}
	return fmt.Sprintf("odm: query failed: %s", e.Message)
}

// Cause returns the original driver error.
func (e *QueryError) Cause() error { return e.cause }

func (e *QueryError) Unwrap() error { return e.cause }

// normaliseDriverError converts any driver error into a *QueryError.
func normaliseDriverError(err error) *QueryError {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return qe
	}
	normalised := &QueryError{Message: err.Error(), cause: err}
	switch ae := arango.Cause(err).(type) {
	case arango.ArangoError:
		normalised.fromArango(ae)
	case *arango.ArangoError:
		normalised.fromArango(*ae)
	default:
		var wrapped arango.ArangoError
		if errors.As(err, &wrapped) {
			normalised.fromArango(wrapped)
		}
	}
	return normalised
}

func (e *QueryError) fromArango(ae arango.ArangoError) {
	if ae.ErrorMessage != "" {
		e.Message = ae.ErrorMessage
	}
	e.Code = ae.Code
	e.ErrorNum = ae.ErrorNum
}

// IsQueryError reports whether err is, or wraps, a *QueryError.
func IsQueryError(err error) bool {
	var qe *QueryError
	return errors.As(err, &qe)
}
