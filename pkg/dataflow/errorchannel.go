package dataflow

import (
	"context"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/ajitpratap0/tributary/pkg/connector/core"
	"github.com/ajitpratap0/tributary/pkg/errors"
	"github.com/ajitpratap0/tributary/pkg/models"
)

// ErrorChannel is a node's optional side output for rejected rows.
// It is created lazily by Node.LinkErrorTo and delivers ErrorRecords
// to a single sink. Delivery never blocks the main path longer than
// the configured handoff timeout and never panics; if the sink is
// unavailable the caller escalates the row error to an unhandled
// fault instead.
type ErrorChannel struct {
	node    string
	sink    core.ErrorSink
	timeout time.Duration
	logger  *zap.Logger
	sent    atomic.Int64
}

func newErrorChannel(node string, sink core.ErrorSink, timeout time.Duration, logger *zap.Logger) *ErrorChannel {
	return &ErrorChannel{
		node:    node,
		sink:    sink,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "error_channel")),
	}
}

// Send delivers one rejected row to the sink. The failing row is
// serialized so the sink never holds live engine references. A
// non-nil return means the sink could not take the row and the error
// must be treated as unhandled.
func (e *ErrorChannel) Send(ctx context.Context, cause error, record *models.Record) error {
	payload, err := json.Marshal(record.Data)
	if err != nil {
		// the row itself is unserializable; ship the description only
		e.logger.Warn("failed to serialize rejected row", zap.Error(err))
		payload = nil
	}

	handoffCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	rec := models.ErrorRecord{
		Node:      e.node,
		Message:   cause.Error(),
		Row:       payload,
		Timestamp: time.Now(),
	}

	if err := e.sink.Accept(handoffCtx, rec); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "error sink rejected handoff")
	}

	e.sent.Add(1)
	return nil
}

// Sent returns the number of records delivered to the sink.
func (e *ErrorChannel) Sent() int64 {
	return e.sent.Load()
}
