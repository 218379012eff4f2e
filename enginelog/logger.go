package enginelog

import (
	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/evalgo-forge/ecsreplica/replop"
)

// ContextLogger carries a base field set so every line emitted for one
// scope (a peer connection, a reconciliation pass, a tick) shares the same
// correlating fields without repeating them at each call site.
type ContextLogger struct {
	logger *logrus.Logger
	fields logrus.Fields
}

// NewContextLogger wraps logger (the shared Logger when nil) with base
// fields attached to every line.
func NewContextLogger(logger *logrus.Logger, fields map[string]interface{}) *ContextLogger {
	if logger == nil {
		logger = Logger
	}
	baseFields := make(logrus.Fields, len(fields))
	for k, v := range fields {
		baseFields[k] = v
	}
	return &ContextLogger{logger: logger, fields: baseFields}
}

// WithField returns a new ContextLogger with one extra field.
func (cl *ContextLogger) WithField(key string, value interface{}) *ContextLogger {
	newFields := make(logrus.Fields, len(cl.fields)+1)
	for k, v := range cl.fields {
		newFields[k] = v
	}
	newFields[key] = value
	return &ContextLogger{logger: cl.logger, fields: newFields}
}

// WithFields returns a new ContextLogger with several extra fields.
func (cl *ContextLogger) WithFields(fields map[string]interface{}) *ContextLogger {
	newFields := make(logrus.Fields, len(cl.fields)+len(fields))
	for k, v := range cl.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}
	return &ContextLogger{logger: cl.logger, fields: newFields}
}

// WithError attaches an error field.
func (cl *ContextLogger) WithError(err error) *ContextLogger {
	return cl.WithField("error", err.Error())
}

// Debug logs a debug message with the carried fields.
func (cl *ContextLogger) Debug(msg string) { cl.logger.WithFields(cl.fields).Debug(msg) }

// Debugf logs a formatted debug message with the carried fields.
func (cl *ContextLogger) Debugf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Debugf(format, args...)
}

// Info logs an info message with the carried fields.
func (cl *ContextLogger) Info(msg string) { cl.logger.WithFields(cl.fields).Info(msg) }

// Infof logs a formatted info message with the carried fields.
func (cl *ContextLogger) Infof(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Infof(format, args...)
}

// Warn logs a warning with the carried fields.
func (cl *ContextLogger) Warn(msg string) { cl.logger.WithFields(cl.fields).Warn(msg) }

// Warnf logs a formatted warning with the carried fields.
func (cl *ContextLogger) Warnf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Warnf(format, args...)
}

// Error logs an error with the carried fields.
func (cl *ContextLogger) Error(msg string) { cl.logger.WithFields(cl.fields).Error(msg) }

// Errorf logs a formatted error with the carried fields.
func (cl *ContextLogger) Errorf(format string, args ...interface{}) {
	cl.logger.WithFields(cl.fields).Errorf(format, args...)
}

// EngineLogger creates a ContextLogger pre-configured with the peer's own
// domain id, the one field every engine-side line should carry.
func EngineLogger(domainID uint16) *ContextLogger {
	return NewContextLogger(Logger, map[string]interface{}{
		"domain": domainID,
	})
}

var opKindNames = map[replop.Kind]string{
	replop.KindSpawn:   "spawn",
	replop.KindDespawn: "despawn",
	replop.KindSet:     "set",
	replop.KindAdd:     "add",
	replop.KindRemove:  "remove",
}

// FieldsForOp builds the standard field set for one replication op, used
// when warning about an op that targeted a missing entity or carried an
// unknown component.
func FieldsForOp(op replop.Op) map[string]interface{} {
	fields := map[string]interface{}{
		"op":     opKindNames[op.Kind],
		"entity": op.Entity.String(),
	}
	if op.ComponentID != 0 {
		fields["component"] = uint32(op.ComponentID)
	}
	if op.CausalKey != "" {
		fields["causal_key"] = op.CausalKey
	}
	return fields
}

// FieldsForTx builds the standard field set for one transaction, used when
// warning about out-of-order seq or a dropped frame.
func FieldsForTx(tx replop.Transaction) map[string]interface{} {
	return map[string]interface{}{
		"tx_domain": uint16(tx.DomainID),
		"tx_seq":    tx.Seq,
		"tx_tick":   tx.Tick,
		"tx_ops":    len(tx.Ops),
	}
}

// PayloadSize renders a byte count human-readably for snapshot and
// checkpoint logging.
func PayloadSize(n int) string {
	return humanize.Bytes(uint64(n))
}
