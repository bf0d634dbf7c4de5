package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/civicatlas/contribution-wizard/internal/core/domain"
	"github.com/civicatlas/contribution-wizard/internal/infrastructure/resilience"
)

// transientErrors are connection-level failures a reconnect can cure.
var transientErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
}

// classifyNATSError layers broker specifics on top of the domain classification. An oversized
// event will never fit, so it is reported as invalid rather than retried.
func classifyNATSError(err error) resilience.ErrorClassification {
	if err == nil {
		return resilience.ErrorClassification{}
	}
	if errors.Is(err, nats.ErrMaxPayload) {
		return resilience.ErrorClassification{Retryable: false, RecordFailure: false}
	}
	if resilience.IsCircuitOpen(err) || isTransient(err) {
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	}
	return resilience.DomainClassifier(err)
}

func isTransient(err error) bool {
	for _, target := range transientErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// publishError maps a failed publish onto the domain error kinds callers branch on.
func publishError(err error) error {
	switch {
	case err == nil:
		return nil
	case domain.IsKind(err, domain.ErrTemporary), domain.IsKind(err, domain.ErrValidation):
		return err
	case errors.Is(err, nats.ErrMaxPayload):
		return domain.WrapError(domain.ErrValidation, "publish contribution event", err)
	case resilience.IsCircuitOpen(err) || isTransient(err):
		return domain.WrapError(domain.ErrTemporary, "publish contribution event", err)
	default:
		return err
	}
}
