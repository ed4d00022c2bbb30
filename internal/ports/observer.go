package ports

import "github.com/alejandrodnm/signalbot/internal/domain"

// IngestObserver recibe los eventos del pipeline de ingesta (métricas).
type IngestObserver interface {
	MessageDropped(source, reason string)
	SignalCommitted(signal domain.VerifiedSignal)
	CommitFailed(source string, err error)
	CommitRetried(source string)
}
