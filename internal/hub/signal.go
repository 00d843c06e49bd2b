package hub

import (
	"log/slog"

	"github.com/votewatch/realtime/internal/observability"
	"github.com/votewatch/realtime/internal/protocol"
)

// SignalRelay forwards call signaling between the two parties of a call.
// It keeps no call state: every frame is routed fresh off its envelope
// and forwarded byte for byte.
type SignalRelay struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *observability.Metrics
}

func NewSignalRelay(registry *Registry, logger *slog.Logger, metrics *observability.Metrics) *SignalRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &SignalRelay{
		registry: registry,
		logger:   logger,
		metrics:  metrics,
	}
}

// Forward routes sig to the party who has to react to it: offers to the
// receiver, answers and hangups to the caller, candidates to whichever
// party did not send them. False means the counterpart had no live
// connection and the frame was dropped; callers rely on their own
// timeouts, so no failure notice goes back.
func (sr *SignalRelay) Forward(senderID int64, sig *protocol.Signal) bool {
	var target int64
	switch sig.SignalKind {
	case protocol.KindCallOffer:
		target = sig.ReceiverID
	case protocol.KindCallAnswer, protocol.KindCallEnd:
		target = sig.CallerID
	case protocol.KindCallCandidate:
		if senderID == sig.CallerID {
			target = sig.ReceiverID
		} else {
			target = sig.CallerID
		}
	default:
		return false
	}

	delivered := sr.registry.Push(target, sig.Raw)
	sr.metrics.SignalForwarded(string(sig.SignalKind), delivered)
	if !delivered {
		sr.logger.Debug("signal dropped, counterpart offline",
			"kind", sig.SignalKind, "callerId", sig.CallerID, "receiverId", sig.ReceiverID, "target", target)
	}
	return delivered
}
