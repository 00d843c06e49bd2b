package hub

import "errors"

// Send failure modes a Link can report. Both count as a delivery miss;
// neither is ever allowed to block the caller.
var (
	ErrLinkClosed     = errors.New("connection closed")
	ErrSendBufferFull = errors.New("send buffer full")
)

// Link is the hub's view of one client connection. The websocket adapter
// implements it in production; tests substitute in-memory fakes.
type Link interface {
	// ID identifies the connection itself, not the user, in logs.
	ID() string

	// UserID returns the bound user id, zero before registration.
	UserID() int64

	// BindUser records the registered identity on the link.
	BindUser(id int64)

	// Send enqueues one frame without blocking.
	Send(data []byte) error

	// Ping sends a websocket-level ping control frame.
	Ping() error

	// Close tears the connection down. Safe to call more than once and
	// from any goroutine.
	Close() error
}
