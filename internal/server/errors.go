package server

import "fmt"

// ProtocolViolation reports a frame that arrived in a state that does not
// accept it, for example a DATA frame carrying an index other than 0
// where the first block was expected. The session closes without a reply.
type ProtocolViolation struct {
	Reason string
}

func (e *ProtocolViolation) Error() string {
	return fmt.Sprintf("server: protocol violation: %s", e.Reason)
}

// ClientDisconnect reports a clean EOF or broken pipe. Clean is true when
// every frame seen so far was acknowledged, meaning the disconnect looks
// like a normal end of upload rather than a midstream drop.
type ClientDisconnect struct {
	Clean bool
}

func (e *ClientDisconnect) Error() string {
	if e.Clean {
		return "server: client disconnected after a complete exchange"
	}
	return "server: client disconnected mid-session"
}
