package client

// Hooks observes the connection lifecycle. Methods are called from the
// client's own goroutines and must not block.
type Hooks interface {
	// Ready fires after a successful Connect or Reconnect.
	Ready(c *Client)
	// ConnectionFailed fires when dialing fails.
	ConnectionFailed(c *Client, err error)
	// ConnectionTerminated fires once per connection, after its pending
	// calls have been canceled. err is nil for a local Close.
	ConnectionTerminated(c *Client, err error)
	// ParsingError fires when the peer sends malformed JSON. The connection
	// is closed right after.
	ParsingError(c *Client, raw []byte, err error)
}

// NopHooks ignores every event. Embed it to override a subset.
type NopHooks struct{}

func (NopHooks) Ready(*Client) {}
func (NopHooks) ConnectionFailed(*Client, error) {}
func (NopHooks) ConnectionTerminated(*Client, error) {}
func (NopHooks) ParsingError(*Client, []byte, error) {}
