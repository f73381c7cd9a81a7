package domain

import "time"

// ConnectionStatus is the state of a polling client connection.
type ConnectionStatus string

const (
	ConnectionConnected    ConnectionStatus = "CONNECTED"
	ConnectionDisconnected ConnectionStatus = "DISCONNECTED"
	ConnectionError        ConnectionStatus = "ERROR"
)

// Valid reports whether s is a known connection status.
func (s ConnectionStatus) Valid() bool {
	switch s {
	case ConnectionConnected, ConnectionDisconnected, ConnectionError:
		return true
	}
	return false
}

// ClientConnection is the registry entry for a pull-based consumer such as
// an automated trading terminal that cannot receive pushes.
type ClientConnection struct {
	ID           string           `json:"connection_id"`
	ClientName   string           `json:"client_name"`
	Status       ConnectionStatus `json:"status"`
	LastActivity time.Time        `json:"last_activity"`
	ConnectedAt  time.Time        `json:"connected_at"`
}

// StaleAt reports whether the connection has gone quiet for longer than
// timeout as of now.
func (c ClientConnection) StaleAt(now time.Time, timeout time.Duration) bool {
	if timeout <= 0 {
		return false
	}
	return now.Sub(c.LastActivity) > timeout
}

// Live reports whether the connection should receive queued signals.
func (c ClientConnection) Live(now time.Time, timeout time.Duration) bool {
	return c.Status == ConnectionConnected && !c.StaleAt(now, timeout)
}
