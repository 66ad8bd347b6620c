// Package domain contains the core concepts of the chat system.
// No transport, storage, or UI logic should be added here.
package domain

// Identity is the authenticated user bound to a connection. It is resolved
// once from a signed token and immutable for the connection's lifetime.
type Identity struct {
	ID          string
	DisplayName string
}

// RosterEntry is one online user as shown to clients. Derived from live
// connections on every broadcast, never stored.
type RosterEntry struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}
