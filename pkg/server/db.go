package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/duelhall/trumpduel/pkg/duel"
	"github.com/duelhall/trumpduel/pkg/server/internal/db"
)

// Database defines the interface for database operations
type Database interface {
	// GetPlayerBalance returns the current balance of a player
	GetPlayerBalance(playerID string) (int64, error)
	// UpdatePlayerBalance updates a player's balance and records the transaction
	UpdatePlayerBalance(playerID string, amount int64, transactionType, description string) error

	// Session state persistence
	SaveSessionSnapshot(row *db.SessionRow) error
	LoadSessionSnapshot(sessionID string) (*db.SessionRow, error)
	DeleteSessionSnapshot(sessionID string) error
	GetAllSessionIDs() ([]string, error)

	// Fairness observability
	RecordDealStats(sessionID string, attempts int, fallback bool) error
	GetDealStatsSummary() (*db.DealStatsSummary, error)

	// Anti-cheat audit trail
	RecordViolation(sessionID, playerID, kind, field, detail string) error
	GetViolations(sessionID string) ([]*db.ViolationRow, error)

	// Close closes the database connection
	Close() error
}

// Transaction represents a player's transaction
type Transaction struct {
	ID          int64
	PlayerID    string
	Amount      int64
	Type        string
	Description string
	CreatedAt   string
}

// NewDatabase creates a new database connection
func NewDatabase(dbPath string) (Database, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %v", err)
	}

	return db.NewDB(dbPath)
}

// sessionAudit adapts the server's database to the session audit interface.
// Writes go through the server's async save machinery so the gameplay command
// path never waits on sqlite.
type sessionAudit struct {
	server *Server
}

// RecordViolation implements duel.AuditLog.
func (a *sessionAudit) RecordViolation(v duel.Violation) {
	detail := v.AttemptedValue
	if v.AttemptedCard != nil {
		if data, err := json.Marshal(v.AttemptedCard); err == nil {
			detail = string(data)
		}
	}
	a.server.saveAsync("violation "+v.SessionID, func() error {
		return a.server.db.RecordViolation(v.SessionID, v.PlayerID, string(v.Kind), v.Field, detail)
	})
}

// marshalSnapshot renders a session snapshot to its persisted JSON form.
func marshalSnapshot(snap duel.SessionSnapshot) (*db.SessionRow, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session %s: %v", snap.ID, err)
	}
	return &db.SessionRow{
		ID:       snap.ID,
		Status:   string(snap.Status),
		WinnerID: snap.WinnerID,
		Snapshot: string(data),
	}, nil
}
