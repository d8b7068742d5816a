package db

import (
	"database/sql"
	"fmt"
)

// DB represents the database connection
type DB struct {
	*sql.DB
}

// NewDB creates a new database connection
func NewDB(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Create tables if they don't exist
	if err := createTables(db); err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// createTables creates the necessary database tables
func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS players (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			balance INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			player_id TEXT NOT NULL,
			amount INTEGER NOT NULL,
			type TEXT NOT NULL,
			description TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (player_id) REFERENCES players(id)
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL,
			winner_id TEXT,
			snapshot TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS deal_stats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			attempts INTEGER NOT NULL,
			fallback INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS violations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			player_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			field TEXT,
			detail TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// GetPlayerBalance returns the current balance of a player
func (db *DB) GetPlayerBalance(playerID string) (int64, error) {
	var balance int64
	err := db.QueryRow("SELECT balance FROM players WHERE id = ?", playerID).Scan(&balance)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("player not found")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get player balance: %v", err)
	}
	return balance, nil
}

// UpdatePlayerBalance updates a player's balance and records the transaction
func (db *DB) UpdatePlayerBalance(playerID string, amount int64, transactionType, description string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Update player balance
	_, err = tx.Exec(`
		INSERT INTO players (id, name, balance)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET balance = balance + ?
	`, playerID, playerID, amount, amount)
	if err != nil {
		return err
	}

	// Record transaction
	_, err = tx.Exec(`
		INSERT INTO transactions (player_id, amount, type, description)
		VALUES (?, ?, ?, ?)
	`, playerID, amount, transactionType, description)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// SessionRow is the persisted form of a session: a status header plus the
// full snapshot as JSON.
type SessionRow struct {
	ID       string
	Status   string
	WinnerID string
	Snapshot string
}

// SaveSessionSnapshot upserts the persisted snapshot for a session.
func (db *DB) SaveSessionSnapshot(row *SessionRow) error {
	_, err := db.Exec(`
		INSERT INTO sessions (id, status, winner_id, snapshot)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			winner_id = excluded.winner_id,
			snapshot = excluded.snapshot,
			updated_at = CURRENT_TIMESTAMP
	`, row.ID, row.Status, row.WinnerID, row.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to save session %s: %v", row.ID, err)
	}
	return nil
}

// LoadSessionSnapshot returns the persisted snapshot for a session.
func (db *DB) LoadSessionSnapshot(sessionID string) (*SessionRow, error) {
	row := &SessionRow{ID: sessionID}
	err := db.QueryRow(
		"SELECT status, COALESCE(winner_id, ''), snapshot FROM sessions WHERE id = ?",
		sessionID,
	).Scan(&row.Status, &row.WinnerID, &row.Snapshot)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("session not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %v", sessionID, err)
	}
	return row, nil
}

// DeleteSessionSnapshot removes the persisted snapshot for a session.
func (db *DB) DeleteSessionSnapshot(sessionID string) error {
	_, err := db.Exec("DELETE FROM sessions WHERE id = ?", sessionID)
	return err
}

// GetAllSessionIDs returns the ids of every persisted session.
func (db *DB) GetAllSessionIDs() ([]string, error) {
	rows, err := db.Query("SELECT id FROM sessions")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecordDealStats stores the fairness outcome of one deal.
func (db *DB) RecordDealStats(sessionID string, attempts int, fallback bool) error {
	_, err := db.Exec(
		"INSERT INTO deal_stats (session_id, attempts, fallback) VALUES (?, ?, ?)",
		sessionID, attempts, fallback,
	)
	return err
}

// DealStatsSummary aggregates deal fairness outcomes across all sessions.
type DealStatsSummary struct {
	Deals        int64
	Fallbacks    int64
	MeanAttempts float64
}

// GetDealStatsSummary returns aggregate deal statistics.
func (db *DB) GetDealStatsSummary() (*DealStatsSummary, error) {
	summary := &DealStatsSummary{}
	err := db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(fallback), 0), COALESCE(AVG(attempts), 0)
		FROM deal_stats
	`).Scan(&summary.Deals, &summary.Fallbacks, &summary.MeanAttempts)
	if err != nil {
		return nil, fmt.Errorf("failed to get deal stats: %v", err)
	}
	return summary, nil
}

// RecordViolation stores one audit record.
func (db *DB) RecordViolation(sessionID, playerID, kind, field, detail string) error {
	_, err := db.Exec(
		"INSERT INTO violations (session_id, player_id, kind, field, detail) VALUES (?, ?, ?, ?, ?)",
		sessionID, playerID, kind, field, detail,
	)
	return err
}

// ViolationRow is one persisted audit record.
type ViolationRow struct {
	ID        int64
	SessionID string
	PlayerID  string
	Kind      string
	Field     string
	Detail    string
	CreatedAt string
}

// GetViolations returns the persisted audit records for a session in
// insertion order.
func (db *DB) GetViolations(sessionID string) ([]*ViolationRow, error) {
	rows, err := db.Query(`
		SELECT id, session_id, player_id, kind, COALESCE(field, ''), COALESCE(detail, ''), created_at
		FROM violations WHERE session_id = ? ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ViolationRow
	for rows.Next() {
		v := &ViolationRow{}
		if err := rows.Scan(&v.ID, &v.SessionID, &v.PlayerID, &v.Kind, &v.Field, &v.Detail, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
