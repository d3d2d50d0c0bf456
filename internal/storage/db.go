package storage

import (
	"database/sql"
	"errors"
	"strings"

	"expense-api/internal/models"

	// Import sqlite driver
	_ "modernc.org/sqlite"
)

var (
	// ErrEmailTaken is returned when a signup collides with an existing email.
	ErrEmailTaken = errors.New("email already exists")
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("not found")
)

// DB wraps a sql.DB connection.
type DB struct {
	conn *sql.DB
}

// NewDB opens a database connection and runs migrations.
func NewDB(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(); err != nil {
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		return nil, err
	}

	return db, nil
}

func (db *DB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS expenses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			amount REAL NOT NULL,
			user_id INTEGER NOT NULL,
			FOREIGN KEY (user_id) REFERENCES users(id)
		)`,
	}

	for _, m := range migrations {
		if _, err := db.conn.Exec(m); err != nil {
			return err
		}
	}

	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping verifies the database connection is alive.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// CreateUser inserts a new user. The UNIQUE constraint on email is the real
// duplicate guard; a racing insert surfaces here as ErrEmailTaken.
func (db *DB) CreateUser(username, email, passwordHash string) (*models.User, error) {
	result, err := db.conn.Exec(
		"INSERT INTO users (username, email, password_hash) VALUES (?, ?, ?)",
		username, email, passwordHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrEmailTaken
		}
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return db.GetUserByID(id)
}

// GetUserByID retrieves a user by ID.
func (db *DB) GetUserByID(id int64) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash FROM users WHERE id = ?",
		id,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetUserByEmail retrieves a user by email. The lookup is case-sensitive,
// matching how emails are stored.
func (db *DB) GetUserByEmail(email string) (*models.User, error) {
	row := db.conn.QueryRow(
		"SELECT id, username, email, password_hash FROM users WHERE email = ?",
		email,
	)

	var u models.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// CreateExpense inserts a new expense owned by userID.
func (db *DB) CreateExpense(userID int64, title string, amount float64) (*models.Expense, error) {
	result, err := db.conn.Exec(
		"INSERT INTO expenses (title, amount, user_id) VALUES (?, ?, ?)",
		title, amount, userID,
	)
	if err != nil {
		return nil, err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}

	return &models.Expense{ID: id, Title: title, Amount: amount, UserID: userID}, nil
}

// ListExpensesByUser retrieves all expenses owned by userID in insertion order.
// Returns an empty slice, not nil, when the user has no expenses.
func (db *DB) ListExpensesByUser(userID int64) ([]models.Expense, error) {
	rows, err := db.conn.Query(
		"SELECT id, title, amount, user_id FROM expenses WHERE user_id = ?",
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expenses := []models.Expense{}
	for rows.Next() {
		var e models.Expense
		if err := rows.Scan(&e.ID, &e.Title, &e.Amount, &e.UserID); err != nil {
			return nil, err
		}
		expenses = append(expenses, e)
	}

	return expenses, rows.Err()
}

// UpdateExpense updates title and amount of the expense with the given id,
// but only if userID owns it. Returns the number of rows affected; zero means
// no matching row (wrong id or wrong owner) and is not an error.
func (db *DB) UpdateExpense(userID, id int64, title string, amount float64) (int64, error) {
	result, err := db.conn.Exec(
		"UPDATE expenses SET title = ?, amount = ? WHERE id = ? AND user_id = ?",
		title, amount, id, userID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteExpense deletes the expense with the given id if userID owns it.
// Same zero-rows semantics as UpdateExpense.
func (db *DB) DeleteExpense(userID, id int64) (int64, error) {
	result, err := db.conn.Exec(
		"DELETE FROM expenses WHERE id = ? AND user_id = ?",
		id, userID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures as
	// "constraint failed: UNIQUE constraint failed: users.email (2067)".
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
