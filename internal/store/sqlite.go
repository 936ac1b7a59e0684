package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/internal/types/notification"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

// SQLiteStore backs single-node deployments. Pass ":memory:" for a throwaway database.
type SQLiteStore struct {
	conn *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	// one connection: writes are serialized and ":memory:" stays a single database
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA foreign_keys=ON"} {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
		}
	}

	if _, err := conn.Exec(sqliteSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

func (s *SQLiteStore) Close() {
	if err := s.conn.Close(); err != nil {
		zap.S().Warnf("sqlite: closing database: %v", err)
	}
}

func sqliteError(err error, what string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", what, apperr.ErrConflict)
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
		}
	}
	return fmt.Errorf("sqlite: %s: %w", what, err)
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(values []string) []any {
	args := make([]any, len(values))
	for i, v := range values {
		args[i] = v
	}
	return args
}

// ============ USERS ============

func scanSQLiteUser(row interface{ Scan(...any) error }) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(&u.ID, &u.ClerkID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO users (id, clerk_id, email, name, avatar_url, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.ClerkID, u.Email, u.Name, u.AvatarURL, u.CreatedAt.UTC(), u.UpdatedAt.UTC(),
	)
	if err != nil {
		return sqliteError(err, "create user")
	}
	return nil
}

func (s *SQLiteStore) UpdateUser(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE users SET
			email = COALESCE(NULLIF(?, ''), email),
			name = COALESCE(NULLIF(?, ''), name),
			avatar_url = COALESCE(NULLIF(?, ''), avatar_url),
			updated_at = ?
		 WHERE clerk_id = ?`,
		req.Email, req.Name, req.AvatarURL, time.Now().UTC(), clerkID,
	)
	if err != nil {
		return nil, sqliteError(err, "update user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("user %s: %w", clerkID, apperr.ErrNotFound)
	}
	return s.GetUserByClerkID(ctx, clerkID)
}

func (s *SQLiteStore) DeleteUser(ctx context.Context, clerkID string) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE groups SET owner_id = (
			SELECT m.user_id FROM group_members m
			WHERE m.group_id = groups.id AND m.user_id <> groups.owner_id
			ORDER BY m.joined_at, m.user_id LIMIT 1
		)
		WHERE owner_id = (SELECT id FROM users WHERE clerk_id = ?)
		AND EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = groups.id AND m.user_id <> groups.owner_id)`,
		clerkID,
	); err != nil {
		return sqliteError(err, "transfer group ownership")
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM users WHERE clerk_id = ?`, clerkID)
	if err != nil {
		return sqliteError(err, "delete user")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("user %s: %w", clerkID, apperr.ErrNotFound)
	}
	return tx.Commit()
}

func (s *SQLiteStore) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	u, err := scanSQLiteUser(s.conn.QueryRowContext(ctx,
		`SELECT id, clerk_id, email, name, avatar_url, created_at, updated_at FROM users WHERE clerk_id = ?`, clerkID))
	if err != nil {
		return nil, sqliteError(err, "get user")
	}
	return u, nil
}

func (s *SQLiteStore) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	u, err := scanSQLiteUser(s.conn.QueryRowContext(ctx,
		`SELECT id, clerk_id, email, name, avatar_url, created_at, updated_at FROM users WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteError(err, "get user")
	}
	return u, nil
}

// ============ GROUPS ============

func scanSQLiteGroup(row interface{ Scan(...any) error }) (*group.Group, error) {
	g := &group.Group{}
	err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.Code, &g.CreatedAt)
	return g, err
}

func (s *SQLiteStore) CreateGroup(ctx context.Context, g *group.Group, first *week.Week) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO groups (id, name, owner_id, code, created_at) VALUES (?, ?, ?, UPPER(?), ?)`,
		g.ID, g.Name, g.OwnerID, g.Code, g.CreatedAt.UTC(),
	); err != nil {
		return sqliteError(err, "create group")
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		g.ID, g.OwnerID, g.CreatedAt.UTC(),
	); err != nil {
		return sqliteError(err, "add owner to group")
	}
	if err := insertSQLiteWeek(ctx, tx, first); err != nil {
		return sqliteError(err, "create first week")
	}

	return tx.Commit()
}

func (s *SQLiteStore) GetGroupByID(ctx context.Context, id string) (*group.Group, error) {
	g, err := scanSQLiteGroup(s.conn.QueryRowContext(ctx,
		`SELECT id, name, owner_id, code, created_at FROM groups WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteError(err, "get group")
	}
	return g, nil
}

func (s *SQLiteStore) GetGroupByCode(ctx context.Context, code string) (*group.Group, error) {
	g, err := scanSQLiteGroup(s.conn.QueryRowContext(ctx,
		`SELECT id, name, owner_id, code, created_at FROM groups WHERE code = ? COLLATE NOCASE`, strings.TrimSpace(code)))
	if err != nil {
		return nil, sqliteError(err, "get group by code")
	}
	return g, nil
}

func (s *SQLiteStore) GetGroupForUser(ctx context.Context, userID string) (*group.Group, error) {
	g, err := scanSQLiteGroup(s.conn.QueryRowContext(ctx,
		`SELECT g.id, g.name, g.owner_id, g.code, g.created_at
		 FROM group_members gm JOIN groups g ON g.id = gm.group_id
		 WHERE gm.user_id = ?
		 ORDER BY gm.rowid ASC LIMIT 1`, userID))
	if err != nil {
		return nil, sqliteError(err, "get group for user")
	}
	return g, nil
}

func (s *SQLiteStore) AddMember(ctx context.Context, groupID, userID string) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, joined_at) VALUES (?, ?, ?)`,
		groupID, userID, time.Now().UTC(),
	)
	if err != nil {
		return sqliteError(err, "join group")
	}
	return nil
}

func (s *SQLiteStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	var exists bool
	err := s.conn.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = ? AND user_id = ?)`, groupID, userID,
	).Scan(&exists)
	if err != nil {
		return false, sqliteError(err, "check membership")
	}
	return exists, nil
}

func (s *SQLiteStore) ListMembers(ctx context.Context, groupID string) ([]*user.User, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT u.id, u.clerk_id, u.email, u.name, u.avatar_url, u.created_at, u.updated_at
		 FROM group_members gm JOIN users u ON u.id = gm.user_id
		 WHERE gm.group_id = ?
		 ORDER BY gm.rowid ASC`, groupID)
	if err != nil {
		return nil, sqliteError(err, "list members")
	}
	defer rows.Close()

	var members []*user.User
	for rows.Next() {
		u, err := scanSQLiteUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning member: %w", err)
		}
		members = append(members, u)
	}
	return members, rows.Err()
}

func (s *SQLiteStore) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id FROM groups ORDER BY id`)
	if err != nil {
		return nil, sqliteError(err, "list groups")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlite: scanning group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============ WEEKS ============

const sqliteWeekColumns = `id, group_id, week_number, is_active, start_date, end_date, winner_id, loser_id`

func scanSQLiteWeek(row interface{ Scan(...any) error }) (*week.Week, error) {
	w := &week.Week{}
	var (
		end    sql.NullTime
		winner sql.NullString
		loser  sql.NullString
	)
	if err := row.Scan(&w.ID, &w.GroupID, &w.WeekNumber, &w.IsActive, &w.StartDate, &end, &winner, &loser); err != nil {
		return nil, err
	}
	if end.Valid {
		t := end.Time
		w.EndDate = &t
	}
	if winner.Valid {
		w.WinnerID = &winner.String
	}
	if loser.Valid {
		w.LoserID = &loser.String
	}
	return w, nil
}

func insertSQLiteWeek(ctx context.Context, tx *sql.Tx, w *week.Week) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO weeks (id, group_id, week_number, is_active, start_date) VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.GroupID, w.WeekNumber, w.IsActive, w.StartDate.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetWeek(ctx context.Context, id string) (*week.Week, error) {
	w, err := scanSQLiteWeek(s.conn.QueryRowContext(ctx,
		`SELECT `+sqliteWeekColumns+` FROM weeks WHERE id = ?`, id))
	if err != nil {
		return nil, sqliteError(err, "get week")
	}
	return w, nil
}

func (s *SQLiteStore) GetActiveWeek(ctx context.Context, groupID string) (*week.Week, error) {
	w, err := scanSQLiteWeek(s.conn.QueryRowContext(ctx,
		`SELECT `+sqliteWeekColumns+` FROM weeks WHERE group_id = ? AND is_active = 1 ORDER BY week_number DESC LIMIT 1`, groupID))
	if err != nil {
		return nil, sqliteError(err, "get active week")
	}
	return w, nil
}

func (s *SQLiteStore) LatestWeek(ctx context.Context, groupID string) (*week.Week, error) {
	w, err := scanSQLiteWeek(s.conn.QueryRowContext(ctx,
		`SELECT `+sqliteWeekColumns+` FROM weeks WHERE group_id = ? ORDER BY week_number DESC LIMIT 1`, groupID))
	if err != nil {
		return nil, sqliteError(err, "get latest week")
	}
	return w, nil
}

func (s *SQLiteStore) CreateWeek(ctx context.Context, w *week.Week) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	if err := insertSQLiteWeek(ctx, tx, w); err != nil {
		return sqliteError(err, "create week")
	}
	return tx.Commit()
}

func (s *SQLiteStore) RolloverWeek(ctx context.Context, closing, next *week.Week) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin rollover: %w", err)
	}
	defer tx.Rollback()

	var end any
	if closing.EndDate != nil {
		end = closing.EndDate.UTC()
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE weeks SET is_active = 0, end_date = ?, winner_id = ?, loser_id = ? WHERE id = ? AND is_active = 1`,
		end, closing.WinnerID, closing.LoserID, closing.ID,
	)
	if err != nil {
		return sqliteError(err, "close week")
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("week %s is not active: %w", closing.ID, apperr.ErrConflict)
	}

	if err := insertSQLiteWeek(ctx, tx, next); err != nil {
		return sqliteError(err, "open next week")
	}

	return tx.Commit()
}

// ============ ENTRIES ============

func scanSQLiteEntry(row interface{ Scan(...any) error }) (*sleep.Entry, error) {
	e := &sleep.Entry{}
	var wake string
	if err := row.Scan(&e.ID, &e.UserID, &wake, &e.Hours, &e.LoggedAt); err != nil {
		return nil, err
	}
	d, err := calendar.ParseDate(wake)
	if err != nil {
		return nil, err
	}
	e.WakeDate = d
	return e, nil
}

func (s *SQLiteStore) UpsertEntry(ctx context.Context, e *sleep.Entry) (*sleep.Entry, error) {
	if _, err := s.conn.ExecContext(ctx,
		`INSERT INTO sleep_entries (id, user_id, wake_date, hours, logged_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, wake_date) DO UPDATE SET hours = excluded.hours, logged_at = excluded.logged_at`,
		e.ID, e.UserID, e.WakeDate.String(), e.Hours, e.LoggedAt.UTC(),
	); err != nil {
		return nil, sqliteError(err, "log sleep")
	}

	saved, err := scanSQLiteEntry(s.conn.QueryRowContext(ctx,
		`SELECT id, user_id, wake_date, hours, logged_at FROM sleep_entries WHERE user_id = ? AND wake_date = ?`,
		e.UserID, e.WakeDate.String(),
	))
	if err != nil {
		return nil, sqliteError(err, "read back sleep entry")
	}
	return saved, nil
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, userID string, wakeDate calendar.Date) error {
	if _, err := s.conn.ExecContext(ctx,
		`DELETE FROM sleep_entries WHERE user_id = ? AND wake_date = ?`, userID, wakeDate.String()); err != nil {
		return sqliteError(err, "delete sleep entry")
	}
	return nil
}

func (s *SQLiteStore) ListEntries(ctx context.Context, f sleep.Filter) ([]*sleep.Entry, error) {
	if len(f.UserIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, user_id, wake_date, hours, logged_at FROM sleep_entries WHERE user_id IN (` + placeholders(len(f.UserIDs)) + `)`
	args := stringArgs(f.UserIDs)
	if f.From != nil {
		query += ` AND wake_date >= ?`
		args = append(args, f.From.String())
	}
	if f.To != nil {
		query += ` AND wake_date <= ?`
		args = append(args, f.To.String())
	}
	query += ` ORDER BY wake_date ASC, user_id ASC`

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, sqliteError(err, "list sleep entries")
	}
	defer rows.Close()

	var entries []*sleep.Entry
	for rows.Next() {
		e, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning sleep entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ============ PLEDGES ============

func scanSQLitePledge(row interface{ Scan(...any) error }) (*pledge.Pledge, error) {
	p := &pledge.Pledge{}
	err := row.Scan(&p.ID, &p.WeekID, &p.UserID, &p.Amount, &p.CreatedAt)
	return p, err
}

func (s *SQLiteStore) CreatePledge(ctx context.Context, p *pledge.Pledge) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO weekly_pledges (id, week_id, user_id, amount, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.WeekID, p.UserID, p.Amount, p.CreatedAt.UTC(),
	)
	if err != nil {
		return sqliteError(err, "create pledge")
	}
	return nil
}

func (s *SQLiteStore) GetPledge(ctx context.Context, weekID, userID string) (*pledge.Pledge, error) {
	p, err := scanSQLitePledge(s.conn.QueryRowContext(ctx,
		`SELECT id, week_id, user_id, amount, created_at FROM weekly_pledges WHERE week_id = ? AND user_id = ?`, weekID, userID))
	if err != nil {
		return nil, sqliteError(err, "get pledge")
	}
	return p, nil
}

func (s *SQLiteStore) ListPledges(ctx context.Context, weekID string) ([]*pledge.Pledge, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, week_id, user_id, amount, created_at FROM weekly_pledges WHERE week_id = ? ORDER BY created_at ASC`, weekID)
	if err != nil {
		return nil, sqliteError(err, "list pledges")
	}
	defer rows.Close()

	var pledges []*pledge.Pledge
	for rows.Next() {
		p, err := scanSQLitePledge(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning pledge: %w", err)
		}
		pledges = append(pledges, p)
	}
	return pledges, rows.Err()
}

// ============ DEVICES ============

func (s *SQLiteStore) RegisterDevice(ctx context.Context, d *notification.DeviceToken) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT INTO device_tokens (token, user_id, platform, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (token) DO UPDATE SET user_id = excluded.user_id, platform = excluded.platform, updated_at = excluded.updated_at`,
		d.Token, d.UserID, d.Platform, time.Now().UTC(),
	)
	if err != nil {
		return sqliteError(err, "register device")
	}
	return nil
}

func (s *SQLiteStore) ListDeviceTokens(ctx context.Context, userIDs []string) ([]notification.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.QueryContext(ctx,
		`SELECT user_id, token, platform FROM device_tokens WHERE user_id IN (`+placeholders(len(userIDs))+`) ORDER BY token`,
		stringArgs(userIDs)...)
	if err != nil {
		return nil, sqliteError(err, "list device tokens")
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform); err != nil {
			return nil, fmt.Errorf("sqlite: scanning device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
