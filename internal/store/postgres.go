package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/internal/types/notification"
	"sleepTaxAPI/internal/types/pledge"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/user"
	"sleepTaxAPI/internal/types/week"
)

// PgConnection is satisfied by *pgxpool.Pool and by pgxmock pools.
type PgConnection interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PostgresStore struct {
	conn  PgConnection
	close func()
}

func NewPostgresStore(ctx context.Context, dbURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{conn: pool, close: pool.Close}, nil
}

func NewPostgresStoreWithConn(conn PgConnection) *PostgresStore {
	return &PostgresStore{conn: conn, close: func() {}}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.conn.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *PostgresStore) Close() {
	zap.S().Info("Closing database connection pool...")
	s.close()
}

// pgError folds driver errors into the apperr taxonomy.
func pgError(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w", what, apperr.ErrConflict)
		case "23503", "22P02":
			return fmt.Errorf("%s: %w", what, apperr.ErrNotFound)
		}
	}
	return fmt.Errorf("failed to %s: %w", what, err)
}

// validIDs reports whether every id can be encoded into a UUID column. Ids
// arrive from URL paths, and pgx refuses to encode anything else client-side.
func validIDs(ids ...string) bool {
	for _, id := range ids {
		if _, err := uuid.Parse(id); err != nil {
			return false
		}
	}
	return true
}

// ============ USERS ============

const (
	userColumns = `id, clerk_id, email, name, avatar_url, created_at, updated_at`

	insertUserQuery = `INSERT INTO users (id, clerk_id, email, name, avatar_url, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

	updateUserQuery = `UPDATE users SET
		email = COALESCE(NULLIF($2, ''), email),
		name = COALESCE(NULLIF($3, ''), name),
		avatar_url = COALESCE(NULLIF($4, ''), avatar_url),
		updated_at = NOW()
	WHERE clerk_id = $1
	RETURNING ` + userColumns

	deleteUserQuery = `DELETE FROM users WHERE clerk_id = $1`

	// Groups owned by the departing user pass to their longest-standing other
	// member. Groups with nobody else left are removed by the cascade.
	transferOwnershipQuery = `UPDATE groups SET owner_id = (
		SELECT m.user_id FROM group_members m
		WHERE m.group_id = groups.id AND m.user_id <> groups.owner_id
		ORDER BY m.joined_at, m.user_id LIMIT 1
	)
	WHERE owner_id = (SELECT id FROM users WHERE clerk_id = $1)
	AND EXISTS (SELECT 1 FROM group_members m WHERE m.group_id = groups.id AND m.user_id <> groups.owner_id)`

	userByClerkIDQuery = `SELECT ` + userColumns + ` FROM users WHERE clerk_id = $1`
	userByIDQuery      = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
)

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(&u.ID, &u.ClerkID, &u.Email, &u.Name, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.conn.Exec(ctx, insertUserQuery, u.ID, u.ClerkID, u.Email, u.Name, u.AvatarURL, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return pgError(err, "create user")
	}
	return nil
}

func (s *PostgresStore) UpdateUser(ctx context.Context, clerkID string, req *user.UpdateProfileRequest) (*user.User, error) {
	u, err := scanUser(s.conn.QueryRow(ctx, updateUserQuery, clerkID, req.Email, req.Name, req.AvatarURL))
	if err != nil {
		return nil, pgError(err, "update user")
	}
	return u, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, clerkID string) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := deleteUserTx(ctx, tx, clerkID); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}

func deleteUserTx(ctx context.Context, tx pgx.Tx, clerkID string) error {
	if _, err := tx.Exec(ctx, transferOwnershipQuery, clerkID); err != nil {
		return pgError(err, "transfer group ownership")
	}
	tag, err := tx.Exec(ctx, deleteUserQuery, clerkID)
	if err != nil {
		return pgError(err, "delete user")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", clerkID, apperr.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) GetUserByClerkID(ctx context.Context, clerkID string) (*user.User, error) {
	u, err := scanUser(s.conn.QueryRow(ctx, userByClerkIDQuery, clerkID))
	if err != nil {
		return nil, pgError(err, "get user")
	}
	return u, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	if !validIDs(id) {
		return nil, fmt.Errorf("user %s: %w", id, apperr.ErrNotFound)
	}
	u, err := scanUser(s.conn.QueryRow(ctx, userByIDQuery, id))
	if err != nil {
		return nil, pgError(err, "get user")
	}
	return u, nil
}

// ============ GROUPS ============

const (
	groupColumns = `id, name, owner_id, code, created_at`

	insertGroupQuery  = `INSERT INTO groups (id, name, owner_id, code, created_at) VALUES ($1, $2, $3, UPPER($4), $5)`
	insertMemberQuery = `INSERT INTO group_members (group_id, user_id) VALUES ($1, $2)`
	insertWeekQuery   = `INSERT INTO weeks (id, group_id, week_number, is_active, start_date) VALUES ($1, $2, $3, $4, $5)`

	groupByIDQuery   = `SELECT ` + groupColumns + ` FROM groups WHERE id = $1`
	groupByCodeQuery = `SELECT ` + groupColumns + ` FROM groups WHERE code = UPPER($1)`

	groupForUserQuery = `SELECT g.id, g.name, g.owner_id, g.code, g.created_at
	FROM group_members gm
	JOIN groups g ON g.id = gm.group_id
	WHERE gm.user_id = $1
	ORDER BY gm.joined_at ASC
	LIMIT 1`

	isMemberQuery = `SELECT EXISTS (SELECT 1 FROM group_members WHERE group_id = $1 AND user_id = $2)`

	listMembersQuery = `SELECT u.id, u.clerk_id, u.email, u.name, u.avatar_url, u.created_at, u.updated_at
	FROM group_members gm
	JOIN users u ON u.id = gm.user_id
	WHERE gm.group_id = $1
	ORDER BY gm.joined_at ASC, gm.user_id ASC`

	listGroupIDsQuery = `SELECT id FROM groups ORDER BY id`
)

func scanGroup(row pgx.Row) (*group.Group, error) {
	g := &group.Group{}
	err := row.Scan(&g.ID, &g.Name, &g.OwnerID, &g.Code, &g.CreatedAt)
	return g, err
}

func (s *PostgresStore) CreateGroup(ctx context.Context, g *group.Group, first *week.Week) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := createGroupTx(ctx, tx, g, first); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit group: %w", err)
	}
	return nil
}

func createGroupTx(ctx context.Context, tx pgx.Tx, g *group.Group, first *week.Week) error {
	if _, err := tx.Exec(ctx, insertGroupQuery, g.ID, g.Name, g.OwnerID, g.Code, g.CreatedAt); err != nil {
		return pgError(err, "create group")
	}
	if _, err := tx.Exec(ctx, insertMemberQuery, g.ID, g.OwnerID); err != nil {
		return pgError(err, "add owner to group")
	}
	if _, err := tx.Exec(ctx, insertWeekQuery, first.ID, first.GroupID, first.WeekNumber, first.IsActive, first.StartDate); err != nil {
		return pgError(err, "create first week")
	}
	return nil
}

func (s *PostgresStore) GetGroupByID(ctx context.Context, id string) (*group.Group, error) {
	if !validIDs(id) {
		return nil, fmt.Errorf("group %s: %w", id, apperr.ErrNotFound)
	}
	g, err := scanGroup(s.conn.QueryRow(ctx, groupByIDQuery, id))
	if err != nil {
		return nil, pgError(err, "get group")
	}
	return g, nil
}

func (s *PostgresStore) GetGroupByCode(ctx context.Context, code string) (*group.Group, error) {
	g, err := scanGroup(s.conn.QueryRow(ctx, groupByCodeQuery, strings.TrimSpace(code)))
	if err != nil {
		return nil, pgError(err, "get group by code")
	}
	return g, nil
}

func (s *PostgresStore) GetGroupForUser(ctx context.Context, userID string) (*group.Group, error) {
	g, err := scanGroup(s.conn.QueryRow(ctx, groupForUserQuery, userID))
	if err != nil {
		return nil, pgError(err, "get group for user")
	}
	return g, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, groupID, userID string) error {
	if _, err := s.conn.Exec(ctx, insertMemberQuery, groupID, userID); err != nil {
		return pgError(err, "join group")
	}
	return nil
}

func (s *PostgresStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	if !validIDs(groupID, userID) {
		return false, nil
	}
	var exists bool
	if err := s.conn.QueryRow(ctx, isMemberQuery, groupID, userID).Scan(&exists); err != nil {
		return false, pgError(err, "check membership")
	}
	return exists, nil
}

func (s *PostgresStore) ListMembers(ctx context.Context, groupID string) ([]*user.User, error) {
	if !validIDs(groupID) {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, listMembersQuery, groupID)
	if err != nil {
		return nil, pgError(err, "list members")
	}
	defer rows.Close()

	var members []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate members: %w", err)
	}
	return members, nil
}

func (s *PostgresStore) ListGroupIDs(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, listGroupIDsQuery)
	if err != nil {
		return nil, pgError(err, "list groups")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan group id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============ WEEKS ============

const (
	weekColumns = `id, group_id, week_number, is_active, start_date, end_date, winner_id, loser_id`

	weekByIDQuery   = `SELECT ` + weekColumns + ` FROM weeks WHERE id = $1`
	activeWeekQuery = `SELECT ` + weekColumns + ` FROM weeks WHERE group_id = $1 AND is_active ORDER BY week_number DESC LIMIT 1`
	latestWeekQuery = `SELECT ` + weekColumns + ` FROM weeks WHERE group_id = $1 ORDER BY week_number DESC LIMIT 1`
	closeWeekQuery  = `UPDATE weeks SET is_active = FALSE, end_date = $2, winner_id = $3, loser_id = $4 WHERE id = $1 AND is_active`
)

func scanWeek(row pgx.Row) (*week.Week, error) {
	w := &week.Week{}
	err := row.Scan(&w.ID, &w.GroupID, &w.WeekNumber, &w.IsActive, &w.StartDate, &w.EndDate, &w.WinnerID, &w.LoserID)
	return w, err
}

func (s *PostgresStore) GetWeek(ctx context.Context, id string) (*week.Week, error) {
	if !validIDs(id) {
		return nil, fmt.Errorf("week %s: %w", id, apperr.ErrNotFound)
	}
	w, err := scanWeek(s.conn.QueryRow(ctx, weekByIDQuery, id))
	if err != nil {
		return nil, pgError(err, "get week")
	}
	return w, nil
}

func (s *PostgresStore) GetActiveWeek(ctx context.Context, groupID string) (*week.Week, error) {
	if !validIDs(groupID) {
		return nil, fmt.Errorf("active week for group %s: %w", groupID, apperr.ErrNotFound)
	}
	w, err := scanWeek(s.conn.QueryRow(ctx, activeWeekQuery, groupID))
	if err != nil {
		return nil, pgError(err, "get active week")
	}
	return w, nil
}

func (s *PostgresStore) LatestWeek(ctx context.Context, groupID string) (*week.Week, error) {
	if !validIDs(groupID) {
		return nil, fmt.Errorf("latest week for group %s: %w", groupID, apperr.ErrNotFound)
	}
	w, err := scanWeek(s.conn.QueryRow(ctx, latestWeekQuery, groupID))
	if err != nil {
		return nil, pgError(err, "get latest week")
	}
	return w, nil
}

func (s *PostgresStore) CreateWeek(ctx context.Context, w *week.Week) error {
	if _, err := s.conn.Exec(ctx, insertWeekQuery, w.ID, w.GroupID, w.WeekNumber, w.IsActive, w.StartDate); err != nil {
		return pgError(err, "create week")
	}
	return nil
}

func (s *PostgresStore) RolloverWeek(ctx context.Context, closing, next *week.Week) error {
	tx, err := s.conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin rollover: %w", err)
	}

	if err := rolloverTx(ctx, tx, closing, next); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit rollover: %w", err)
	}
	return nil
}

func rolloverTx(ctx context.Context, tx pgx.Tx, closing, next *week.Week) error {
	tag, err := tx.Exec(ctx, closeWeekQuery, closing.ID, closing.EndDate, closing.WinnerID, closing.LoserID)
	if err != nil {
		return pgError(err, "close week")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("week %s is not active: %w", closing.ID, apperr.ErrConflict)
	}

	if _, err := tx.Exec(ctx, insertWeekQuery, next.ID, next.GroupID, next.WeekNumber, next.IsActive, next.StartDate); err != nil {
		return pgError(err, "open next week")
	}
	return nil
}

// ============ ENTRIES ============

const (
	upsertEntryQuery = `INSERT INTO sleep_entries (id, user_id, wake_date, hours, logged_at)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (user_id, wake_date)
	DO UPDATE SET hours = EXCLUDED.hours, logged_at = EXCLUDED.logged_at
	RETURNING id, user_id, wake_date, hours, logged_at`

	deleteEntryQuery = `DELETE FROM sleep_entries WHERE user_id = $1 AND wake_date = $2`

	listEntriesQuery = `SELECT id, user_id, wake_date, hours, logged_at
	FROM sleep_entries
	WHERE user_id = ANY($1::uuid[])
	AND ($2::date IS NULL OR wake_date >= $2)
	AND ($3::date IS NULL OR wake_date <= $3)
	ORDER BY wake_date ASC, user_id ASC`
)

func scanEntry(row pgx.Row) (*sleep.Entry, error) {
	e := &sleep.Entry{}
	var wake time.Time
	if err := row.Scan(&e.ID, &e.UserID, &wake, &e.Hours, &e.LoggedAt); err != nil {
		return nil, err
	}
	e.WakeDate = calendar.DateOf(wake, time.UTC)
	return e, nil
}

func dateArg(d *calendar.Date) *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time()
	return &t
}

func (s *PostgresStore) UpsertEntry(ctx context.Context, e *sleep.Entry) (*sleep.Entry, error) {
	saved, err := scanEntry(s.conn.QueryRow(ctx, upsertEntryQuery, e.ID, e.UserID, e.WakeDate.Time(), e.Hours, e.LoggedAt))
	if err != nil {
		return nil, pgError(err, "log sleep")
	}
	return saved, nil
}

func (s *PostgresStore) DeleteEntry(ctx context.Context, userID string, wakeDate calendar.Date) error {
	if _, err := s.conn.Exec(ctx, deleteEntryQuery, userID, wakeDate.Time()); err != nil {
		return pgError(err, "delete sleep entry")
	}
	return nil
}

func (s *PostgresStore) ListEntries(ctx context.Context, f sleep.Filter) ([]*sleep.Entry, error) {
	if len(f.UserIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, listEntriesQuery, f.UserIDs, dateArg(f.From), dateArg(f.To))
	if err != nil {
		return nil, pgError(err, "list sleep entries")
	}
	defer rows.Close()

	var entries []*sleep.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sleep entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sleep entries: %w", err)
	}
	return entries, nil
}

// ============ PLEDGES ============

const (
	insertPledgeQuery = `INSERT INTO weekly_pledges (id, week_id, user_id, amount, created_at) VALUES ($1, $2, $3, $4, $5)`
	pledgeQuery       = `SELECT id, week_id, user_id, amount, created_at FROM weekly_pledges WHERE week_id = $1 AND user_id = $2`
	listPledgesQuery  = `SELECT id, week_id, user_id, amount, created_at FROM weekly_pledges WHERE week_id = $1 ORDER BY created_at ASC`
)

func scanPledge(row pgx.Row) (*pledge.Pledge, error) {
	p := &pledge.Pledge{}
	err := row.Scan(&p.ID, &p.WeekID, &p.UserID, &p.Amount, &p.CreatedAt)
	return p, err
}

func (s *PostgresStore) CreatePledge(ctx context.Context, p *pledge.Pledge) error {
	if _, err := s.conn.Exec(ctx, insertPledgeQuery, p.ID, p.WeekID, p.UserID, p.Amount, p.CreatedAt); err != nil {
		return pgError(err, "create pledge")
	}
	return nil
}

func (s *PostgresStore) GetPledge(ctx context.Context, weekID, userID string) (*pledge.Pledge, error) {
	if !validIDs(weekID, userID) {
		return nil, fmt.Errorf("pledge for week %s: %w", weekID, apperr.ErrNotFound)
	}
	p, err := scanPledge(s.conn.QueryRow(ctx, pledgeQuery, weekID, userID))
	if err != nil {
		return nil, pgError(err, "get pledge")
	}
	return p, nil
}

func (s *PostgresStore) ListPledges(ctx context.Context, weekID string) ([]*pledge.Pledge, error) {
	if !validIDs(weekID) {
		return nil, nil
	}
	rows, err := s.conn.Query(ctx, listPledgesQuery, weekID)
	if err != nil {
		return nil, pgError(err, "list pledges")
	}
	defer rows.Close()

	var pledges []*pledge.Pledge
	for rows.Next() {
		p, err := scanPledge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pledge: %w", err)
		}
		pledges = append(pledges, p)
	}
	return pledges, rows.Err()
}

// ============ DEVICES ============

const (
	upsertDeviceQuery = `INSERT INTO device_tokens (token, user_id, platform, updated_at)
	VALUES ($1, $2, $3, NOW())
	ON CONFLICT (token) DO UPDATE SET user_id = EXCLUDED.user_id, platform = EXCLUDED.platform, updated_at = NOW()`

	listDevicesQuery = `SELECT user_id, token, platform FROM device_tokens WHERE user_id = ANY($1::uuid[]) ORDER BY token`
)

func (s *PostgresStore) RegisterDevice(ctx context.Context, d *notification.DeviceToken) error {
	if _, err := s.conn.Exec(ctx, upsertDeviceQuery, d.Token, d.UserID, d.Platform); err != nil {
		return pgError(err, "register device")
	}
	return nil
}

func (s *PostgresStore) ListDeviceTokens(ctx context.Context, userIDs []string) ([]notification.DeviceToken, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	rows, err := s.conn.Query(ctx, listDevicesQuery, userIDs)
	if err != nil {
		return nil, pgError(err, "list device tokens")
	}
	defer rows.Close()

	var tokens []notification.DeviceToken
	for rows.Next() {
		var t notification.DeviceToken
		if err := rows.Scan(&t.UserID, &t.Token, &t.Platform); err != nil {
			return nil, fmt.Errorf("failed to scan device token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}
