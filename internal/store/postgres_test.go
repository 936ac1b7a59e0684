package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sleepTaxAPI/internal/apperr"
	"sleepTaxAPI/internal/types/calendar"
	"sleepTaxAPI/internal/types/group"
	"sleepTaxAPI/internal/types/sleep"
	"sleepTaxAPI/internal/types/week"
)

func newMockStore(t *testing.T) (pgxmock.PgxPoolIface, *PostgresStore) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(mock.Close)
	return mock, NewPostgresStoreWithConn(mock)
}

func TestPostgresGetUserByClerkID(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()
	query := regexp.QuoteMeta(userByClerkIDQuery)
	now := time.Now().UTC()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("user_1").
			WillReturnRows(pgxmock.NewRows([]string{"id", "clerk_id", "email", "name", "avatar_url", "created_at", "updated_at"}).
				AddRow("u-1", "user_1", "ana@example.com", "Ana", "", now, now))

		u, err := repo.GetUserByClerkID(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, "u-1", u.ID)
		assert.Equal(t, "Ana", u.Name)
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(query).
			WithArgs("user_2").
			WillReturnError(pgx.ErrNoRows)

		_, err := repo.GetUserByClerkID(ctx, "user_2")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDeleteUser(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()
	transfer := regexp.QuoteMeta(transferOwnershipQuery)
	del := regexp.QuoteMeta(deleteUserQuery)

	t.Run("hands groups over then deletes", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(transfer).WithArgs("user_1").WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(del).WithArgs("user_1").WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.DeleteUser(ctx, "user_1"))
	})

	t.Run("unknown user rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(transfer).WithArgs("ghost").WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectExec(del).WithArgs("ghost").WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.DeleteUser(ctx, "ghost"), apperr.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreateGroup(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	g := &group.Group{ID: "g-1", Name: "Night Owls", OwnerID: "u-1", Code: "NIGH-AB12", CreatedAt: now}
	first := &week.Week{ID: "w-1", GroupID: "g-1", WeekNumber: 1, IsActive: true, StartDate: now}

	t.Run("inserts group owner and first week", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertGroupQuery)).
			WithArgs(g.ID, g.Name, g.OwnerID, g.Code, g.CreatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(regexp.QuoteMeta(insertMemberQuery)).
			WithArgs(g.ID, g.OwnerID).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec(regexp.QuoteMeta(insertWeekQuery)).
			WithArgs(first.ID, first.GroupID, first.WeekNumber, first.IsActive, first.StartDate).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.CreateGroup(ctx, g, first))
	})

	t.Run("code collision rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertGroupQuery)).
			WithArgs(g.ID, g.Name, g.OwnerID, g.Code, g.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.CreateGroup(ctx, g, first), apperr.ErrConflict)
	})

	t.Run("missing owner rolls back", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(insertGroupQuery)).
			WithArgs(g.ID, g.Name, g.OwnerID, g.Code, g.CreatedAt).
			WillReturnError(&pgconn.PgError{Code: "23503"})
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.CreateGroup(ctx, g, first), apperr.ErrNotFound)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRolloverWeek(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	winner := "u-1"
	loser := "u-2"

	closing := &week.Week{ID: "w-1", GroupID: "g-1", WeekNumber: 1, EndDate: &now, WinnerID: &winner, LoserID: &loser}
	next := &week.Week{ID: "w-2", GroupID: "g-1", WeekNumber: 2, IsActive: true, StartDate: now}

	t.Run("closes and opens", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(closeWeekQuery)).
			WithArgs(closing.ID, closing.EndDate, closing.WinnerID, closing.LoserID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(regexp.QuoteMeta(insertWeekQuery)).
			WithArgs(next.ID, next.GroupID, next.WeekNumber, next.IsActive, next.StartDate).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.RolloverWeek(ctx, closing, next))
	})

	t.Run("already closed is a conflict", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(closeWeekQuery)).
			WithArgs(closing.ID, closing.EndDate, closing.WinnerID, closing.LoserID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))
		mock.ExpectRollback()

		assert.ErrorIs(t, repo.RolloverWeek(ctx, closing, next), apperr.ErrConflict)
	})

	t.Run("next week insert fails", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(closeWeekQuery)).
			WithArgs(closing.ID, closing.EndDate, closing.WinnerID, closing.LoserID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))
		mock.ExpectExec(regexp.QuoteMeta(insertWeekQuery)).
			WithArgs(next.ID, next.GroupID, next.WeekNumber, next.IsActive, next.StartDate).
			WillReturnError(errors.New("db error"))
		mock.ExpectRollback()

		err := repo.RolloverWeek(ctx, closing, next)
		assert.Error(t, err)
		assert.NotErrorIs(t, err, apperr.ErrConflict)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertEntry(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	wake := calendar.NewDate(2025, time.March, 4)

	e := &sleep.Entry{ID: "e-new", UserID: "u-1", WakeDate: wake, Hours: 7.5, LoggedAt: now}

	mock.ExpectQuery(regexp.QuoteMeta(upsertEntryQuery)).
		WithArgs(e.ID, e.UserID, wake.Time(), e.Hours, e.LoggedAt).
		WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "wake_date", "hours", "logged_at"}).
			AddRow("e-old", "u-1", wake.Time(), 7.5, now))

	saved, err := repo.UpsertEntry(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, "e-old", saved.ID, "existing row keeps its id")
	assert.Equal(t, wake, saved.WakeDate)
	assert.Equal(t, 7.5, saved.Hours)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresListEntries(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	from := calendar.NewDate(2025, time.March, 1)

	t.Run("no users skips the query", func(t *testing.T) {
		entries, err := repo.ListEntries(ctx, sleep.Filter{})
		assert.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("window filter", func(t *testing.T) {
		mock.ExpectQuery(regexp.QuoteMeta(listEntriesQuery)).
			WithArgs([]string{"u-1", "u-2"}, pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "user_id", "wake_date", "hours", "logged_at"}).
				AddRow("e-1", "u-1", from.Time(), 8.0, now).
				AddRow("e-2", "u-2", from.AddDays(1).Time(), 5.0, now))

		entries, err := repo.ListEntries(ctx, sleep.Filter{UserIDs: []string{"u-1", "u-2"}, From: &from})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, from.AddDays(1), entries[1].WakeDate)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresCreatePledgeDuplicate(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()

	mock.ExpectExec(regexp.QuoteMeta(insertPledgeQuery)).
		WithArgs(pgxmock.AnyArg(), "w-1", "u-1", 10.0, pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := repo.CreatePledge(ctx, newPledge("w-1", "u-1", 10))
	assert.ErrorIs(t, err, apperr.ErrConflict)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgErrorPassesThroughUnknownErrors(t *testing.T) {
	err := pgError(errors.New("connection reset"), "list groups")
	assert.NotErrorIs(t, err, apperr.ErrNotFound)
	assert.NotErrorIs(t, err, apperr.ErrConflict)
	assert.Contains(t, err.Error(), "connection reset")
}

func TestPostgresLookupsWithMalformedIDs(t *testing.T) {
	mock, repo := newMockStore(t)
	ctx := context.Background()

	_, err := repo.GetWeek(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.GetGroupByID(ctx, "current")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.GetUserByID(ctx, "me")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.GetActiveWeek(ctx, "abc")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.LatestWeek(ctx, "abc")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = repo.GetPledge(ctx, "w-1", "7f0c6a2e-5b7a-4f43-9a55-0d6f3c1e2b11")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	isMember, err := repo.IsMember(ctx, "g-1", "7f0c6a2e-5b7a-4f43-9a55-0d6f3c1e2b11")
	require.NoError(t, err)
	assert.False(t, isMember)

	members, err := repo.ListMembers(ctx, "g-1")
	require.NoError(t, err)
	assert.Empty(t, members)

	pledges, err := repo.ListPledges(ctx, "w-1")
	require.NoError(t, err)
	assert.Empty(t, pledges)

	// nothing reaches the database
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPgErrorInvalidTextRepresentationIsNotFound(t *testing.T) {
	err := pgError(&pgconn.PgError{Code: "22P02"}, "get week")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
