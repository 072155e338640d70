package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sweetshop/apiserver/types"
)

const testSweetID = "6f1c2b7e-3d4a-4c1e-9a53-0d7b1f2e8c11"

func newMockSweetRepo(t *testing.T) (*SweetRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSweetRepository(db), mock
}

func sweetRows(sweets ...types.Sweet) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{"id", "name", "category", "price", "quantity", "created_at", "updated_at"})
	for _, s := range sweets {
		rows.AddRow(s.ID, s.Name, s.Category, s.Price, s.Quantity, s.CreatedAt, s.UpdatedAt)
	}
	return rows
}

func TestBuildListQuery(t *testing.T) {
	minPrice, maxPrice := 10.0, 60.0

	tests := []struct {
		name      string
		filter    types.SearchFilter
		wantWhere string
		wantArgs  []any
	}{
		{
			name:     "no filters",
			filter:   types.SearchFilter{},
			wantArgs: nil,
		},
		{
			name:      "name only",
			filter:    types.SearchFilter{Name: "gulab"},
			wantWhere: "WHERE name ILIKE $1",
			wantArgs:  []any{"%gulab%"},
		},
		{
			name:      "all filters",
			filter:    types.SearchFilter{Name: "jam", Category: "indian", MinPrice: &minPrice, MaxPrice: &maxPrice},
			wantWhere: "WHERE name ILIKE $1 AND category ILIKE $2 AND price >= $3 AND price <= $4",
			wantArgs:  []any{"%jam%", "%indian%", 10.0, 60.0},
		},
		{
			name:      "like metacharacters escaped",
			filter:    types.SearchFilter{Name: `50%_off\`},
			wantWhere: "WHERE name ILIKE $1",
			wantArgs:  []any{`%50\%\_off\\%`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := buildListQuery(tt.filter)
			if tt.wantWhere == "" {
				assert.NotContains(t, query, "WHERE")
			} else {
				assert.Contains(t, query, tt.wantWhere)
			}
			assert.Contains(t, query, "ORDER BY created_at DESC, id DESC")
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSweetRepository_List(t *testing.T) {
	repo, mock := newMockSweetRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM sweets WHERE name ILIKE $1 ORDER BY created_at DESC")).
		WithArgs("%gulab%").
		WillReturnRows(sweetRows(types.Sweet{ID: testSweetID, Name: "Gulab Jamun", Category: "Indian", Price: 50, Quantity: 100, CreatedAt: now, UpdatedAt: now}))

	sweets, err := repo.List(context.Background(), types.SearchFilter{Name: "gulab"})
	require.NoError(t, err)
	require.Len(t, sweets, 1)
	assert.Equal(t, "Gulab Jamun", sweets[0].Name)
	assert.Equal(t, 100, sweets[0].Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRepository_ListEmptyIsNotNil(t *testing.T) {
	repo, mock := newMockSweetRepo(t)
	mock.ExpectQuery("SELECT .* FROM sweets").WillReturnRows(sweetRows())

	sweets, err := repo.List(context.Background(), types.SearchFilter{})
	require.NoError(t, err)
	assert.NotNil(t, sweets)
	assert.Empty(t, sweets)
}

func TestSweetRepository_GetInvalidIDIsNotFound(t *testing.T) {
	repo, mock := newMockSweetRepo(t)

	_, err := repo.Get(context.Background(), "not-a-uuid")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRepository_CreateDuplicateName(t *testing.T) {
	repo, mock := newMockSweetRepo(t)

	mock.ExpectExec("INSERT INTO sweets").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})

	_, err := repo.Create(context.Background(), types.Sweet{Name: "Gulab Jamun", Category: "Indian", Price: 50})
	require.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRepository_Create(t *testing.T) {
	repo, mock := newMockSweetRepo(t)

	mock.ExpectExec("INSERT INTO sweets").
		WithArgs(sqlmock.AnyArg(), "Rasgulla", "Indian", 30.5, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	sweet, err := repo.Create(context.Background(), types.Sweet{Name: "Rasgulla", Category: "Indian", Price: 30.5})
	require.NoError(t, err)
	assert.NotEmpty(t, sweet.ID)
	assert.False(t, sweet.CreatedAt.IsZero())
	assert.Equal(t, sweet.CreatedAt, sweet.UpdatedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRepository_UpdateRejectsTakenName(t *testing.T) {
	repo, mock := newMockSweetRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM sweets WHERE id = $1 FOR UPDATE")).
		WithArgs(testSweetID).
		WillReturnRows(sweetRows(types.Sweet{ID: testSweetID, Name: "Ladoo", Category: "Indian", Price: 20, Quantity: 5, CreatedAt: now, UpdatedAt: now}))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).
		WithArgs("Barfi", testSweetID).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	name := "Barfi"
	_, err := repo.Update(context.Background(), testSweetID, types.SweetPatch{Name: &name})
	require.ErrorIs(t, err, ErrDuplicate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRepository_UpdateMergesPatch(t *testing.T) {
	repo, mock := newMockSweetRepo(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FOR UPDATE")).
		WithArgs(testSweetID).
		WillReturnRows(sweetRows(types.Sweet{ID: testSweetID, Name: "Ladoo", Category: "Indian", Price: 20, Quantity: 5, CreatedAt: now, UpdatedAt: now}))
	mock.ExpectExec("UPDATE sweets").
		WithArgs("Ladoo", "Indian", 25.0, 5, sqlmock.AnyArg(), testSweetID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	price := 25.0
	sweet, err := repo.Update(context.Background(), testSweetID, types.SweetPatch{Price: &price})
	require.NoError(t, err)
	assert.Equal(t, 25.0, sweet.Price)
	assert.Equal(t, 5, sweet.Quantity)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSweetRepository_DeleteMissing(t *testing.T) {
	repo, mock := newMockSweetRepo(t)

	mock.ExpectExec("DELETE FROM sweets").
		WithArgs(testSweetID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), testSweetID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSweetRepository_DecrementIfEnough(t *testing.T) {
	now := time.Now().UTC()
	lockQuery := regexp.QuoteMeta("SELECT quantity FROM sweets WHERE id = $1 FOR UPDATE")

	t.Run("success", func(t *testing.T) {
		repo, mock := newMockSweetRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(testSweetID).
			WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(5))
		mock.ExpectQuery(regexp.QuoteMeta("SET quantity = quantity - $1")).
			WithArgs(3, sqlmock.AnyArg(), testSweetID).
			WillReturnRows(sweetRows(types.Sweet{ID: testSweetID, Name: "Ladoo", Category: "Indian", Price: 20, Quantity: 2, CreatedAt: now, UpdatedAt: now}))
		mock.ExpectCommit()

		sweet, err := repo.DecrementIfEnough(context.Background(), testSweetID, 3)
		require.NoError(t, err)
		assert.Equal(t, 2, sweet.Quantity)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock reports the locked quantity", func(t *testing.T) {
		repo, mock := newMockSweetRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).
			WithArgs(testSweetID).
			WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(2))
		mock.ExpectRollback()

		_, err := repo.DecrementIfEnough(context.Background(), testSweetID, 5)
		require.ErrorIs(t, err, ErrInsufficientStock)

		var stockErr *StockError
		require.True(t, errors.As(err, &stockErr))
		assert.Equal(t, 2, stockErr.Available)
		assert.Equal(t, 5, stockErr.Requested)
		assert.Less(t, stockErr.Available, stockErr.Requested)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing sweet", func(t *testing.T) {
		repo, mock := newMockSweetRepo(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockQuery).WillReturnRows(sqlmock.NewRows([]string{"quantity"}))
		mock.ExpectRollback()

		_, err := repo.DecrementIfEnough(context.Background(), testSweetID, 1)
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSweetRepository_Increment(t *testing.T) {
	now := time.Now().UTC()
	incrementQuery := regexp.QuoteMeta("WHERE id = $3 AND quantity <= $4 - $1")

	t.Run("success", func(t *testing.T) {
		repo, mock := newMockSweetRepo(t)
		mock.ExpectQuery(incrementQuery).
			WithArgs(50, sqlmock.AnyArg(), testSweetID, MaxQuantity).
			WillReturnRows(sweetRows(types.Sweet{ID: testSweetID, Name: "Ladoo", Category: "Indian", Price: 20, Quantity: 150, CreatedAt: now, UpdatedAt: now}))

		sweet, err := repo.Increment(context.Background(), testSweetID, 50)
		require.NoError(t, err)
		assert.Equal(t, 150, sweet.Quantity)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("past the cap", func(t *testing.T) {
		repo, mock := newMockSweetRepo(t)
		mock.ExpectQuery(incrementQuery).
			WithArgs(MaxQuantity, sqlmock.AnyArg(), testSweetID, MaxQuantity).
			WillReturnRows(sweetRows())
		mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS (SELECT 1 FROM sweets WHERE id = $1)")).
			WithArgs(testSweetID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		_, err := repo.Increment(context.Background(), testSweetID, MaxQuantity)
		require.ErrorIs(t, err, ErrQuantityOverflow)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing sweet", func(t *testing.T) {
		repo, mock := newMockSweetRepo(t)
		mock.ExpectQuery(incrementQuery).WillReturnRows(sweetRows())
		mock.ExpectQuery("SELECT EXISTS").
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		_, err := repo.Increment(context.Background(), testSweetID, 1)
		require.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMapWriteError_OutOfRange(t *testing.T) {
	err := mapWriteError(&pq.Error{Code: pqNumericValueOutOfRange})
	require.ErrorIs(t, err, ErrQuantityOverflow)
}

func TestSweetRepository_GetByName(t *testing.T) {
	repo, mock := newMockSweetRepo(t)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1")).
		WithArgs("Ladoo").
		WillReturnRows(sweetRows(types.Sweet{ID: testSweetID, Name: "Ladoo", Category: "Indian", Price: 20, Quantity: 4, CreatedAt: now, UpdatedAt: now}))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE name = $1")).
		WithArgs("Rasgulla").
		WillReturnRows(sweetRows())

	sweet, err := repo.GetByName(context.Background(), "Ladoo")
	require.NoError(t, err)
	assert.Equal(t, testSweetID, sweet.ID)

	_, err = repo.GetByName(context.Background(), "Rasgulla")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
