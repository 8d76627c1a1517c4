package representatives

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/EmpoweredVote/rep-lookup/internal/db"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockGorm(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestStore_ResolveByZip(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb, WithQueryTimeout(time.Second))

	mock.ExpectQuery(`SELECT \* FROM "geography" WHERE zip_code = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "zip_code", "city", "state", "state_name", "county", "congressional_district", "latitude", "longitude"}).
			AddRow(1, "11354", "Flushing", "NY", "New York", "Queens", "06", 40.7598, -73.8303))

	g, err := store.ResolveByZip(context.Background(), "11354")
	require.NoError(t, err)
	assert.Equal(t, uint(1), g.ID)
	assert.Equal(t, "Flushing", g.City)
	require.NotNil(t, g.Latitude)
	assert.InDelta(t, 40.7598, *g.Latitude, 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveByZip_NotFound(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`FROM "geography" WHERE zip_code = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := store.ResolveByZip(context.Background(), "99999")
	require.ErrorIs(t, err, ErrNotFound)

	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ZIP code", nf.Resource)
	assert.Equal(t, "Please verify the ZIP code is correct", nf.Suggestion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveByZip_ConnectionFailure(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`FROM "geography"`).WillReturnError(&pgconn.PgError{Code: "08006", Message: "connection failure"})

	_, err := store.ResolveByZip(context.Background(), "11354")

	var se *db.StorageError
	require.ErrorAs(t, err, &se)
	assert.True(t, se.Unavailable)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStore_ResolveForGeography(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	cols := []string{"id", "name", "title", "branch", "is_active", "jurisdiction_level"}
	mock.ExpectQuery(`SELECT r\.\*, m\.jurisdiction_level FROM representatives AS r JOIN rep_geography_map m ON m\.representative_id = r\.id WHERE m\.geography_id = \$1 AND r\.is_active = \$2 ORDER BY CASE r\.branch WHEN 'federal' THEN 1 .* END,r\.name ASC,r\.id ASC`).
		WithArgs(1, true).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(2, "Chuck Schumer", "U.S. Senator", "federal", true, "federal").
			AddRow(1, "Grace Meng", "U.S. House Rep, NY-6", "federal", true, "federal").
			AddRow(4, "Kathy Hochul", "Governor", "state", true, "state"))

	rows, err := store.ResolveForGeography(context.Background(), 1, Filter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Chuck Schumer", rows[0].Name)
	assert.Equal(t, BranchFederal, rows[0].JurisdictionLevel)
	assert.Equal(t, BranchState, rows[2].Branch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ResolveForGeography_Filters(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`WHERE m\.geography_id = \$1 AND r\.branch = \$2 ORDER BY`).
		WithArgs(1, "federal").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rows, err := store.ResolveForGeography(context.Background(), 1, Filter{IncludeInactive: true, Branch: BranchFederal})
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search_RequiresCriteria(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	_, err := store.Search(context.Background(), SearchParams{Limit: 20, Offset: 40})
	assert.ErrorIs(t, err, ErrInvalidSearch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "representatives" WHERE representatives\.is_active = \$1 AND representatives\.name ILIKE \$2 AND .*EXISTS`).
		WithArgs(true, "%schumer%", "NY").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "representatives" WHERE .* ORDER BY representatives\.name ASC,representatives\.id ASC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "branch", "is_active"}).
			AddRow(2, "Chuck Schumer", "federal", true))

	res, err := store.Search(context.Background(), SearchParams{Name: "schumer", State: "ny", Limit: 20})
	require.NoError(t, err)
	assert.EqualValues(t, 1, res.TotalCount)
	require.Len(t, res.Representatives, 1)
	assert.Equal(t, "Chuck Schumer", res.Representatives[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Search_EmptySkipsPageQuery(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "representatives" WHERE representatives\.is_active = \$1 AND representatives\.branch = \$2`).
		WithArgs(true, "local").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	res, err := store.Search(context.Background(), SearchParams{Branch: BranchLocal, Limit: 20})
	require.NoError(t, err)
	assert.Zero(t, res.TotalCount)
	assert.NotNil(t, res.Representatives)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetByID(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`SELECT \* FROM "representatives" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "branch", "is_active"}).AddRow(1, "Grace Meng", "federal", true))
	mock.ExpectQuery(`SELECT DISTINCT g\.id AS geography_id,.* FROM representatives AS r LEFT JOIN rep_geography_map m .* LEFT JOIN geography g .* WHERE r\.id = \$1 ORDER BY g\.zip_code`).
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"geography_id", "zip_code", "city", "state", "state_name", "county", "congressional_district", "jurisdiction_level"}).
			AddRow(1, "11354", "Flushing", "NY", "New York", "Queens", "06", "federal"))

	rep, areas, err := store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Grace Meng", rep.Name)
	require.Len(t, areas, 1)
	assert.Equal(t, ServedArea{
		GeographyID:           1,
		ZipCode:               "11354",
		City:                  "Flushing",
		State:                 "NY",
		StateName:             "New York",
		County:                "Queens",
		CongressionalDistrict: "06",
		JurisdictionLevel:     BranchFederal,
	}, areas[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetByID_UnmappedDropsNullGeography(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`FROM "representatives" WHERE id = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "branch", "is_active"}).AddRow(9, "Nobody", "local", false))
	mock.ExpectQuery(`SELECT DISTINCT`).
		WillReturnRows(sqlmock.NewRows([]string{"geography_id", "zip_code", "city", "state", "state_name", "county", "congressional_district", "jurisdiction_level"}).
			AddRow(nil, nil, nil, nil, nil, nil, nil, nil))

	rep, areas, err := store.GetByID(context.Background(), 9)
	require.NoError(t, err)
	assert.False(t, rep.IsActive)
	assert.NotNil(t, areas)
	assert.Empty(t, areas)
}

func TestStore_GetByID_NotFound(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	mock.ExpectQuery(`FROM "representatives" WHERE id = \$1`).WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, _, err := store.GetByID(context.Background(), 4242)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Stats(t *testing.T) {
	gdb, mock := newMockGorm(t)
	store := NewStore(gdb)

	count := func(n int) *sqlmock.Rows { return sqlmock.NewRows([]string{"count"}).AddRow(n) }
	mock.ExpectQuery(`SELECT count\(\*\) FROM "representatives"`).WillReturnRows(count(8))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "representatives" WHERE is_active = \$1`).WillReturnRows(count(7))
	mock.ExpectQuery(`SELECT branch, COUNT\(\*\) AS count FROM "representatives" WHERE is_active = \$1 GROUP BY "?branch"?`).
		WillReturnRows(sqlmock.NewRows([]string{"branch", "count"}).AddRow("federal", 5).AddRow("state", 2))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "geography"`).WillReturnRows(count(3))
	mock.ExpectQuery(`(?i)SELECT COUNT\(DISTINCT.*state.*FROM "geography"`).WillReturnRows(count(3))
	mock.ExpectQuery(`SELECT count\(\*\) FROM "rep_geography_map"`).WillReturnRows(count(9))

	st, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 8, st.TotalRepresentatives)
	assert.EqualValues(t, 7, st.ActiveRepresentatives)
	assert.Equal(t, map[Branch]int64{BranchFederal: 5, BranchState: 2, BranchLocal: 0}, st.ByBranch)
	assert.EqualValues(t, 3, st.ZipCodes)
	assert.EqualValues(t, 3, st.States)
	assert.EqualValues(t, 9, st.Mappings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestContainsPattern(t *testing.T) {
	assert.Equal(t, "%schumer%", containsPattern("schumer"))
	assert.Equal(t, `%100\%\_a\\b%`, containsPattern(`100%_a\b`))
}
