package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clientreports/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticVectors bool

func (s staticVectors) IsVectorSearchAvailable(context.Context) bool { return bool(s) }

func getJSON(t *testing.T, h echo.HandlerFunc, target string, out any) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	require.NoError(t, h(echo.New().NewContext(req, rec)))
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	return rec.Code
}

func TestHealthAndRootHandlers(t *testing.T) {
	var health models.HealthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, HealthHandler("1.4.0"), "/healthz", &health))
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "1.4.0", health.Version)
	assert.WithinDuration(t, time.Now().UTC(), health.Timestamp, 5*time.Second)

	var root map[string]string
	assert.Equal(t, http.StatusOK, getJSON(t, RootHandler("1.4.0"), "/", &root))
	assert.Equal(t, map[string]string{"service": "Client Reports API", "version": "1.4.0", "status": "running"}, root)
}

func TestDBHealthHandler_NilDatabase(t *testing.T) {
	var resp models.DBHealthResponse
	code := getJSON(t, DBHealthHandler(nil, staticVectors(true)), "/healthz/db", &resp)

	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", resp.Status)
	assert.Equal(t, "Database connection not initialized", resp.Error)
	assert.False(t, resp.VectorAvailable)
}

func TestDBHealthHandler_Ping(t *testing.T) {
	pingOK := func(mock sqlmock.Sqlmock) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))
		mock.ExpectRollback()
	}

	tests := []struct {
		name      string
		expect    func(mock sqlmock.Sqlmock)
		vectors   VectorChecker
		code      int
		connected bool
		vector    bool
		errPart   string
	}{
		{name: "up with pgvector", expect: pingOK, vectors: staticVectors(true), code: http.StatusOK, connected: true, vector: true},
		{name: "up without pgvector", expect: pingOK, vectors: staticVectors(false), code: http.StatusOK, connected: true},
		{name: "up with no vector checker", expect: pingOK, code: http.StatusOK, connected: true},
		{
			name: "begin fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(sql.ErrConnDone)
			},
			vectors: staticVectors(true),
			code:    http.StatusServiceUnavailable,
			errPart: "failed to begin read-only transaction",
		},
		{
			name: "select fails",
			expect: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectQuery("SELECT 1").WillReturnError(errors.New("relation lock timeout"))
				mock.ExpectRollback()
			},
			vectors: staticVectors(true),
			code:    http.StatusServiceUnavailable,
			errPart: "failed to execute read-only ping query",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockDB, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer func() { _ = mockDB.Close() }()
			tt.expect(mock)

			var resp models.DBHealthResponse
			code := getJSON(t, DBHealthHandler(sqlx.NewDb(mockDB, "sqlmock"), tt.vectors), "/healthz/db", &resp)

			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.connected, resp.Connected)
			assert.Equal(t, tt.vector, resp.VectorAvailable)
			if tt.errPart == "" {
				assert.Equal(t, "healthy", resp.Status)
				assert.Empty(t, resp.Error)
			} else {
				assert.Equal(t, "unhealthy", resp.Status)
				assert.Contains(t, resp.Error, "Database read-only query failed")
				assert.Contains(t, resp.Error, tt.errPart)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
