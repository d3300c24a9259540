package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/desain-gratis/sitehost/repository/site"
	"github.com/desain-gratis/sitehost/types/entity"
	types "github.com/desain-gratis/sitehost/types/http"
)

var _ site.Repository = &handler{}

type handler struct {
	db        *sqlx.DB
	tableName string
}

func New(db *sqlx.DB, tableName string) *handler {
	return &handler{
		db:        db,
		tableName: tableName,
	}
}

// Schema returns the DDL for the manifest table. The primary key on
// site_name is what makes CreateIfAbsent atomic across server instances.
func Schema(tableName string) string {
	return `CREATE TABLE IF NOT EXISTS ` + tableName + ` (
	site_name TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	files JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS ` + tableName + `_owner_idx ON ` + tableName + ` (owner_id);`
}

func (h *handler) CreateIfAbsent(ctx context.Context, data entity.Site) (*entity.Site, *types.CommonError) {
	payload, errMarshal := json.Marshal(data.Files)
	if errMarshal != nil {
		return nil, internalError("Failed to encode file records")
	}

	now := time.Now()
	if data.CreatedAt == (time.Time{}) {
		data.CreatedAt = now
	}
	data.UpdatedAt = now

	q := `INSERT INTO ` + h.tableName + ` (site_name, owner_id, files, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (site_name) DO NOTHING`

	result, errExec := h.db.ExecContext(ctx, q, data.SiteName, data.Owner, payload, data.CreatedAt, data.UpdatedAt)
	if errExec != nil {
		log.Err(errExec).Msgf("Insert manifest query failed")
		return nil, internalError("Insert query failed")
	}

	affected, errRows := result.RowsAffected()
	if errRows != nil {
		log.Err(errRows).Msgf("Cannot read rows affected")
		return nil, internalError("Insert query failed")
	}

	if affected == 0 {
		// another deployment holds this name
		return nil, &types.CommonError{
			Errors: []types.Error{
				{HTTPCode: http.StatusBadRequest, Code: "NAME_CONFLICT", Message: "Site '" + data.SiteName + "' already exists."},
			},
		}
	}

	return &data, nil
}

func (h *handler) GetByName(ctx context.Context, siteName string) (*entity.Site, *types.CommonError) {
	q := `SELECT site_name, owner_id, files, created_at, updated_at FROM ` + h.tableName + ` WHERE site_name = $1`

	row := h.db.QueryRowContext(ctx, q, siteName)

	result, err := scanSite(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, notFound()
		}
		log.Err(err).Msgf("Failed to scan manifest row for '%v'", siteName)
		return nil, internalError("Get query failed")
	}

	return result, nil
}

func (h *handler) ListByOwner(ctx context.Context, owner string) ([]entity.Site, *types.CommonError) {
	q := `SELECT site_name, owner_id, files, created_at, updated_at FROM ` + h.tableName + ` WHERE owner_id = $1 ORDER BY site_name`

	rows, errQuery := h.db.QueryContext(ctx, q, owner)
	if errQuery != nil {
		log.Err(errQuery).Msgf("List manifest query failed")
		return nil, internalError("List query failed")
	}
	defer rows.Close()

	result := make([]entity.Site, 0)
	for rows.Next() {
		s, err := scanSite(rows)
		if err != nil {
			log.Err(err).Msgf("Failed scan row")
			continue
		}
		result = append(result, *s)
	}

	return result, nil
}

func (h *handler) DeleteByNameAndOwner(ctx context.Context, siteName, owner string) (*entity.Site, *types.CommonError) {
	q := `DELETE FROM ` + h.tableName + ` WHERE site_name = $1 AND owner_id = $2
		RETURNING site_name, owner_id, files, created_at, updated_at`

	row := h.db.QueryRowContext(ctx, q, siteName, owner)

	result, err := scanSite(row)
	if err == nil {
		return result, nil
	}
	if err != sql.ErrNoRows {
		log.Err(err).Msgf("Delete manifest query failed for '%v'", siteName)
		return nil, internalError("Delete query failed")
	}

	// nothing deleted: distinguish absent from owned-by-someone-else
	var foreignOwner string
	errOwner := h.db.QueryRowContext(ctx, `SELECT owner_id FROM `+h.tableName+` WHERE site_name = $1`, siteName).Scan(&foreignOwner)
	if errOwner == sql.ErrNoRows {
		return nil, notFound()
	}
	if errOwner != nil {
		log.Err(errOwner).Msgf("Owner lookup failed for '%v'", siteName)
		return nil, internalError("Delete query failed")
	}

	return nil, &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusNotFound, Code: "FORBIDDEN", Message: "Site not found or you don't have permission."},
		},
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSite(row rowScanner) (*entity.Site, error) {
	var result entity.Site
	var files []byte

	err := row.Scan(&result.SiteName, &result.Owner, &files, &result.CreatedAt, &result.UpdatedAt)
	if err != nil {
		return nil, err
	}

	err = json.Unmarshal(files, &result.Files)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func internalError(message string) *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusInternalServerError, Code: "INTERNAL_SERVER_ERROR", Message: message},
		},
	}
}

func notFound() *types.CommonError {
	return &types.CommonError{
		Errors: []types.Error{
			{HTTPCode: http.StatusNotFound, Code: "NOT_FOUND", Message: "Site not found."},
		},
	}
}
