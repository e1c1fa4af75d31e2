package db

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"fmt"

	"debtor-import/internal/mapping"
	"debtor-import/internal/model"
	"debtor-import/pkg/errors"
)

type Repository interface {
	TemplateRepository
	CreateFile(ctx context.Context, file *model.ImportFile) (int64, error)
	GetFile(ctx context.Context, fileID int64) (*model.ImportFile, error)
	UpdateFileStatus(ctx context.Context, fileID int64, status model.FileStatus, errorMessage *string) error
	UpdateFileCounts(ctx context.Context, fileID int64, total, accepted, rejected int) error
	InsertRows(ctx context.Context, fileID int64, rows []model.StagedRow) error
	DeleteRows(ctx context.Context, fileID int64) error
	GetImportStatus(ctx context.Context, fileID int64, rejectedLimit int) (*model.StatusResponse, error)
}

// TemplateRepository owns mapping template CRUD. Ingestion only reads.
type TemplateRepository interface {
	CreateTemplate(ctx context.Context, tpl *mapping.Template) (int64, error)
	UpdateTemplate(ctx context.Context, tpl *mapping.Template) error
	GetTemplate(ctx context.Context, id int64) (*mapping.Template, error)
	GetTemplateByName(ctx context.Context, name string) (*mapping.Template, error)
}

type repository struct {
	db      *sql.DB
	dialect Dialect
}

func NewRepository(db *sql.DB, dialect Dialect) Repository {
	return &repository{db: db, dialect: dialect}
}

func (r *repository) CreateTemplate(ctx context.Context, tpl *mapping.Template) (int64, error) {
	headers, fields, err := encodeTemplate(tpl)
	if err != nil {
		return 0, err
	}

	query := `INSERT INTO mapping_templates (name, headers, mapping, created_by, updated_by, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, NOW(), NOW())`

	id, err := r.insert(ctx, r.db, query, tpl.Name, headers, fields, tpl.CreatedBy, tpl.CreatedBy)
	if IsUniqueViolation(err) {
		return 0, fmt.Errorf("%w: %s", errors.ErrDuplicateTemplate, tpl.Name)
	}
	return id, err
}

func (r *repository) UpdateTemplate(ctx context.Context, tpl *mapping.Template) error {
	headers, fields, err := encodeTemplate(tpl)
	if err != nil {
		return err
	}

	query := `UPDATE mapping_templates SET name = ?, headers = ?, mapping = ?, updated_by = ?, updated_at = NOW()
			  WHERE id = ?`

	res, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), tpl.Name, headers, fields, tpl.UpdatedBy, tpl.ID)
	if IsUniqueViolation(err) {
		return fmt.Errorf("%w: %s", errors.ErrDuplicateTemplate, tpl.Name)
	}
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.ErrTemplateNotFound
	}
	return nil
}

func (r *repository) GetTemplate(ctx context.Context, id int64) (*mapping.Template, error) {
	query := `SELECT id, name, headers, mapping, created_by, updated_by, created_at, updated_at
			  FROM mapping_templates WHERE id = ?`
	return r.scanTemplate(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), id))
}

func (r *repository) GetTemplateByName(ctx context.Context, name string) (*mapping.Template, error) {
	query := `SELECT id, name, headers, mapping, created_by, updated_by, created_at, updated_at
			  FROM mapping_templates WHERE name = ?`
	return r.scanTemplate(r.db.QueryRowContext(ctx, r.dialect.Rebind(query), name))
}

func (r *repository) scanTemplate(row *sql.Row) (*mapping.Template, error) {
	var (
		tpl            mapping.Template
		headers, field []byte
	)
	err := row.Scan(&tpl.ID, &tpl.Name, &headers, &field,
		&tpl.CreatedBy, &tpl.UpdatedBy, &tpl.CreatedAt, &tpl.UpdatedAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrTemplateNotFound
	}
	if err != nil {
		return nil, err
	}

	if len(headers) > 0 {
		if err := json.Unmarshal(headers, &tpl.Headers); err != nil {
			return nil, fmt.Errorf("template %d: corrupt headers: %w", tpl.ID, err)
		}
	}
	if err := json.Unmarshal(field, &tpl.Mapping); err != nil {
		return nil, fmt.Errorf("template %d: corrupt mapping: %w", tpl.ID, err)
	}
	return &tpl, nil
}

func (r *repository) CreateFile(ctx context.Context, file *model.ImportFile) (int64, error) {
	query := `INSERT INTO import_files (template_id, s3_path, original_name, strategy, status, uploaded_by, created_at, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?, NOW(), NOW())`
	return r.insert(ctx, r.db, query, file.TemplateID, file.S3Path, file.OriginalName,
		file.Strategy, file.Status, file.UploadedBy)
}

func (r *repository) GetFile(ctx context.Context, fileID int64) (*model.ImportFile, error) {
	query := `SELECT id, template_id, s3_path, original_name, strategy, status, total_rows, accepted_rows,
			  rejected_rows, error_message, uploaded_by, created_at, updated_at
			  FROM import_files WHERE id = ?`

	var file model.ImportFile
	err := r.db.QueryRowContext(ctx, r.dialect.Rebind(query), fileID).Scan(
		&file.ID, &file.TemplateID, &file.S3Path, &file.OriginalName, &file.Strategy,
		&file.Status, &file.TotalRows, &file.AcceptedRows, &file.RejectedRows,
		&file.ErrorMessage, &file.UploadedBy, &file.CreatedAt, &file.UpdatedAt,
	)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}

	return &file, nil
}

func (r *repository) UpdateFileStatus(ctx context.Context, fileID int64, status model.FileStatus, errorMessage *string) error {
	query := `UPDATE import_files SET status = ?, error_message = ?, updated_at = NOW() WHERE id = ?`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), status, errorMessage, fileID)
	return err
}

func (r *repository) UpdateFileCounts(ctx context.Context, fileID int64, total, accepted, rejected int) error {
	query := `UPDATE import_files SET total_rows = ?, accepted_rows = ?, rejected_rows = ?, updated_at = NOW()
			  WHERE id = ?`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), total, accepted, rejected, fileID)
	return err
}

func (r *repository) InsertRows(ctx context.Context, fileID int64, rows []model.StagedRow) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := r.dialect.Rebind(`INSERT INTO import_rows (file_id, line_number, status, record, errors, created_at)
			  VALUES (?, ?, ?, ?, ?, NOW())`)

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx, fileID, row.LineNumber, row.Status,
			nullableJSON(row.Record), nullableJSON(row.Errors))
		if err != nil {
			return fmt.Errorf("line %d: %w", row.LineNumber, err)
		}
	}

	return tx.Commit()
}

// DeleteRows drops every staged row of a file, e.g. after a partial import.
func (r *repository) DeleteRows(ctx context.Context, fileID int64) error {
	query := `DELETE FROM import_rows WHERE file_id = ?`
	_, err := r.db.ExecContext(ctx, r.dialect.Rebind(query), fileID)
	return err
}

func (r *repository) GetImportStatus(ctx context.Context, fileID int64, rejectedLimit int) (*model.StatusResponse, error) {
	file, err := r.GetFile(ctx, fileID)
	if err != nil {
		return nil, err
	}

	response := &model.StatusResponse{
		FileID:       file.ID,
		Status:       file.Status,
		TotalRows:    file.TotalRows,
		AcceptedRows: file.AcceptedRows,
		RejectedRows: file.RejectedRows,
		ErrorMessage: file.ErrorMessage,
		UpdatedAt:    file.UpdatedAt,
	}

	if rejectedLimit <= 0 {
		return response, nil
	}

	query := `SELECT line_number, errors FROM import_rows
			  WHERE file_id = ? AND status = ?
			  ORDER BY line_number LIMIT ?`

	rows, err := r.db.QueryContext(ctx, r.dialect.Rebind(query), fileID, model.RowStatusRejected, rejectedLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			view model.RejectedRowView
			raw  []byte
		)
		if err := rows.Scan(&view.LineNumber, &raw); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &view.Errors); err != nil {
			return nil, fmt.Errorf("line %d: corrupt report: %w", view.LineNumber, err)
		}
		response.Rejected = append(response.Rejected, view)
	}

	return response, rows.Err()
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// insert runs an INSERT and returns the new id. lib/pq has no LastInsertId,
// so Postgres uses RETURNING.
func (r *repository) insert(ctx context.Context, q execQuerier, query string, args ...any) (int64, error) {
	if r.dialect == Postgres {
		var id int64
		err := q.QueryRowContext(ctx, r.dialect.Rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}

	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func encodeTemplate(tpl *mapping.Template) ([]byte, []byte, error) {
	headers, err := json.Marshal(tpl.Headers)
	if err != nil {
		return nil, nil, err
	}
	fields, err := json.Marshal(tpl.Mapping)
	if err != nil {
		return nil, nil, err
	}
	return headers, fields, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return []byte(raw)
}
