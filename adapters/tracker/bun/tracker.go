package trackerbun

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goliatone/go-pagepdf/export"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Tracker stores export history in a Bun-backed database.
type Tracker struct {
	DB          *bun.DB
	Now         func() time.Time
	IDGenerator func() string
}

var _ export.Tracker = (*Tracker)(nil)

// NewTracker creates a Bun-backed tracker.
func NewTracker(db *bun.DB) *Tracker {
	return &Tracker{DB: db, Now: time.Now, IDGenerator: uuid.NewString}
}

// Migrate creates the export_records table when it does not exist.
func (t *Tracker) Migrate(ctx context.Context) error {
	if err := t.check(); err != nil {
		return err
	}
	_, err := t.DB.NewCreateTable().Model((*recordModel)(nil)).IfNotExists().Exec(ctx)
	return err
}

// Start inserts a running export record.
func (t *Tracker) Start(ctx context.Context, record export.ExportRecord) (string, error) {
	if err := t.check(); err != nil {
		return "", err
	}
	if record.ID == "" {
		record.ID = t.nextID()
	}
	if record.State == "" {
		record.State = export.StateRunning
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = t.now()
	}

	model, err := modelFromRecord(record)
	if err != nil {
		return "", err
	}
	if _, err := t.DB.NewInsert().Model(&model).Exec(ctx); err != nil {
		return "", err
	}
	return record.ID, nil
}

// Complete stores the result of a finished export.
func (t *Tracker) Complete(ctx context.Context, id string, result export.Result) error {
	if err := t.check(); err != nil {
		return err
	}
	if id == "" {
		return export.NewError(export.KindValidation, "export ID is required", nil)
	}

	meta, err := json.Marshal(result.Artifact.Meta)
	if err != nil {
		return err
	}
	res, err := t.DB.NewUpdate().Model((*recordModel)(nil)).
		Set("state = ?", string(export.StateCompleted)).
		Set("filename = ?", result.Filename).
		Set("pages = ?", result.Pages).
		Set("bytes = ?", result.Bytes).
		Set("artifact_key = ?", result.Artifact.Key).
		Set("artifact_meta = ?", meta).
		Set("completed_at = ?", t.now()).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, id)
}

// Fail marks the export as failed and keeps the error message.
func (t *Tracker) Fail(ctx context.Context, id string, cause error) error {
	if err := t.check(); err != nil {
		return err
	}
	if id == "" {
		return export.NewError(export.KindValidation, "export ID is required", nil)
	}

	message := ""
	if cause != nil {
		message = cause.Error()
	}
	res, err := t.DB.NewUpdate().Model((*recordModel)(nil)).
		Set("state = ?", string(export.StateFailed)).
		Set("error = ?", message).
		Set("completed_at = ?", t.now()).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err, id)
}

// Status returns a record by ID.
func (t *Tracker) Status(ctx context.Context, id string) (export.ExportRecord, error) {
	if err := t.check(); err != nil {
		return export.ExportRecord{}, err
	}
	if id == "" {
		return export.ExportRecord{}, export.NewError(export.KindValidation, "export ID is required", nil)
	}

	model := new(recordModel)
	err := t.DB.NewSelect().Model(model).Where("id = ?", id).Limit(1).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return export.ExportRecord{}, export.NewError(export.KindNotFound, fmt.Sprintf("export %q not found", id), nil)
		}
		return export.ExportRecord{}, err
	}
	return model.toRecord()
}

// List returns records matching a filter, newest first.
func (t *Tracker) List(ctx context.Context, filter export.ProgressFilter) ([]export.ExportRecord, error) {
	if err := t.check(); err != nil {
		return nil, err
	}

	models := make([]recordModel, 0)
	query := t.DB.NewSelect().Model(&models)
	if filter.Region != "" {
		query = query.Where("region_id = ?", filter.Region)
	}
	if filter.State != "" {
		query = query.Where("state = ?", string(filter.State))
	}
	if !filter.Since.IsZero() {
		query = query.Where("created_at >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		query = query.Where("created_at <= ?", filter.Until)
	}
	query = query.Order("created_at DESC")
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	if err := query.Scan(ctx); err != nil {
		return nil, err
	}

	records := make([]export.ExportRecord, 0, len(models))
	for _, model := range models {
		record, err := model.toRecord()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

// Delete removes a record from the history.
func (t *Tracker) Delete(ctx context.Context, id string) error {
	if err := t.check(); err != nil {
		return err
	}
	if id == "" {
		return export.NewError(export.KindValidation, "export ID is required", nil)
	}
	res, err := t.DB.NewDelete().Model((*recordModel)(nil)).Where("id = ?", id).Exec(ctx)
	return affectedOne(res, err, id)
}

type recordModel struct {
	bun.BaseModel `bun:"table:export_records,alias:export_records"`

	ID           string    `bun:",pk"`
	RegionID     string    `bun:"region_id,notnull"`
	Title        string    `bun:"title"`
	Filename     string    `bun:"filename"`
	State        string    `bun:"state,notnull"`
	Pages        int       `bun:"pages"`
	Bytes        int64     `bun:"bytes"`
	ArtifactKey  string    `bun:"artifact_key"`
	ArtifactMeta []byte    `bun:"artifact_meta"`
	Error        string    `bun:"error"`
	CreatedAt    time.Time `bun:"created_at"`
	CompletedAt  time.Time `bun:"completed_at,nullzero"`
}

func modelFromRecord(record export.ExportRecord) (recordModel, error) {
	meta, err := json.Marshal(record.Artifact.Meta)
	if err != nil {
		return recordModel{}, err
	}
	return recordModel{
		ID:           record.ID,
		RegionID:     record.RegionID,
		Title:        record.Title,
		Filename:     record.Filename,
		State:        string(record.State),
		Pages:        record.Pages,
		Bytes:        record.Bytes,
		ArtifactKey:  record.Artifact.Key,
		ArtifactMeta: meta,
		Error:        record.Error,
		CreatedAt:    record.CreatedAt.UTC(),
		CompletedAt:  record.CompletedAt.UTC(),
	}, nil
}

func (m recordModel) toRecord() (export.ExportRecord, error) {
	record := export.ExportRecord{
		ID:          m.ID,
		RegionID:    m.RegionID,
		Title:       m.Title,
		Filename:    m.Filename,
		State:       export.ExportState(m.State),
		Pages:       m.Pages,
		Bytes:       m.Bytes,
		Artifact:    export.ArtifactRef{Key: m.ArtifactKey},
		Error:       m.Error,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
	}
	if len(m.ArtifactMeta) > 0 {
		if err := json.Unmarshal(m.ArtifactMeta, &record.Artifact.Meta); err != nil {
			return export.ExportRecord{}, err
		}
	}
	return record, nil
}

func affectedOne(res sql.Result, err error, id string) error {
	if err != nil {
		return err
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return export.NewError(export.KindNotFound, fmt.Sprintf("export %q not found", id), nil)
	}
	return nil
}

func (t *Tracker) check() error {
	if t == nil || t.DB == nil {
		return export.NewError(export.KindNotImpl, "tracker database not configured", nil)
	}
	return nil
}

func (t *Tracker) now() time.Time {
	if t.Now != nil {
		return t.Now().UTC()
	}
	return time.Now().UTC()
}

func (t *Tracker) nextID() string {
	if t.IDGenerator != nil {
		return t.IDGenerator()
	}
	return uuid.NewString()
}
