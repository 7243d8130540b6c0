package exporthttp

import (
	"net/http"
	"time"

	errorslib "github.com/goliatone/go-errors"
	"github.com/goliatone/go-pagepdf/export"
	"github.com/goliatone/go-router"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type recordResponse struct {
	ID          string               `json:"id"`
	RegionID    string               `json:"region_id"`
	Title       string               `json:"title,omitempty"`
	Filename    string               `json:"filename,omitempty"`
	State       export.ExportState   `json:"state"`
	Pages       int                  `json:"pages"`
	Bytes       int64                `json:"bytes"`
	ArtifactKey string               `json:"artifact_key,omitempty"`
	Artifact    *export.ArtifactMeta `json:"artifact,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"created_at"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	DownloadURL string               `json:"download_url,omitempty"`
}

type listResponse struct {
	Exports []recordResponse `json:"exports"`
}

func toRecordResponse(record export.ExportRecord, downloadURL string) recordResponse {
	resp := recordResponse{
		ID:          record.ID,
		RegionID:    record.RegionID,
		Title:       record.Title,
		Filename:    record.Filename,
		State:       record.State,
		Pages:       record.Pages,
		Bytes:       record.Bytes,
		ArtifactKey: record.Artifact.Key,
		Error:       record.Error,
		CreatedAt:   record.CreatedAt,
	}
	if record.Artifact.Key != "" {
		meta := record.Artifact.Meta
		resp.Artifact = &meta
		resp.DownloadURL = downloadURL
	}
	if !record.CompletedAt.IsZero() {
		completed := record.CompletedAt
		resp.CompletedAt = &completed
	}
	return resp
}

func writeError(c router.Context, err error) error {
	ge := export.AsGoError(err)
	return c.JSON(statusForError(ge), errorResponse{
		Error: errorBody{
			Message: ge.Message,
			Code:    ge.TextCode,
		},
	})
}

func statusForError(err *errorslib.Error) int {
	if err == nil {
		return http.StatusInternalServerError
	}
	if err.TextCode == "not_implemented" {
		return http.StatusNotImplemented
	}
	switch err.Category {
	case errorslib.CategoryValidation:
		return http.StatusBadRequest
	case errorslib.CategoryNotFound:
		if err.TextCode == "region_not_found" {
			return http.StatusUnprocessableEntity
		}
		return http.StatusNotFound
	case errorslib.CategoryOperation:
		if err.TextCode == "canceled" {
			return http.StatusConflict
		}
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}
