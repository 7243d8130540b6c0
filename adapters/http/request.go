package exporthttp

import (
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goliatone/go-pagepdf/export"
)

// exportPayload is the JSON body of POST /api/exports/pdf. Exactly one of URL
// or HTML names the page hosting the region.
type exportPayload struct {
	URL          string `json:"url" validate:"omitempty,url"`
	HTML         string `json:"html" validate:"required_without=URL,excluded_with=URL"`
	BaseURL      string `json:"base_url" validate:"omitempty,url"`
	RegionID     string `json:"region_id" validate:"required,max=256"`
	FileBaseName string `json:"file_base_name" validate:"required,max=200"`
	Title        string `json:"title" validate:"max=500"`
}

func (p exportPayload) toRequest() export.ExportRequest {
	return export.ExportRequest{
		RegionID:     strings.TrimSpace(p.RegionID),
		FileBaseName: strings.TrimSpace(p.FileBaseName),
		Title:        p.Title,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func validatePayload(v *validator.Validate, payload exportPayload) error {
	if err := v.Struct(payload); err != nil {
		return export.NewError(export.KindValidation, validationMessage(err), err)
	}
	if strings.ContainsAny(payload.FileBaseName, `/\"`) {
		return export.NewError(export.KindValidation, "file_base_name: must not contain path separators or quotes", nil)
	}
	return nil
}

func validationMessage(err error) string {
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrors) == 0 {
		return "invalid request"
	}
	parts := make([]string, 0, len(fieldErrors))
	for _, fe := range fieldErrors {
		parts = append(parts, fe.Field()+": "+fieldMessage(fe))
	}
	return strings.Join(parts, "; ")
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "required_without":
		return "is required when " + strings.ToLower(fe.Param()) + " is empty"
	case "excluded_with":
		return "cannot be combined with " + strings.ToLower(fe.Param())
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "url":
		return "invalid URL"
	default:
		return "invalid value"
	}
}

type queryReader interface {
	Query(key string, defaultValue ...string) string
}

func parseFilter(q queryReader) (export.ProgressFilter, error) {
	filter := export.ProgressFilter{
		Region: q.Query("region"),
		State:  export.ExportState(q.Query("state")),
	}
	switch filter.State {
	case "", export.StateRunning, export.StateCompleted, export.StateFailed:
	default:
		return export.ProgressFilter{}, export.NewError(export.KindValidation, "invalid state filter", nil)
	}
	if since := q.Query("since"); since != "" {
		ts, err := time.Parse(time.RFC3339, since)
		if err != nil {
			return export.ProgressFilter{}, export.NewError(export.KindValidation, "invalid since timestamp", err)
		}
		filter.Since = ts
	}
	if until := q.Query("until"); until != "" {
		ts, err := time.Parse(time.RFC3339, until)
		if err != nil {
			return export.ProgressFilter{}, export.NewError(export.KindValidation, "invalid until timestamp", err)
		}
		filter.Until = ts
	}
	if limit := q.Query("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return export.ProgressFilter{}, export.NewError(export.KindValidation, "invalid limit", err)
		}
		filter.Limit = n
	}
	return filter, nil
}
