package intake

import (
	"errors"
	"mime"
	"net/http"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jeffbander/leqvio-patient-management-sub002/internal/domain/documents"
	"github.com/jeffbander/leqvio-patient-management-sub002/internal/extraction"
	"github.com/jeffbander/leqvio-patient-management-sub002/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/intake/transcript", h.ProcessTranscript)
	api.POST("/intake/manual", h.ProcessManual)
	api.GET("/intake/records", h.ListRecords)
	api.GET("/intake/records/:id", h.GetRecord)
	api.POST("/intake/records/:id/resolve", h.ResolveRecord)

	// Uploads enter through intake so every document passes the pipeline.
	api.POST("/documents", h.UploadDocument)
}

type transcriptRequest struct {
	Text string `json:"text"`
}

type uploadResponse struct {
	Record   *Record             `json:"record"`
	Document *documents.Document `json:"document"`
}

// ProcessTranscript accepts free text and answers 201 when the identity
// completed or 202 when the record was parked for review.
func (h *Handler) ProcessTranscript(c echo.Context) error {
	var req transcriptRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.ProcessTranscript(c.Request().Context(), req.Text, ChannelTranscript)
	var incomplete *extraction.IncompleteIdentityError
	switch {
	case errors.As(err, &incomplete):
		return c.JSON(http.StatusAccepted, rec)
	case err != nil && rec == nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ProcessManual(c echo.Context) error {
	var form ManualEnrollment
	if err := c.Bind(&form); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.ProcessManual(c.Request().Context(), form)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusCreated, rec)
}

// UploadDocument accepts a multipart file, stores it and runs the pipeline
// on its content. 201/202 mirror the transcript endpoint; a provider outage
// answers 502 with the failed record already persisted.
func (h *Handler) UploadDocument(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to open uploaded file")
	}
	defer src.Close()

	contentType := fh.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		if byExt := mime.TypeByExtension(filepath.Ext(fh.Filename)); byExt != "" {
			contentType = byExt
		}
	}
	// Strip parameters such as "; charset=utf-8".
	if mt, _, perr := mime.ParseMediaType(contentType); perr == nil {
		contentType = mt
	}

	rec, doc, err := h.svc.ProcessDocument(c.Request().Context(), DocumentUpload{
		FileName:    fh.Filename,
		ContentType: contentType,
		Source:      documents.SourceUpload,
		Content:     src,
	})
	var incomplete *extraction.IncompleteIdentityError
	switch {
	case errors.As(err, &incomplete):
		return c.JSON(http.StatusAccepted, uploadResponse{Record: rec, Document: doc})
	case err != nil && rec == nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusCreated, uploadResponse{Record: rec, Document: doc})
}

func (h *Handler) ListRecords(c echo.Context) error {
	ctx := c.Request().Context()

	if sourceID := c.QueryParam("source_id"); sourceID != "" {
		items, err := h.svc.ListRecordsBySourceID(ctx, sourceID)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, pagination.NewResponse(items, len(items), len(items), 0))
	}

	pg := pagination.FromContext(c)
	items, total, err := h.svc.ListRecords(ctx, pg.Limit, pg.Offset,
		c.QueryParam("channel"), c.QueryParam("status"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rec, err := h.svc.GetRecord(c.Request().Context(), id)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	}
	return c.JSON(http.StatusOK, rec)
}

// ResolveRecord completes a needs_review record with operator-supplied
// fields. 409 when the record is not reviewable, 422 when the identity is
// still incomplete after the merge.
func (h *Handler) ResolveRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var fields ResolveFields
	if err := c.Bind(&fields); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	rec, err := h.svc.ResolveRecord(c.Request().Context(), id, fields)
	var incomplete *extraction.IncompleteIdentityError
	switch {
	case errors.Is(err, ErrNotReviewable):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.As(err, &incomplete):
		return c.JSON(http.StatusUnprocessableEntity, rec)
	case err != nil && rec == nil:
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case err != nil:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, rec)
}
