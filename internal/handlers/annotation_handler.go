package handlers

import (
	"context"
	"encoding/base64"
	"io"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"caption-service/internal/logger"
	"caption-service/internal/services"
	"caption-service/pkg/overlay"
)

const (
	HeaderUserID   = "X-User-Id"
	HeaderUserRole = "X-User-Role"

	ProcessingFailedMessage = "could not process image"
	RetrievalFailedMessage  = "could not retrieve image"
)

// AnnotationService is the service surface the HTTP layer needs.
type AnnotationService interface {
	ProcessUpload(ctx context.Context, image []byte, ownerID, role string) (*services.RecordView, error)
	GetRecord(ctx context.Context, id, requesterID string) (*services.RecordView, error)
	ListRecords(ctx context.Context, ownerID, requesterID string) ([]services.RecordSummary, error)
	GetChallenge(ctx context.Context, id, requesterID string) (*services.ChallengeView, error)
	Overlay(ctx context.Context, id, requesterID string, natural, onScreen overlay.Size) ([]services.OverlayBox, error)
	ToggleBookmark(ctx context.Context, id, requesterID string) (bool, error)
	MarkChallengeComplete(ctx context.Context, id, requesterID string) error
	SoftDelete(ctx context.Context, id, requesterID string) error
	ExplainSelection(ctx context.Context, caption, selected string) (string, error)
	CanUpload(ctx context.Context, userID string) (bool, error)
	DailyUploadCounts(ctx context.Context, requesterID, userID string, start, end time.Time) (map[string]int, error)
}

// AnnotationHandler serves the captioning API.
type AnnotationHandler struct {
	Service        AnnotationService
	MaxUploadBytes int64
	Location       *time.Location
	log            *logger.Logger
}

func NewAnnotationHandler(service AnnotationService, maxUploadBytes int64, loc *time.Location, log *logger.Logger) *AnnotationHandler {
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &AnnotationHandler{
		Service:        service,
		MaxUploadBytes: maxUploadBytes,
		Location:       loc,
		log:            log.With("service", "AnnotationHandler"),
	}
}

// Register mounts every route on router.
func (h *AnnotationHandler) Register(router fiber.Router) {
	router.Post("/completions", h.CreateCompletion)
	router.Post("/explain", h.Explain)
	router.Get("/can-upload", h.CanUpload)
	router.Get("/statistics/daily", h.DailyStatistics)
	router.Get("/", h.ListRecords)
	router.Get("/:id", h.GetRecord)
	router.Get("/:id/overlay", h.GetOverlay)
	router.Get("/:id/challenge", h.GetChallenge)
	router.Post("/:id/challenge/complete", h.CompleteChallenge)
	router.Post("/:id/bookmark", h.ToggleBookmark)
	router.Delete("/:id", h.DeleteRecord)
}

type uploadRequest struct {
	Image string `json:"image"`
}

type explainRequest struct {
	Caption  string `json:"caption"`
	Selected string `json:"selected"`
}

func userID(c *fiber.Ctx) string {
	return strings.TrimSpace(c.Get(HeaderUserID))
}

func userRole(c *fiber.Ctx) string {
	return strings.ToLower(strings.TrimSpace(c.Get(HeaderUserRole)))
}

// fail maps a service error to a status code. Only input errors carry
// their own message; everything unexpected becomes the generic message.
func (h *AnnotationHandler) fail(c *fiber.Ctx, err error, generic string) error {
	status, message := fiber.StatusInternalServerError, generic
	switch {
	case errors.Is(err, services.ErrInvalidInput):
		status, message = fiber.StatusBadRequest, err.Error()
	case errors.Is(err, services.ErrUnauthenticated):
		status, message = fiber.StatusUnauthorized, "authentication required"
	case errors.Is(err, services.ErrPermissionDenied):
		status, message = fiber.StatusForbidden, "permission denied"
	case errors.Is(err, services.ErrNotFound):
		status, message = fiber.StatusNotFound, "record not found"
	case errors.Is(err, services.ErrNoChallenge):
		status, message = fiber.StatusConflict, "record has no challenge"
	default:
		h.log.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
	}
	return c.Status(status).JSON(fiber.Map{"error": true, "message": message})
}

// readUpload accepts either a multipart "file" field or a JSON body with a
// base64 "image" field.
func (h *AnnotationHandler) readUpload(c *fiber.Ctx) ([]byte, error) {
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, errors.Wrap(services.ErrInvalidInput, "file is required")
		}
		if h.MaxUploadBytes > 0 && fh.Size > h.MaxUploadBytes {
			return nil, errors.Wrap(services.ErrInvalidInput, "file too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, errors.Wrap(err, "open upload")
		}
		defer f.Close()
		return io.ReadAll(f)
	}

	var req uploadRequest
	if err := c.BodyParser(&req); err != nil {
		return nil, errors.Wrap(services.ErrInvalidInput, "malformed request body")
	}
	encoded := strings.TrimSpace(req.Image)
	if i := strings.Index(encoded, ";base64,"); i >= 0 && strings.HasPrefix(encoded, "data:") {
		encoded = encoded[i+len(";base64,"):]
	}
	if encoded == "" {
		return nil, errors.Wrap(services.ErrInvalidInput, "image is required")
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, errors.Wrap(services.ErrInvalidInput, "image is not valid base64")
	}
	if h.MaxUploadBytes > 0 && int64(len(data)) > h.MaxUploadBytes {
		return nil, errors.Wrap(services.ErrInvalidInput, "file too large")
	}
	return data, nil
}

// CreateCompletion handles POST /completions.
// @Summary Caption an image
// @Description Runs the full pipeline on one image: object analysis, bounding boxes, tiered narrative caption and speech.
// @Tags images
// @Accept json,mpfd
// @Produce json
// @Param X-User-Id header string true "Uploading account"
// @Param X-User-Role header string false "Account role (child or adult)"
// @Param file formData file false "Image file"
// @Success 201 {object} services.RecordView
// @Failure 400 {object} map[string]interface{} "Invalid input"
// @Failure 401 {object} map[string]interface{} "Missing identity"
// @Failure 403 {object} map[string]interface{} "Upload disabled"
// @Failure 500 {object} map[string]interface{} "Processing failed"
// @Router /completions [post]
func (h *AnnotationHandler) CreateCompletion(c *fiber.Ctx) error {
	owner := userID(c)
	if owner == "" {
		return h.fail(c, services.ErrUnauthenticated, ProcessingFailedMessage)
	}
	image, err := h.readUpload(c)
	if err != nil {
		return h.fail(c, err, ProcessingFailedMessage)
	}
	h.log.Info("upload received", "owner_id", owner, "bytes", len(image), "ip", c.IP())

	view, err := h.Service.ProcessUpload(c.UserContext(), image, owner, userRole(c))
	if err != nil {
		return h.fail(c, err, ProcessingFailedMessage)
	}
	return c.Status(fiber.StatusCreated).JSON(view)
}

// Explain handles POST /explain.
// @Summary Explain part of a caption
// @Tags images
// @Accept json
// @Produce json
// @Param body body explainRequest true "Caption and selection"
// @Success 200 {object} map[string]string
// @Failure 400 {object} map[string]interface{} "Invalid input"
// @Failure 500 {object} map[string]interface{} "Generation failed"
// @Router /explain [post]
func (h *AnnotationHandler) Explain(c *fiber.Ctx) error {
	if userID(c) == "" {
		return h.fail(c, services.ErrUnauthenticated, ProcessingFailedMessage)
	}
	var req explainRequest
	if err := c.BodyParser(&req); err != nil {
		return h.fail(c, errors.Wrap(services.ErrInvalidInput, "malformed request body"), ProcessingFailedMessage)
	}
	text, err := h.Service.ExplainSelection(c.UserContext(), req.Caption, req.Selected)
	if err != nil {
		return h.fail(c, err, "could not explain selection")
	}
	return c.JSON(fiber.Map{"explanation": text})
}

// CanUpload handles GET /can-upload.
// @Summary Check whether the caller may upload
// @Tags images
// @Produce json
// @Param X-User-Id header string true "Account"
// @Success 200 {object} map[string]bool
// @Router /can-upload [get]
func (h *AnnotationHandler) CanUpload(c *fiber.Ctx) error {
	ok, err := h.Service.CanUpload(c.UserContext(), userID(c))
	if err != nil {
		return h.fail(c, err, ProcessingFailedMessage)
	}
	return c.JSON(fiber.Map{"canUpload": ok})
}

// DailyStatistics handles GET /statistics/daily.
// @Summary Uploads per calendar day
// @Description Counts active uploads per day, keyed YYYYMMDD. Every day of the inclusive range is present.
// @Tags statistics
// @Produce json
// @Param userId query string false "Account to count, defaults to the caller"
// @Param start query string true "First day (YYYYMMDD or YYYY-MM-DD)"
// @Param end query string true "Last day (YYYYMMDD or YYYY-MM-DD)"
// @Success 200 {object} map[string]int
// @Failure 400 {object} map[string]interface{} "Invalid range"
// @Router /statistics/daily [get]
func (h *AnnotationHandler) DailyStatistics(c *fiber.Ctx) error {
	start, err := services.ParseDay(c.Query("start"), h.Location)
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	end, err := services.ParseDay(c.Query("end"), h.Location)
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	counts, err := h.Service.DailyUploadCounts(c.UserContext(), userID(c), c.Query("userId"), start, end)
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.JSON(counts)
}

// ListRecords handles GET /.
// @Summary List records
// @Description Active records of one owner, bookmarked first then newest first.
// @Tags images
// @Produce json
// @Param ownerId query string false "Owner, defaults to the caller"
// @Success 200 {array} services.RecordSummary
// @Router / [get]
func (h *AnnotationHandler) ListRecords(c *fiber.Ctx) error {
	list, err := h.Service.ListRecords(c.UserContext(), c.Query("ownerId"), userID(c))
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.JSON(list)
}

// GetRecord handles GET /:id.
// @Summary Get a record
// @Tags images
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} services.RecordView
// @Failure 403 {object} map[string]interface{} "Not owner or linked"
// @Failure 404 {object} map[string]interface{} "Record not found"
// @Router /{id} [get]
func (h *AnnotationHandler) GetRecord(c *fiber.Ctx) error {
	view, err := h.Service.GetRecord(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.JSON(view)
}

// GetOverlay handles GET /:id/overlay.
// @Summary Project bounding boxes onto a rendered image
// @Tags images
// @Produce json
// @Param id path string true "Record ID"
// @Param naturalWidth query number true "Decoded image width"
// @Param naturalHeight query number true "Decoded image height"
// @Param width query number true "Rendered width"
// @Param height query number true "Rendered height"
// @Success 200 {array} services.OverlayBox
// @Router /{id}/overlay [get]
func (h *AnnotationHandler) GetOverlay(c *fiber.Ctx) error {
	natural := overlay.Size{Width: c.QueryFloat("naturalWidth"), Height: c.QueryFloat("naturalHeight")}
	onScreen := overlay.Size{Width: c.QueryFloat("width"), Height: c.QueryFloat("height")}
	boxes, err := h.Service.Overlay(c.UserContext(), c.Params("id"), userID(c), natural, onScreen)
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.JSON(boxes)
}

// GetChallenge handles GET /:id/challenge.
// @Summary Get the find-the-object challenge
// @Tags challenge
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} services.ChallengeView
// @Failure 409 {object} map[string]interface{} "Record has no objects"
// @Router /{id}/challenge [get]
func (h *AnnotationHandler) GetChallenge(c *fiber.Ctx) error {
	view, err := h.Service.GetChallenge(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.JSON(view)
}

// CompleteChallenge handles POST /:id/challenge/complete.
// @Summary Mark the challenge as completed
// @Tags challenge
// @Param id path string true "Record ID"
// @Success 204
// @Router /{id}/challenge/complete [post]
func (h *AnnotationHandler) CompleteChallenge(c *fiber.Ctx) error {
	if err := h.Service.MarkChallengeComplete(c.UserContext(), c.Params("id"), userID(c)); err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// ToggleBookmark handles POST /:id/bookmark.
// @Summary Flip the bookmark flag
// @Tags images
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} map[string]bool
// @Router /{id}/bookmark [post]
func (h *AnnotationHandler) ToggleBookmark(c *fiber.Ctx) error {
	state, err := h.Service.ToggleBookmark(c.UserContext(), c.Params("id"), userID(c))
	if err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.JSON(fiber.Map{"isBookmarked": state})
}

// DeleteRecord handles DELETE /:id.
// @Summary Soft-delete a record
// @Tags images
// @Param id path string true "Record ID"
// @Success 204
// @Failure 403 {object} map[string]interface{} "Not the owner"
// @Router /{id} [delete]
func (h *AnnotationHandler) DeleteRecord(c *fiber.Ctx) error {
	if err := h.Service.SoftDelete(c.UserContext(), c.Params("id"), userID(c)); err != nil {
		return h.fail(c, err, RetrievalFailedMessage)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
