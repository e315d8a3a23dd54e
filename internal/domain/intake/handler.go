package intake

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/internal/platform/blobstore"
	"github.com/ehr/intake/internal/platform/notification"
)

// UploadField is the multipart field carrying attachments.
const UploadField = "files"

// LiveStream upgrades a request into a push connection subscribed to topic.
type LiveStream interface {
	Serve(c echo.Context, topic string) error
}

type Handler struct {
	registry *Registry
	blobs    blobstore.BlobStore
	live     LiveStream
}

func NewHandler(registry *Registry, blobs blobstore.BlobStore) *Handler {
	return &Handler{registry: registry, blobs: blobs}
}

// WithLive enables GET /intake/sessions/:id/events.
func (h *Handler) WithLive(live LiveStream) *Handler {
	h.live = live
	return h
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/intake/sessions", auth.RequireRole(auth.RoleAdmin, auth.RoleRegistrar))
	g.POST("", h.CreateSession)
	g.GET("/:id", h.GetSession)
	g.DELETE("/:id", h.CloseSession)
	g.PATCH("/:id/fields", h.SetField)
	g.POST("/:id/files", h.UploadFiles)
	g.GET("/:id/files/:index", h.DownloadFile)
	g.DELETE("/:id/files/:index", h.RemoveFile)
	g.POST("/:id/submit", h.Submit)
	g.POST("/:id/cancel", h.Cancel)
	if h.live != nil {
		g.GET("/:id/events", h.Events)
	}
}

// -- Views --

type sessionResponse struct {
	View
	Notifications []notification.Notification `json:"notifications"`
	Redirect      *Redirect                   `json:"redirect,omitempty"`
}

func toResponse(e *Entry) sessionResponse {
	resp := sessionResponse{
		View:          e.Session.Snapshot(),
		Notifications: e.Notifications.List(),
	}
	if r, ok := e.Redirects.Latest(); ok {
		resp.Redirect = &r
	}
	return resp
}

type setFieldRequest struct {
	Name  string `json:"name" validate:"required"`
	Value string `json:"value"`
}

type uploadResponse struct {
	Added    []UploadedFile `json:"added"`
	Rejected int            `json:"rejected"`
	Files    []UploadedFile `json:"files"`
}

type submitResponse struct {
	Outcome
	Session sessionResponse `json:"session"`
}

// -- Handlers --

func (h *Handler) CreateSession(c echo.Context) error {
	entry := h.registry.Create()
	return c.JSON(http.StatusCreated, toResponse(entry))
}

// GetSession returns the session view. ?since=<RFC3339 time> limits the
// notifications to those created after it.
func (h *Handler) GetSession(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	resp := toResponse(entry)
	if raw := c.QueryParam("since"); raw != "" {
		since, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "since must be an RFC3339 timestamp")
		}
		resp.Notifications = entry.Notifications.Since(since)
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) CloseSession(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	if err := h.registry.Remove(c.Request().Context(), id); err != nil {
		return mapError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetField(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	var req setFieldRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}
	if err := entry.Session.SetField(req.Name, req.Value); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toResponse(entry))
}

func (h *Handler) UploadFiles(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		// Body limit errors surface through the multipart reader.
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return echo.NewHTTPError(http.StatusBadRequest, "multipart form required")
	}
	headers := form.File[UploadField]
	if len(headers) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("no files in %q field", UploadField))
	}

	candidates := make([]FileCandidate, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to open uploaded file")
		}
		defer f.Close()

		contentType, err := sniffContentType(f)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "failed to read uploaded file")
		}
		candidates = append(candidates, FileCandidate{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: contentType,
			Content:     f,
		})
	}

	userID := auth.UserIDFromContext(c.Request().Context())
	added, rejected, err := entry.Session.AddFiles(c.Request().Context(), candidates, userID)
	if err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, uploadResponse{
		Added:    added,
		Rejected: rejected,
		Files:    entry.Session.Snapshot().Files,
	})
}

// sniffContentType detects the MIME type from the file's leading bytes and
// rewinds it. The client-declared type is not trusted.
func sniffContentType(f multipart.File) (string, error) {
	mtype, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	ct := mtype.String()
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return ct, nil
}

func (h *Handler) DownloadFile(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid file index")
	}
	file, err := entry.Session.File(index)
	if err != nil {
		return mapError(err)
	}
	rc, meta, err := h.blobs.Download(c.Request().Context(), file.BlobID)
	if err != nil {
		if errors.Is(err, blobstore.ErrBlobNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename=%q`, meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) RemoveFile(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid file index")
	}
	if err := entry.Session.RemoveFile(c.Request().Context(), index); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toResponse(entry))
}

func (h *Handler) Submit(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	outcome, err := entry.Session.Submit(c.Request().Context())
	if err != nil {
		return mapError(err)
	}

	status := http.StatusCreated
	switch outcome.Result {
	case ResultInvalid:
		status = http.StatusUnprocessableEntity
	case ResultFailed:
		status = http.StatusBadGateway
	}
	return c.JSON(status, submitResponse{Outcome: *outcome, Session: toResponse(entry)})
}

func (h *Handler) Cancel(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	if err := entry.Session.Cancel(); err != nil {
		return mapError(err)
	}
	return c.JSON(http.StatusOK, toResponse(entry))
}

// Events streams the session's notifications and redirects as they happen.
func (h *Handler) Events(c echo.Context) error {
	entry, err := h.entry(c)
	if err != nil {
		return err
	}
	return h.live.Serve(c, entry.Session.ID().String())
}

// -- Helpers --

func (h *Handler) entry(c echo.Context) (*Entry, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid session id")
	}
	entry, err := h.registry.Get(id)
	if err != nil {
		return nil, mapError(err)
	}
	return entry, nil
}

func mapError(err error) error {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrSessionClosed):
		return echo.NewHTTPError(http.StatusGone, err.Error())
	case errors.Is(err, ErrSubmitInProgress):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, ErrUnknownField), errors.Is(err, ErrFileIndexOutOfRange):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
