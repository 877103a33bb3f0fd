package handler

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/photo-monetization/internal/apperr"
	"github.com/iliyamo/photo-monetization/internal/service"
)

const (
	uploadTimeout         = 60 * time.Second
	analysisVersionHeader = "X-Analysis-Version"
)

// ImageHandler serves /v1/images. All routes run behind the session
// middleware and act on the caller's own images only.
type ImageHandler struct {
	images   *service.ImageService
	maxBytes int64
}

func NewImageHandler(images *service.ImageService, maxBytes int64) *ImageHandler {
	return &ImageHandler{images: images, maxBytes: maxBytes}
}

type downloadResp struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Upload accepts a multipart form with a single "file" part. The content
// type is sniffed from the bytes rather than trusted from the client.
func (h *ImageHandler) Upload(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	// room for the multipart envelope around the file itself
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, h.maxBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return apperr.Validation("Invalid upload", map[string]string{"file": "is too large"})
		}
		return apperr.Validation("Invalid upload", map[string]string{"file": "is required"})
	}
	f, err := fh.Open()
	if err != nil {
		return apperr.Internal("open upload", err)
	}
	defer f.Close()

	contentType, err := sniff(f)
	if err != nil {
		return apperr.Internal("read upload", err)
	}

	ctx, cancel := withTimeout(c, uploadTimeout)
	defer cancel()

	img, err := h.images.Upload(ctx, u.ID, service.Upload{
		Filename:    fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Body:        f,
	})
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, echo.Map{"image": img})
}

func sniff(f multipart.File) (string, error) {
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	ct, _, _ := strings.Cut(mt.String(), ";")
	return strings.TrimSpace(ct), nil
}

// List returns the caller's images, newest first. Query: limit, offset.
func (h *ImageHandler) List(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	var limit, offset int
	if err := echo.QueryParamsBinder(c).Int("limit", &limit).Int("offset", &offset).BindError(); err != nil {
		return apperr.Validation("Invalid query", map[string]string{"limit": "must be an integer", "offset": "must be an integer"})
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	imgs, err := h.images.List(ctx, u.ID, limit, offset)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"images": imgs})
}

func (h *ImageHandler) Get(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	img, err := h.images.Get(ctx, u.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"image": img})
}

// Download returns a short-lived presigned URL for the image bytes.
func (h *ImageHandler) Download(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	url, exp, err := h.images.DownloadURL(ctx, u.ID, c.Param("id"))
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, downloadResp{URL: url, ExpiresAt: exp})
}

func (h *ImageHandler) Delete(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	if err := h.images.Delete(ctx, u.ID, c.Param("id")); err != nil {
		return err
	}
	return respond(c, http.StatusOK, nil)
}

// PutAnalysis stores the raw request body as the image's analysis result.
// The schema version comes from X-Analysis-Version and defaults to 1.
func (h *ImageHandler) PutAnalysis(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	version := 1
	if v := strings.TrimSpace(c.Request().Header.Get(analysisVersionHeader)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return apperr.Validation("Invalid analysis", map[string]string{"version": "must be a positive integer"})
		}
		version = n
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, service.MaxAnalysisBytes+1))
	if err != nil {
		return apperr.Validation("Invalid analysis", map[string]string{"body": "could not be read"})
	}

	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	a, err := h.images.SaveAnalysis(ctx, u.ID, c.Param("id"), version, c.Request().Header.Get(echo.HeaderContentType), payload)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{
		"imageId":       a.ImageID,
		"schemaVersion": a.SchemaVersion,
		"contentType":   a.ContentType,
		"sizeBytes":     len(a.Payload),
		"updatedAt":     a.UpdatedAt,
	})
}

// GetAnalysis returns the stored bytes verbatim, outside the JSON envelope.
func (h *ImageHandler) GetAnalysis(c echo.Context) error {
	u, err := sessionUser(c)
	if err != nil {
		return err
	}
	ctx, cancel := withTimeout(c, requestTimeout)
	defer cancel()

	a, err := h.images.GetAnalysis(ctx, u.ID, c.Param("id"))
	if err != nil {
		return err
	}
	c.Response().Header().Set(analysisVersionHeader, strconv.Itoa(a.SchemaVersion))
	return c.Blob(http.StatusOK, a.ContentType, a.Payload)
}
