package handlers

import (
	"errors"
	"io"
	"math"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/example/face-unlock/internal/auth"
	"github.com/example/face-unlock/internal/imageprocessor"
	"github.com/example/face-unlock/internal/profile"
	"github.com/example/face-unlock/internal/usecase"
)

// MaxUploadSize is the default limit for a decoded capture.
const MaxUploadSize = 5 << 20

var (
	errUploadTooLarge     = errors.New("image exceeds the upload limit")
	errUnsupportedMedia   = errors.New("unsupported image content type")
	errMissingImage       = errors.New("image is required")
	errMalformedJSONInput = errors.New("malformed request body")
)

type registerRequest struct {
	Name  string `json:"name"`
	Image string `json:"image"`
}

type authenticateRequest struct {
	Image string `json:"image"`
}

type api struct {
	uc        *usecase.UnlockUseCase
	maxUpload int64
}

// RegisterRoutes wires the HTTP handlers to the Gin router. A non-positive
// maxUpload falls back to MaxUploadSize.
func RegisterRoutes(router *gin.Engine, uc *usecase.UnlockUseCase, authMiddleware gin.HandlerFunc, maxUpload int64) {
	if maxUpload <= 0 {
		maxUpload = MaxUploadSize
	}
	a := &api{uc: uc, maxUpload: maxUpload}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "profiles": uc.ProfileCount()})
	})

	group := router.Group("/api")
	group.POST("/register", a.register)
	group.POST("/authenticate", a.authenticate)
	group.GET("/profiles", a.listProfiles)
	group.GET("/profiles/:name/duplicates", a.duplicates)
	group.GET("/results/:id", a.result)
	group.GET("/metrics", a.metrics)
	group.GET("/dashboard", authMiddleware, a.dashboard)
}

// CORSMiddleware allows the browser capture page to call the API. A "*"
// entry allows every origin.
func CORSMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization")
	cfg.MaxAge = 12 * time.Hour
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}

func (a *api) register(c *gin.Context) {
	var (
		name string
		raw  []byte
		err  error
	)
	if isMultipart(c) {
		if name, err = profile.NormalizeName(c.PostForm("name")); err == nil {
			raw, err = a.readUpload(c)
		}
	} else {
		var req registerRequest
		if err = a.bindJSON(c, &req); err == nil {
			if name, err = profile.NormalizeName(req.Name); err == nil {
				raw, err = decodeImageField(req.Image)
			}
		}
	}
	if err != nil {
		fail(c, err)
		return
	}

	p, err := a.uc.Register(c.Request.Context(), name, raw)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "face of " + p.Name + " registered",
		"profile": gin.H{"name": p.Name, "created_at": p.CreatedAt},
	})
}

func (a *api) authenticate(c *gin.Context) {
	var (
		raw []byte
		err error
	)
	if isMultipart(c) {
		raw, err = a.readUpload(c)
	} else {
		var req authenticateRequest
		if err = a.bindJSON(c, &req); err == nil {
			raw, err = decodeImageField(req.Image)
		}
	}
	if err != nil {
		fail(c, err)
		return
	}

	outcome, err := a.uc.Authenticate(c.Request.Context(), raw)
	if err != nil {
		fail(c, err)
		return
	}

	body := gin.H{
		"success":    outcome.Match.Matched(),
		"message":    outcome.Message,
		"request_id": outcome.RequestID,
		"confidence": round2(outcome.Match.Similarity),
		"elapsed_ms": float64(outcome.Match.Elapsed) / float64(time.Millisecond),
	}
	if outcome.Match.Matched() {
		body["name"] = outcome.Match.Identity
		if outcome.Token != "" {
			body["token"] = outcome.Token
			body["token_expires_at"] = outcome.TokenExpiresAt
		}
	}
	c.JSON(http.StatusOK, body)
}

func (a *api) listProfiles(c *gin.Context) {
	list := a.uc.ListProfiles()
	c.JSON(http.StatusOK, gin.H{"profiles": list, "count": len(list)})
}

func (a *api) duplicates(c *gin.Context) {
	report, err := a.uc.GetDuplicateReport(c.Param("name"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"profile":      report.Profile,
		"content_hash": report.Hash,
		"duplicates":   report.Duplicates,
	})
}

func (a *api) result(c *gin.Context) {
	outcome, err := a.uc.GetResult(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"request_id": outcome.RequestID,
		"success":    outcome.Match.Matched(),
		"name":       outcome.Match.Identity,
		"confidence": round2(outcome.Match.Similarity),
		"elapsed_ms": float64(outcome.Match.Elapsed) / float64(time.Millisecond),
		"message":    outcome.Message,
		"created_at": outcome.CreatedAt,
	})
}

func (a *api) metrics(c *gin.Context) {
	c.JSON(http.StatusOK, a.uc.MetricsSummary())
}

func (a *api) dashboard(c *gin.Context) {
	identity, ok := auth.GetIdentity(c.Request.Context())
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "not unlocked"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"name":    identity,
		"message": "welcome to your dashboard, " + identity,
	})
}

func (a *api) bindJSON(c *gin.Context, dst interface{}) error {
	// Base64 inflates by a third; leave room for the data URL prefix and fields.
	limit := a.maxUpload*4/3 + 4096
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	if err := c.ShouldBindJSON(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return errUploadTooLarge
		}
		return errMalformedJSONInput
	}
	return nil
}

func (a *api) readUpload(c *gin.Context) ([]byte, error) {
	file, err := c.FormFile("image")
	if err != nil {
		return nil, errMissingImage
	}
	if file.Size > a.maxUpload {
		return nil, errUploadTooLarge
	}
	mediaType, _, err := mime.ParseMediaType(file.Header.Get("Content-Type"))
	if err != nil || !imageprocessor.SupportedContentTypes[strings.ToLower(mediaType)] {
		return nil, errUnsupportedMedia
	}

	src, err := file.Open()
	if err != nil {
		return nil, errMissingImage
	}
	defer src.Close()
	return io.ReadAll(io.LimitReader(src, a.maxUpload))
}

func decodeImageField(payload string) ([]byte, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, errMissingImage
	}
	return imageprocessor.DecodePayload(payload)
}

func isMultipart(c *gin.Context) bool {
	return strings.HasPrefix(c.ContentType(), "multipart/form-data")
}

func fail(c *gin.Context, err error) {
	status, message := statusFor(err)
	c.JSON(status, gin.H{"success": false, "message": message})
}

func statusFor(err error) (int, string) {
	var storageErr *profile.StorageError
	switch {
	case errors.Is(err, errUploadTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error()
	case errors.Is(err, errUnsupportedMedia):
		return http.StatusUnsupportedMediaType, err.Error()
	case errors.Is(err, errMissingImage), errors.Is(err, errMalformedJSONInput):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, usecase.ErrInvalidImage):
		return http.StatusBadRequest, "invalid image"
	case errors.Is(err, profile.ErrInvalidName):
		return http.StatusBadRequest, "invalid name: use letters, digits, spaces, '.', '_' or '-'"
	case errors.Is(err, usecase.ErrNoProfilesRegistered):
		return http.StatusConflict, "no faces registered"
	case errors.Is(err, usecase.ErrProfileNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.Is(err, usecase.ErrResultNotFound):
		return http.StatusNotFound, "result not found"
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "registration was not saved"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
