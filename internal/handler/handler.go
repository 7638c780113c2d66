package handler

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/face"
	"faceattend/internal/gallery"
)

// MaxImageBytes caps uploaded captures and reference photos.
const MaxImageBytes = 10 << 20

var errImageTooLarge = fmt.Errorf("image larger than %d bytes", MaxImageBytes)

// Handler serves the kiosk API.
type Handler struct {
	svc             *attendance.Service
	gallery         *gallery.Store
	issuer          *auth.Issuer
	registrationKey string
}

// New returns a Handler. An empty registrationKey disables device registration.
func New(svc *attendance.Service, g *gallery.Store, issuer *auth.Issuer, registrationKey string) *Handler {
	return &Handler{svc: svc, gallery: g, issuer: issuer, registrationKey: registrationKey}
}

// Register mounts the device routes on r and the authenticated routes under /v1.
// extra runs in front of the device routes and after authentication on the
// rest, so a limiter sees the device claims wherever there are any.
func (h *Handler) Register(r gin.IRouter, extra ...gin.HandlerFunc) {
	devices := r.Group("/v1/devices", extra...)
	devices.POST("/register", h.registerDevice)
	devices.POST("/refresh", h.refreshDevice)

	v1 := r.Group("/v1", auth.DeviceAuth(h.issuer))
	v1.Use(extra...)
	v1.POST("/attendance", h.takeAttendance)
	v1.POST("/faces", h.registerFace)
	v1.GET("/faces", h.listFaces)
	v1.GET("/faces/:name/thumbnail", h.thumbnail)
	v1.GET("/records", h.records)
	v1.GET("/records/export", h.export)
}

func (h *Handler) registerDevice(c *gin.Context) {
	if h.registrationKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "device registration disabled"})
		return
	}
	if c.GetHeader("X-Registration-Key") != h.registrationKey {
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid registration key"})
		return
	}
	var req struct {
		DeviceID string `json:"device_id"`
		Label    string `json:"label"`
	}
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	if req.DeviceID == "" {
		req.DeviceID = uuid.NewString()
	}

	tokens, err := h.issuer.Issue(req.DeviceID, req.Label)
	if err != nil {
		log.Printf("token issue for %s failed: %v", req.DeviceID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	log.Printf("device registered: %s", req.DeviceID)
	c.JSON(http.StatusCreated, tokens)
}

func (h *Handler) refreshDevice(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	tokens, err := h.issuer.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, tokens)
}

func (h *Handler) takeAttendance(c *gin.Context) {
	img, _, err := readImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	results, err := h.svc.TakeAttendance(c.Request.Context(), img)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *Handler) registerFace(c *gin.Context) {
	img, name, err := readImage(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	if err := h.svc.RegisterFace(c.Request.Context(), name, img); err != nil {
		if errors.Is(err, face.ErrNoFaceDetected) {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "No face found in the image. Please upload a clear photo."})
			return
		}
		h.fail(c, err)
		return
	}
	name = strings.TrimSpace(name)
	c.JSON(http.StatusCreated, gin.H{"name": name, "message": fmt.Sprintf("Profile created for %s!", name)})
}

func (h *Handler) listFaces(c *gin.Context) {
	names, err := h.gallery.Names()
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"faces": names})
}

func (h *Handler) thumbnail(c *gin.Context) {
	size := uint(gallery.DefaultThumbSize)
	if v := c.Query("size"); v != "" {
		parsed, err := strconv.ParseUint(v, 10, 16)
		if err != nil || parsed == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "size must be a positive integer"})
			return
		}
		size = uint(parsed)
	}
	data, err := h.gallery.Thumbnail(c.Param("name"), size)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/jpeg", data)
}

func (h *Handler) records(c *gin.Context) {
	recs, err := h.svc.Records(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	if recs == nil {
		recs = []attendance.Record{}
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (h *Handler) export(c *gin.Context) {
	c.Header("Content-Disposition", `attachment; filename="attendance.csv"`)
	c.Header("Content-Type", "text/csv")
	if err := h.svc.Export(c.Request.Context(), c.Writer); err != nil {
		log.Printf("export failed: %v", err)
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	msg := err.Error()
	switch status {
	case http.StatusInternalServerError:
		log.Printf("%s %s failed: %v", c.Request.Method, c.FullPath(), err)
		msg = "internal error"
	case http.StatusBadGateway:
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
		msg = "face service error"
	case http.StatusUnprocessableEntity:
		if errors.Is(err, face.ErrImageRejected) {
			msg = "face service could not process the image"
		}
	}
	c.JSON(status, gin.H{"error": msg})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, attendance.ErrEmptyImage),
		errors.Is(err, attendance.ErrEmptyName),
		errors.Is(err, gallery.ErrEmptyName),
		errors.Is(err, gallery.ErrInvalidName),
		errors.Is(err, gallery.ErrUnsupportedImage),
		errors.Is(err, errBadPayload):
		return http.StatusBadRequest
	case errors.Is(err, errImageTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, face.ErrNoFaceDetected),
		errors.Is(err, face.ErrImageRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, gallery.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, face.ErrEncoder):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

var errBadPayload = errors.New(`provide multipart "image" or JSON {"data": "<base64 or data URL>"}`)

// readImage accepts a multipart "image" file or a JSON body carrying base64
// data. The optional "name" field is returned alongside.
func readImage(c *gin.Context) ([]byte, string, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxImageBytes+(1<<20))

	if strings.HasPrefix(c.ContentType(), "multipart/form-data") {
		file, _, err := c.Request.FormFile("image")
		if err != nil {
			var tooBig *http.MaxBytesError
			if errors.As(err, &tooBig) {
				return nil, "", errImageTooLarge
			}
			return nil, "", fmt.Errorf("%w: %v", errBadPayload, err)
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, MaxImageBytes+1))
		if err != nil {
			return nil, "", fmt.Errorf("read image: %w", err)
		}
		if len(data) > MaxImageBytes {
			return nil, "", errImageTooLarge
		}
		return data, c.Request.FormValue("name"), nil
	}

	var body struct {
		Name string `json:"name"`
		Data string `json:"data"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			return nil, "", errImageTooLarge
		}
		return nil, "", errBadPayload
	}
	data, err := decodeDataURL(body.Data)
	if err != nil {
		return nil, "", err
	}
	if len(data) > MaxImageBytes {
		return nil, "", errImageTooLarge
	}
	return data, body.Name, nil
}

// decodeDataURL decodes "data:image/png;base64,...." or bare base64.
func decodeDataURL(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, attendance.ErrEmptyImage
	}
	if strings.HasPrefix(s, "data:") {
		_, payload, ok := strings.Cut(s, ",")
		if !ok {
			return nil, fmt.Errorf("%w: malformed data URL", errBadPayload)
		}
		s = payload
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(s)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64", errBadPayload)
	}
	return data, nil
}
