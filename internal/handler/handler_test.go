package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/auth"
	"faceattend/internal/face"
	"faceattend/internal/gallery"
)

type fakeEncoder struct {
	mu    sync.Mutex
	faces map[string][]face.Vector
	err   error
}

func (f *fakeEncoder) Encode(_ context.Context, img []byte) ([]face.Vector, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.faces[string(img)], nil
}

type server struct {
	router *gin.Engine
	enc    *fakeEncoder
	token  string
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	dir := t.TempDir()

	enc := &fakeEncoder{faces: map[string][]face.Vector{}}
	g, err := gallery.New(filepath.Join(dir, "faces"), enc)
	require.NoError(t, err)
	l, err := attendance.OpenLedger(filepath.Join(dir, "attendance.csv"), attendance.WithLocation(time.UTC))
	require.NoError(t, err)
	clock := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	svc := attendance.NewService(g, enc, face.NewMatcher(face.DefaultTolerance), l,
		attendance.WithClock(func() time.Time { return clock }))

	iss := auth.NewIssuer("faceattend", "test-key", time.Hour, 24*time.Hour)
	pair, err := iss.Issue("kiosk-test", "")
	require.NoError(t, err)

	r := gin.New()
	New(svc, g, iss, "letmein").Register(r)
	return &server{router: r, enc: enc, token: pair.AccessToken}
}

func (s *server) do(req *http.Request) *httptest.ResponseRecorder {
	if req.Header.Get("Authorization") == "" && s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func photo(t *testing.T, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func multipartRequest(t *testing.T, path, name string, img []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if name != "" {
		require.NoError(t, w.WriteField("name", name))
	}
	part, err := w.CreateFormFile("image", "capture.png")
	require.NoError(t, err)
	_, err = part.Write(img)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func jsonRequest(t *testing.T, path string, v any) *http.Request {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type checkInResponse struct {
	Results []attendance.CheckIn `json:"results"`
}

func TestEnrollAndCheckIn(t *testing.T) {
	s := newServer(t)
	bob := photo(t, color.RGBA{R: 120, G: 80, B: 40, A: 255})
	s.enc.faces[string(bob)] = []face.Vector{{0.2, 0.1, -0.3}}

	w := s.do(multipartRequest(t, "/v1/faces", "bob", bob))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), "Profile created for bob!")

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/faces", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"faces":["bob"]}`, w.Body.String())

	w = s.do(jsonRequest(t, "/v1/attendance", map[string]string{
		"data": "data:image/png;base64," + base64.StdEncoding.EncodeToString(bob),
	}))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp checkInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, attendance.StatusMarked, resp.Results[0].Status)

	w = s.do(multipartRequest(t, "/v1/attendance", "", bob))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, attendance.StatusAlreadyMarked, resp.Results[0].Status)

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/records", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"records":[{"name":"bob","date":"2024-01-01","time":"09:00:00"}]}`, w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/records/export", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attendance.csv")
	assert.Equal(t, "Name,Date,Time\nbob,2024-01-01,09:00:00\n", w.Body.String())

	w = s.do(httptest.NewRequest(http.MethodGet, "/v1/faces/bob/thumbnail?size=16", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/jpeg", w.Header().Get("Content-Type"))
	thumb, err := jpeg.Decode(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	assert.LessOrEqual(t, thumb.Bounds().Dx(), 16)
}

func TestCheckInOutcomes(t *testing.T) {
	s := newServer(t)
	stranger := photo(t, color.RGBA{G: 200, A: 255})
	s.enc.faces[string(stranger)] = []face.Vector{{9, 9, 9}}
	blank := photo(t, color.Black)

	w := s.do(multipartRequest(t, "/v1/attendance", "", stranger))
	require.Equal(t, http.StatusOK, w.Code)
	var resp checkInResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, attendance.StatusUnknown, resp.Results[0].Status)

	w = s.do(multipartRequest(t, "/v1/attendance", "", blank))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, attendance.StatusNoFace, resp.Results[0].Status)
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	blank := photo(t, color.Black)

	tests := []struct {
		name string
		req  func() *http.Request
		code int
	}{
		{"no auth", func() *http.Request {
			req := httptest.NewRequest(http.MethodGet, "/v1/records", nil)
			req.Header.Set("Authorization", "Bearer nope")
			return req
		}, http.StatusUnauthorized},
		{"empty json", func() *http.Request {
			return jsonRequest(t, "/v1/attendance", map[string]string{})
		}, http.StatusBadRequest},
		{"bad base64", func() *http.Request {
			return jsonRequest(t, "/v1/attendance", map[string]string{"data": "%%%"})
		}, http.StatusBadRequest},
		{"missing name", func() *http.Request {
			return multipartRequest(t, "/v1/faces", "", blank)
		}, http.StatusBadRequest},
		{"path in name", func() *http.Request {
			return multipartRequest(t, "/v1/faces", "../evil", blank)
		}, http.StatusBadRequest},
		{"not an image", func() *http.Request {
			return multipartRequest(t, "/v1/faces", "zed", []byte("hello"))
		}, http.StatusBadRequest},
		{"no face at enrollment", func() *http.Request {
			return multipartRequest(t, "/v1/faces", "zed", blank)
		}, http.StatusUnprocessableEntity},
		{"unknown thumbnail", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/v1/faces/nobody/thumbnail", nil)
		}, http.StatusNotFound},
		{"bad thumbnail size", func() *http.Request {
			return httptest.NewRequest(http.MethodGet, "/v1/faces/nobody/thumbnail?size=big", nil)
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.req())
			assert.Equal(t, tt.code, w.Code, w.Body.String())
		})
	}
}

func TestEncoderFailureStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"unreachable", errors.New("connection refused"), http.StatusBadGateway, `{"error":"face service error"}`},
		{"image rejected", fmt.Errorf("%w: 400 Bad Request", face.ErrImageRejected), http.StatusUnprocessableEntity,
			`{"error":"face service could not process the image"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(t)
			s.enc.err = tt.err

			w := s.do(multipartRequest(t, "/v1/attendance", "", photo(t, color.White)))
			assert.Equal(t, tt.code, w.Code)
			assert.JSONEq(t, tt.body, w.Body.String())
		})
	}
}

func TestDeviceRegistration(t *testing.T) {
	s := newServer(t)
	s.token = ""

	req := jsonRequest(t, "/v1/devices/register", map[string]string{"device_id": "kiosk-9"})
	w := s.do(req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	req = jsonRequest(t, "/v1/devices/register", map[string]string{"device_id": "kiosk-9", "label": "lobby"})
	req.Header.Set("X-Registration-Key", "letmein")
	w = s.do(req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var pair auth.TokenPair
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &pair))
	assert.Equal(t, "kiosk-9", pair.DeviceID)
	require.NotEmpty(t, pair.AccessToken)

	req = httptest.NewRequest(http.MethodGet, "/v1/faces", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = s.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"faces":[]}`, w.Body.String())

	w = s.do(jsonRequest(t, "/v1/devices/refresh", map[string]string{"refresh_token": pair.RefreshToken}))
	assert.Equal(t, http.StatusOK, w.Code)
	w = s.do(jsonRequest(t, "/v1/devices/refresh", map[string]string{"refresh_token": pair.AccessToken}))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRegistrationDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	New(nil, nil, auth.NewIssuer("x", "k", time.Minute, time.Hour), "").Register(r)

	req := httptest.NewRequest(http.MethodPost, "/v1/devices/register", nil)
	req.Header.Set("X-Registration-Key", "")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDecodeDataURL(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	enc := base64.StdEncoding.EncodeToString(raw)

	got, err := decodeDataURL("data:image/png;base64," + enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeDataURL(enc)
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	got, err = decodeDataURL(base64.RawStdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, got)

	_, err = decodeDataURL("  ")
	assert.ErrorIs(t, err, attendance.ErrEmptyImage)
	_, err = decodeDataURL("data:image/png;base64")
	assert.ErrorIs(t, err, errBadPayload)
}
