package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"captiongram/models"
	"captiongram/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type stubTokens map[string]int64

func (s stubTokens) UserByToken(ctx context.Context, token string) (*models.User, error) {
	id, ok := s[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return &models.User{ID: id, Username: "user"}, nil
}

func newAuthRouter(handler gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/me", handler, func(c *gin.Context) {
		userID, exists := c.Get(UserIDKey)
		if !exists {
			c.JSON(http.StatusOK, gin.H{"user_id": 0})
			return
		}
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func TestAuthMiddleware(t *testing.T) {
	router := newAuthRouter(AuthMiddleware(stubTokens{"good": 11}))

	cases := []struct {
		name   string
		setup  func(r *http.Request)
		status int
	}{
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: TokenCookie, Value: "good"}) }, http.StatusOK},
		{"bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer good") }, http.StatusOK},
		{"missing", func(r *http.Request) {}, http.StatusUnauthorized},
		{"invalid", func(r *http.Request) { r.Header.Set("Authorization", "Bearer bad") }, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.setup(req)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.status, w.Code)
			if tc.status == http.StatusOK {
				assert.JSONEq(t, `{"user_id":11}`, w.Body.String())
			}
		})
	}
}

func TestOptionalAuthMiddleware(t *testing.T) {
	router := newAuthRouter(OptionalAuthMiddleware(stubTokens{"good": 5}))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer bad")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":0}`, w.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer good")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.JSONEq(t, `{"user_id":5}`, w.Body.String())
}

func TestRecordWorkflowStep(t *testing.T) {
	before := testutil.ToFloat64(workflowErrors.WithLabelValues(services.WorkflowCreatePost, services.StepUploaded, "storage_upload"))

	RecordWorkflowStep(services.WorkflowCreatePost, services.StepUploaded, 10*time.Millisecond,
		&services.WorkflowError{Workflow: services.WorkflowCreatePost, Step: services.StepUploaded, Kind: services.ErrStorageUpload})
	RecordWorkflowStep(services.WorkflowCreatePost, services.StepUploaded, 5*time.Millisecond, nil)

	after := testutil.ToFloat64(workflowErrors.WithLabelValues(services.WorkflowCreatePost, services.StepUploaded, "storage_upload"))
	assert.Equal(t, before+1, after)
	assert.GreaterOrEqual(t, testutil.ToFloat64(workflowStepsTotal.WithLabelValues(services.WorkflowCreatePost, services.StepUploaded, "ok")), 1.0)
}

func TestPrometheusMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(PrometheusMiddleware("test"))
	router.GET("/posts/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts/abc", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/posts/:id", "404", "test")))
}
