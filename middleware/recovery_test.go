package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRecoveryMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery())
	router.GET("/panic", func(c *gin.Context) {
		panic("test panic")
	})
	router.GET("/panic-mid-stream", func(c *gin.Context) {
		c.Writer.WriteString(`{"assistant_message": "`)
		panic("stream broke")
	})
	router.GET("/normal", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})

	t.Run("panic recovery", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/panic", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusInternalServerError {
			t.Errorf("Expected status 500, got %d", w.Code)
		}
		body := w.Body.String()
		if !strings.Contains(body, "Internal server error") || !strings.Contains(body, "req-42") {
			t.Errorf("Expected error message with request id, got %s", body)
		}
	})

	t.Run("panic after write", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/panic-mid-stream", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if strings.Contains(w.Body.String(), "Internal server error") {
			t.Errorf("Expected no error body after streaming started, got %s", w.Body.String())
		}
	})

	t.Run("normal request", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/normal", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != http.StatusOK {
			t.Errorf("Expected status 200, got %d", w.Code)
		}
	})
}
