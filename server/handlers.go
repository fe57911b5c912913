package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/RyanBlaney/sonido-cough/classify"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) handleIndex(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Cough classification API is running",
		"version": s.version,
		"endpoints": gin.H{
			"predict": "/predict (POST, multipart field \"file\")",
			"health":  "/health (GET)",
		},
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	body := gin.H{
		"status":  "ok",
		"version": s.version,
		"model":   s.classifier.ModelInfo(),
	}
	if s.decoder != nil {
		body["decoder"] = s.decoder
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) handlePredict(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.config.MaxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(c, http.StatusRequestEntityTooLarge, "payload_too_large", "uploaded file is too large", err)
			return
		}
		s.writeClassifyError(c, classify.Wrap(classify.KindMissingInput, "server.predict", "no audio file in request", err))
		return
	}
	defer file.Close()

	result, err := s.classifier.ClassifyReader(c.Request.Context(), file, header.Filename)
	if err != nil {
		s.writeClassifyError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// statusForKind maps error kinds to HTTP status codes; undecodable audio is a 500
func statusForKind(kind classify.Kind) int {
	switch kind {
	case classify.KindMissingInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeClassifyError(c *gin.Context, err error) {
	kind := classify.KindOf(err)

	message := "internal error"
	var typed *classify.Error
	if errors.As(err, &typed) {
		message = typed.Message
	}

	s.writeError(c, statusForKind(kind), string(kind), message, err)
}

func (s *Server) writeError(c *gin.Context, status int, code, message string, err error) {
	if s.config.ExposeErrorDetails && err != nil {
		message = err.Error()
	}
	if status >= http.StatusInternalServerError && err != nil {
		_ = c.Error(err)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: c.Writer.Header().Get(RequestIDHeader),
	})
}
