package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/denysvitali/odi-gate/pkg/approval"
	"github.com/denysvitali/odi-gate/pkg/capture"
	"github.com/denysvitali/odi-gate/pkg/engine"
	"github.com/denysvitali/odi-gate/pkg/models"
	"github.com/denysvitali/odi-gate/pkg/timer"
	"github.com/denysvitali/odi-gate/pkg/validator"
)

// multipartOverhead is allowed on top of the image size limit.
const multipartOverhead = 64 << 10

type ScanRequest struct {
	Text    string         `json:"text" binding:"required"`
	Corners []models.Point `json:"corners"`
}

type CameraRequest struct {
	Device int `json:"device"`
}

func (s *Server) handleGetSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.View())
}

func (s *Server) handleCloseSession(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Close())
}

func (s *Server) handleApprove(c *gin.Context) {
	v, err := s.engine.Approve(c.Request.Context())
	s.respond(c, v, err)
}

func (s *Server) handleDecline(c *gin.Context) {
	v, err := s.engine.Decline()
	s.respond(c, v, err)
}

func (s *Server) handleScan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	v, err := s.engine.Submit(c.Request.Context(), models.ScanPayload{
		Text:      req.Text,
		Corners:   req.Corners,
		Source:    models.SourceRemote,
		DecodedAt: s.now(),
	})
	s.respond(c, v, err)
}

func (s *Server) handleScanImage(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, capture.MaxUploadSize+multipartOverhead)
	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.respond(c, s.engine.View(), capture.ErrTooLarge)
			return
		}
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	if fh.Size > capture.MaxUploadSize {
		s.respond(c, s.engine.View(), capture.ErrTooLarge)
		return
	}

	f, err := fh.Open()
	if err != nil {
		log.Errorf("unable to open upload: %v", err)
		c.JSON(http.StatusInternalServerError, internalServerError)
		return
	}
	defer f.Close()

	v, err := s.engine.SubmitImage(c.Request.Context(), f)
	s.respond(c, v, err)
}

func (s *Server) handleStartCamera(c *gin.Context) {
	var req CameraRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, badRequest)
			return
		}
	}
	v, err := s.engine.StartCamera(req.Device)
	s.respond(c, v, err)
}

func (s *Server) handleStopCamera(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.StopCamera())
}

func (s *Server) handleTimer(c *gin.Context) {
	timeIn, err := time.Parse(time.RFC3339, c.Query("timeIn"))
	if err != nil {
		c.JSON(http.StatusBadRequest, badRequest)
		return
	}
	c.JSON(http.StatusOK, timer.Compute(timeIn, s.now()))
}

type errorResponse struct {
	Error string      `json:"error"`
	State engine.View `json:"state"`
}

func (s *Server) respond(c *gin.Context, v engine.View, err error) {
	if err == nil {
		c.JSON(http.StatusOK, v)
		return
	}
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Errorf("%s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.JSON(status, errorResponse{Error: err.Error(), State: v})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, capture.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, capture.ErrNotImage):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, capture.ErrNoCode),
		errors.Is(err, validator.ErrLowConfidence),
		errors.Is(err, validator.ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrNoSession):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSessionBusy),
		errors.Is(err, engine.ErrBusy),
		errors.Is(err, approval.ErrNotPending),
		errors.Is(err, approval.ErrBanned):
		return http.StatusConflict
	case errors.Is(err, approval.ErrApprovalFailed):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrNoCamera), errors.Is(err, engine.ErrNoUpload):
		return http.StatusNotImplemented
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
