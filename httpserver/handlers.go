package httpserver

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/maastricht-university/edmo-emotion/clients"
	"github.com/maastricht-university/edmo-emotion/emotion"
	"github.com/maastricht-university/edmo-emotion/orchestrator"
)

const (
	msgEmptyAudio = "Empty audio file."
	msgTooLarge   = "Audio file too large."
)

type errorResp struct {
	Error string `json:"error"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, clients.HealthResp{
		Status:     "ok",
		ModelInfo:  s.pipeline.Model(),
		Transcoder: s.pipeline.HasTranscoder(),
	})
}

func (s *Server) classify(c *gin.Context) {
	field := s.cfg.Server.UploadField
	if c.Request.ContentLength == 0 {
		c.JSON(http.StatusBadRequest, errorResp{Error: msgEmptyAudio})
		return
	}
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	if limit > 0 {
		if c.Request.ContentLength > limit {
			c.JSON(http.StatusRequestEntityTooLarge, errorResp{Error: msgTooLarge})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}

	fh, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResp{Error: msgTooLarge})
			return
		}
		_ = c.Error(err)
		if errors.Is(err, io.EOF) {
			// body ended before any multipart part
			c.JSON(http.StatusBadRequest, errorResp{Error: msgEmptyAudio})
			return
		}
		c.JSON(http.StatusUnprocessableEntity, errorResp{Error: fmt.Sprintf("Missing audio upload field %q.", field)})
		return
	}

	f, err := fh.Open()
	if err != nil {
		s.fail(c, err)
		return
	}
	defer f.Close()
	raw, err := io.ReadAll(f)
	if err != nil {
		s.fail(c, err)
		return
	}

	preds, err := s.pipeline.Run(c.Request.Context(), raw)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, [][]emotion.Prediction{preds})
}

func (s *Server) fail(c *gin.Context, err error) {
	_ = c.Error(err)
	if errors.Is(err, orchestrator.ErrEmptyInput) {
		c.JSON(http.StatusBadRequest, errorResp{Error: msgEmptyAudio})
		return
	}
	c.JSON(http.StatusUnprocessableEntity, errorResp{Error: "Could not classify audio: " + err.Error()})
}
