package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Martian-dev/ai-brain-ledger/internal/ledger"
)

const codeUnauthenticated = "unauthenticated"

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func statusFor(code string) int {
	switch code {
	case ledger.CodeUnauthorized:
		return http.StatusForbidden
	case ledger.CodeNotFound:
		return http.StatusNotFound
	case ledger.CodeEmptyBatch, ledger.CodeBatchTooLarge, ledger.CodeInvalidEntry, ledger.CodeInvalidArgument:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := ledger.Code(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
		msg = "internal error"
	}
	c.JSON(status, errorBody{Code: code, Message: msg})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorBody{Code: ledger.CodeInvalidArgument, Message: err.Error()})
}

func unauthenticated(c *gin.Context, err error) {
	if err == nil {
		err = errors.New("authentication required")
	}
	c.JSON(http.StatusUnauthorized, errorBody{Code: codeUnauthenticated, Message: err.Error()})
}
