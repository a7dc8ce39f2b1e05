package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"gw-lending/internal/identity"
	"gw-lending/internal/ledger"
	"gw-lending/internal/service"
	"gw-lending/internal/storages"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestRespondErrorStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cases := []struct {
		err  error
		want int
	}{
		{&service.ValidationError{Field: "amount", Err: service.ErrInvalidAmount}, http.StatusBadRequest},
		{identity.ErrNotConnected, http.StatusUnauthorized},
		{fmt.Errorf("position 7: %w", service.ErrBusy), http.StatusConflict},
		{fmt.Errorf("alice: %w", service.ErrReviewerExists), http.StatusConflict},
		{fmt.Errorf("position 7: %w", service.ErrPositionNotFound), http.StatusNotFound},
		{fmt.Errorf("receipt x: %w", storages.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("dial: %w", ledger.ErrNetwork), http.StatusBadGateway},
		{context.DeadlineExceeded, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		respondError(c, logger, tc.err)
		assert.Equal(t, tc.want, w.Code, tc.err.Error())
	}
}
