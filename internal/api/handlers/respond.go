package handlers

import (
	"context"
	"errors"
	"net/http"

	"gw-lending/internal/identity"
	"gw-lending/internal/ledger"
	"gw-lending/internal/operation"
	"gw-lending/internal/rates"
	"gw-lending/internal/service"
	"gw-lending/internal/storages"
	"gw-lending/pkg"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// Sessions подключение кошельков и определение владельца запроса
type Sessions interface {
	identity.Provider
	identity.Connector
}

// respondError переводит ошибки сервиса в HTTP-статусы
func respondError(c *gin.Context, logger *logrus.Logger, err error) {
	var (
		validationErr  *service.ValidationError
		allowanceErr   *service.AllowanceError
		overpaymentErr *service.OverpaymentError
		txErr          *service.TransactionError
	)

	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": validationErr.Field})
	case errors.Is(err, identity.ErrNotConnected):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Wallet not connected"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid username or password"})
	case errors.As(err, &allowanceErr):
		if allowanceErr.Err != nil {
			logger.Warnf("Allowance read failed: %v", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusConflict, gin.H{
			"error":    err.Error(),
			"spender":  allowanceErr.Spender.Hex(),
			"required": allowanceErr.Required,
			"allowed":  allowanceErr.Allowed,
		})
	case errors.As(err, &overpaymentErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":     err.Error(),
			"remaining": overpaymentErr.Remaining,
		})
	case errors.Is(err, service.ErrReceiptState),
		errors.Is(err, service.ErrReviewerExists),
		errors.Is(err, service.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrPositionNotFound),
		errors.Is(err, service.ErrReceiptNotFound),
		errors.Is(err, rates.ErrNotFound),
		errors.Is(err, storages.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.As(err, &txErr):
		logger.Warnf("Transaction failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "reason": txErr.Kind})
	case errors.Is(err, service.ErrBalanceUnavailable), errors.Is(err, ledger.ErrNetwork):
		logger.Warnf("Ledger unavailable: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		logger.Errorf("Request failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// respondOperation отдает состояние запущенной операции. С ?wait=true
// ждет завершения, пока клиент не отключится.
func respondOperation[T any](c *gin.Context, logger *logrus.Logger, op *operation.Operation[T]) {
	if wait := c.Query("wait"); wait == "true" || wait == "1" {
		_, err := op.Wait(c.Request.Context())
		switch {
		case err == nil:
			c.JSON(http.StatusOK, op.Snapshot())
			return
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			// клиент ушел, операция продолжается
		default:
			respondError(c, logger, err)
			return
		}
	}
	c.JSON(http.StatusAccepted, op.Snapshot())
}

// bindAmount разбирает сумму из тела запроса
func bindAmount(c *gin.Context, raw string) (decimal.Decimal, bool) {
	amount, err := pkg.ParseAmount(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "amount"})
		return decimal.Zero, false
	}
	return amount, true
}
