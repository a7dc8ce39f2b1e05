package handlers

import (
	"net/http"
	"strconv"

	"gw-lending/internal/codec"
	"gw-lending/internal/rates"
	"gw-lending/internal/service"
	"gw-lending/pkg"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// LendingHandler залог, заем и погашение
type LendingHandler struct {
	service *service.LendingService
	logger  *logrus.Logger
}

// NewLendingHandler создает новый обработчик кредитования
func NewLendingHandler(service *service.LendingService, logger *logrus.Logger) *LendingHandler {
	return &LendingHandler{
		service: service,
		logger:  logger,
	}
}

// SupplyRequest запрос на внесение залога
type SupplyRequest struct {
	Amount string `json:"amount" binding:"required"`
	Asset  string `json:"asset"`
}

// BorrowRequest запрос на заем
type BorrowRequest struct {
	Amount      string              `json:"amount" binding:"required"`
	Currency    string              `json:"currency"`
	Destination service.Destination `json:"destination"`
}

// RepayRequest запрос на погашение
type RepayRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// Deposit approve при необходимости, затем supply
// @Summary Deposit collateral
// @Description Approves the lending contract when the allowance is short, then supplies
// @Tags lending
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SupplyRequest true "Deposit data"
// @Param wait query bool false "Wait for confirmation"
// @Success 202 {object} operation.Snapshot
// @Failure 400 {object} map[string]string
// @Router /api/v1/deposit [post]
func (h *LendingHandler) Deposit(c *gin.Context) {
	var req SupplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount)
	if !ok {
		return
	}

	op, err := h.service.Deposit(c.Request.Context(), amount, req.Asset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOperation(c, h.logger, op)
}

// Supply вносит залог при уже выданном разрешении
// @Summary Supply collateral
// @Tags lending
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body SupplyRequest true "Supply data"
// @Success 202 {object} operation.Snapshot
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/supply [post]
func (h *LendingHandler) Supply(c *gin.Context) {
	var req SupplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount)
	if !ok {
		return
	}

	op, err := h.service.Supply(c.Request.Context(), amount, req.Asset)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOperation(c, h.logger, op)
}

// GetBorrowLimit сколько еще можно занять в валюте
// @Summary Get borrow limit
// @Tags lending
// @Security BearerAuth
// @Produce json
// @Param currency query string false "Currency code, default currency when empty"
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/borrow/limit [get]
func (h *LendingHandler) GetBorrowLimit(c *gin.Context) {
	limit, err := h.service.BorrowLimit(c.Request.Context(), pkg.NormalizeCurrency(c.Query("currency")))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"limit": limit,
		"message": "You can borrow up to " + limit.Currency.Symbol + " " +
			pkg.FormatAmount(limit.Available.Truncate(service.FiatScale), service.FiatScale) + " " + limit.Currency.Code,
	})
}

// Borrow занимает в локальной валюте под залог
// @Summary Borrow
// @Tags lending
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param request body BorrowRequest true "Borrow data"
// @Success 202 {object} operation.Snapshot
// @Failure 400 {object} map[string]string
// @Router /api/v1/borrow [post]
func (h *LendingHandler) Borrow(c *gin.Context) {
	var req BorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount)
	if !ok {
		return
	}

	op, err := h.service.Borrow(c.Request.Context(), service.BorrowRequest{
		Amount:       amount,
		CurrencyCode: pkg.NormalizeCurrency(req.Currency),
		Destination:  req.Destination,
	})
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOperation(c, h.logger, op)
}

// ListPositions позиции подключенного кошелька
// @Summary List borrow positions
// @Tags lending
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/positions [get]
func (h *LendingHandler) ListPositions(c *gin.Context) {
	positions, err := h.service.ListPositions(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions})
}

// GetPosition одна позиция
// @Summary Get borrow position
// @Tags lending
// @Security BearerAuth
// @Produce json
// @Param id path int true "Position ID"
// @Success 200 {object} storages.BorrowPosition
// @Failure 404 {object} map[string]string
// @Router /api/v1/positions/{id} [get]
func (h *LendingHandler) GetPosition(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}

	position, err := h.service.Position(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"position":  position,
		"remaining": position.Remaining(),
	})
}

// Repay погашает часть долга по позиции
// @Summary Repay
// @Tags lending
// @Security BearerAuth
// @Accept json
// @Produce json
// @Param id path int true "Position ID"
// @Param request body RepayRequest true "Repay data"
// @Success 202 {object} operation.Snapshot
// @Failure 409 {object} map[string]interface{}
// @Router /api/v1/positions/{id}/repay [post]
func (h *LendingHandler) Repay(c *gin.Context) {
	id, ok := positionID(c)
	if !ok {
		return
	}

	var req RepayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}
	amount, ok := bindAmount(c, req.Amount)
	if !ok {
		return
	}

	op, err := h.service.Repay(c.Request.Context(), id, amount)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	respondOperation(c, h.logger, op)
}

// GetOperation состояние операции по id
// @Summary Get operation status
// @Tags lending
// @Security BearerAuth
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} operation.Snapshot
// @Failure 404 {object} map[string]string
// @Router /api/v1/operations/{id} [get]
func (h *LendingHandler) GetOperation(c *gin.Context) {
	snapshot, err := h.service.Operation(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// ListOperations операции кошелька, пока они хранятся в реестре
// @Summary List wallet operations
// @Tags lending
// @Security BearerAuth
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/operations [get]
func (h *LendingHandler) ListOperations(c *gin.Context) {
	operations, err := h.service.Operations(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"operations": operations})
}

// ListCurrencies таблица курсов
// @Summary List currencies
// @Tags reference
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/currencies [get]
func (h *LendingHandler) ListCurrencies(c *gin.Context) {
	table := h.service.Rates()

	currencies := make([]currencyView, 0, len(table.All()))
	for _, cur := range table.All() {
		encoded, err := codec.EncodeCurrencyHex(cur.Code)
		if err != nil {
			h.logger.Warnf("Currency %s cannot be encoded for the contract: %v", cur.Code, err)
		}
		currencies = append(currencies, currencyView{Currency: cur, Bytes32: encoded})
	}

	c.JSON(http.StatusOK, gin.H{
		"default":    table.Default().Code,
		"collateral": h.service.Collateral().Symbol,
		"currencies": currencies,
	})
}

// currencyView валюта вместе с кодом в том виде, в каком его ждет контракт
type currencyView struct {
	rates.Currency
	Bytes32 string `json:"bytes32,omitempty"`
}

// ListBanks банки для перевода заема
// @Summary List destination banks
// @Tags reference
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/banks [get]
func (h *LendingHandler) ListBanks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"banks": service.BolivianBanks})
}

func positionID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid position id", "field": "id"})
		return 0, false
	}
	return id, true
}
