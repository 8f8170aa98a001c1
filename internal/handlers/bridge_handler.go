package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/clubpos/backend/internal/config"
	"github.com/clubpos/backend/internal/models"
	"github.com/clubpos/backend/internal/services"
)

// BridgeHandler exposes the card payment bridge over HTTP. The till
// calls begin and status, the terminal integration calls pending and
// resolve.
type BridgeHandler struct {
	service   *services.BridgeService
	config    *config.BridgeConfig
	validator *services.ValidationHelper
}

func NewBridgeHandler(service *services.BridgeService, cfg *config.BridgeConfig) *BridgeHandler {
	return &BridgeHandler{
		service:   service,
		config:    cfg,
		validator: services.NewValidationHelper(),
	}
}

// BeginPayment stages a card payment
// @Summary Begin card payment
// @Description Stage a proposed transaction for the card terminal; fails while another payment is pending
// @Tags bridge
// @Accept json
// @Produce json
// @Param transaction body services.CreateTransactionRequest true "Proposed transaction"
// @Success 201 {object} object{bridgeId=int64}
// @Failure 400 {object} services.ErrorResponse
// @Failure 409 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /bridge/begin [post]
func (h *BridgeHandler) BeginPayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req services.CreateTransactionRequest
	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	params, err := req.ToParams(time.Now())
	if err != nil {
		services.SendErrorResponse(w, err.Error(), http.StatusBadRequest, nil)
		return
	}

	bridgeID, err := h.service.Begin(params)
	if err != nil {
		if errors.Is(err, services.ErrPendingPayment) {
			services.SendErrorResponse(w, "A card payment is already pending", http.StatusConflict, nil)
			return
		}
		log.Printf("[BRIDGE] Failed to begin payment: %v", err)
		services.SendErrorResponse(w, "Failed to begin payment", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]any{"bridgeId": bridgeID})
}

// PollPending returns the staged payment the terminal should charge
// @Summary Poll pending payment
// @Description Return the oldest staged card payment, or null when none is pending
// @Tags bridge
// @Produce json
// @Success 200 {object} object{pending=models.BridgePending}
// @Failure 500 {object} services.ErrorResponse
// @Router /bridge/pending [get]
func (h *BridgeHandler) PollPending(w http.ResponseWriter, r *http.Request) {
	pending, err := h.service.Poll()
	if err != nil {
		log.Printf("[BRIDGE] Failed to poll pending payment: %v", err)
		services.SendErrorResponse(w, "Failed to poll pending payment", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"pending":        pending,
		"terminalId":     h.config.TerminalID,
		"pollIntervalMs": h.config.PollInterval.Milliseconds(),
	})
}

// ResolvePayment posts the terminal's outcome for a staged payment
// @Summary Resolve card payment
// @Description Consume a staged payment with its terminal outcome; a paid outcome commits it to the ledger
// @Tags bridge
// @Accept json
// @Produce json
// @Param id path int true "Bridge reference"
// @Param outcome body models.PaymentOutcome true "Terminal outcome"
// @Success 200 {object} models.BridgePostTransaction
// @Failure 400 {object} services.ErrorResponse
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /bridge/{id}/resolve [post]
func (h *BridgeHandler) ResolvePayment(w http.ResponseWriter, r *http.Request) {
	bridgeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid bridge reference", http.StatusBadRequest, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var outcome models.PaymentOutcome
	if err := dec.Decode(&outcome); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := h.validator.ValidateStruct(&outcome); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	post, err := h.service.Resolve(bridgeID, outcome)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			services.SendErrorResponse(w, "No such pending payment", http.StatusNotFound, nil)
			return
		}
		log.Printf("[BRIDGE] Failed to resolve payment %d: %v", bridgeID, err)
		services.SendErrorResponse(w, "Failed to resolve payment", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(post)
}

// GetStatus returns the recorded outcome of a resolved payment
// @Summary Get payment status
// @Description Look up how a resolved card payment ended
// @Tags bridge
// @Produce json
// @Param id path int true "Bridge reference"
// @Success 200 {object} models.BridgePostTransaction
// @Failure 404 {object} services.ErrorResponse
// @Failure 500 {object} services.ErrorResponse
// @Router /bridge/{id}/status [get]
func (h *BridgeHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	bridgeID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		services.SendErrorResponse(w, "Invalid bridge reference", http.StatusBadRequest, nil)
		return
	}

	post, err := h.service.GetStatus(bridgeID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			services.SendErrorResponse(w, "No outcome recorded for this reference", http.StatusNotFound, nil)
			return
		}
		log.Printf("[BRIDGE] Failed to fetch status for %d: %v", bridgeID, err)
		services.SendErrorResponse(w, "Failed to fetch payment status", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(post)
}
