package handler

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/iho/coinledger/internal/adapter/http/dto"
	"github.com/iho/coinledger/internal/domain"
	"github.com/iho/coinledger/internal/usecase"
)

// TransferHandler handles transfer-related HTTP requests.
type TransferHandler struct {
	ledgerUC ledgerService
}

// NewTransferHandler creates a new TransferHandler.
func NewTransferHandler(ledgerUC ledgerService) *TransferHandler {
	return &TransferHandler{ledgerUC: ledgerUC}
}

// Create moves coins between two wallets.
func (h *TransferHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	transfer(w, r, h.ledgerUC, req.ToUseCaseInput())
}

// List lists log records across all wallets.
func (h *TransferHandler) List(w http.ResponseWriter, r *http.Request) {
	listTransactions(w, r, h.ledgerUC, nil)
}

// transfer writes 201 with the record, or 202 when the balances moved but
// the record could not be logged.
func transfer(w http.ResponseWriter, r *http.Request, ledgerUC ledgerService, input usecase.TransferInput) {
	record, err := ledgerUC.Transfer(r.Context(), input)

	var auditErr *domain.AuditWriteError
	if errors.As(err, &auditErr) {
		zerolog.Ctx(r.Context()).Error().
			Err(auditErr.Err).
			Str("transaction_id", auditErr.Transaction.ID).
			Msg("transfer committed but not logged")

		resp := dto.TransactionFromDomain(auditErr.Transaction)
		resp.AuditError = auditErr.Err.Error()
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	if err != nil {
		writeDomainError(w, r, "failed to create transfer", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.TransactionFromDomain(record))
}
