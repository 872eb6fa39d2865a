package handler

import (
	"net/http"

	"github.com/iho/coinledger/internal/adapter/http/dto"
	"github.com/iho/coinledger/internal/adapter/http/middleware"
	"github.com/iho/coinledger/internal/usecase"
)

// MeHandler serves the authenticated owner's default wallet. Routes using it
// must sit behind middleware.AuthMiddleware.
type MeHandler struct {
	walletUC walletService
	ledgerUC ledgerService
}

// NewMeHandler creates a new MeHandler.
func NewMeHandler(walletUC walletService, ledgerUC ledgerService) *MeHandler {
	return &MeHandler{walletUC: walletUC, ledgerUC: ledgerUC}
}

// Coins returns the balance of the caller's default wallet, provisioning it
// on first use.
func (h *MeHandler) Coins(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	wallet, err := h.walletUC.ProvisionOwner(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, r, "failed to load wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{WalletID: wallet.ID, Balance: wallet.Balance})
}

// Click adds one coin to the caller's default wallet.
func (h *MeHandler) Click(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	wallet, err := h.walletUC.ProvisionOwner(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, r, "failed to load wallet", err)
		return
	}

	balance, err := h.ledgerUC.Increment(r.Context(), wallet.ID, 1)
	if err != nil {
		writeDomainError(w, r, "failed to increment wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{WalletID: wallet.ID, Balance: balance})
}

// Transfer sends coins from the caller's default wallet to the recipient
// owner's default wallet.
func (h *MeHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := middleware.OwnerIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "")
		return
	}

	var req dto.OwnerTransferRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	sender, err := h.walletUC.DefaultWallet(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, r, "failed to resolve sender wallet", err)
		return
	}

	recipient, err := h.walletUC.DefaultWallet(r.Context(), req.RecipientOwnerID)
	if err != nil {
		writeDomainError(w, r, "failed to resolve recipient wallet", err)
		return
	}

	transfer(w, r, h.ledgerUC, usecase.TransferInput{
		SenderWalletID:    sender.ID,
		RecipientWalletID: recipient.ID,
		Amount:            req.Amount,
	})
}
