package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/iho/coinledger/internal/adapter/http/dto"
	"github.com/iho/coinledger/internal/domain"
	"github.com/iho/coinledger/internal/usecase"
)

type walletService interface {
	CreateWallet(ctx context.Context, input usecase.CreateWalletInput) (*domain.Wallet, error)
	GetWallet(ctx context.Context, id int64) (*domain.Wallet, error)
	ListWallets(ctx context.Context, ownerID int64) ([]*domain.Wallet, error)
	DefaultWallet(ctx context.Context, ownerID int64) (*domain.Wallet, error)
	ProvisionOwner(ctx context.Context, ownerID int64) (*domain.Wallet, error)
}

type ledgerService interface {
	Increment(ctx context.Context, walletID, amount int64) (int64, error)
	Transfer(ctx context.Context, input usecase.TransferInput) (*domain.Transaction, error)
	ListTransactions(ctx context.Context, input usecase.ListTransactionsInput) ([]*domain.Transaction, error)
}

// WalletHandler handles wallet-related HTTP requests.
type WalletHandler struct {
	walletUC walletService
	ledgerUC ledgerService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletUC walletService, ledgerUC ledgerService) *WalletHandler {
	return &WalletHandler{walletUC: walletUC, ledgerUC: ledgerUC}
}

// Create creates a new wallet.
func (h *WalletHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateWalletRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	wallet, err := h.walletUC.CreateWallet(r.Context(), req.ToUseCaseInput())
	if err != nil {
		writeDomainError(w, r, "failed to create wallet", err)
		return
	}

	writeJSON(w, http.StatusCreated, dto.WalletFromDomain(wallet))
}

// Get retrieves a wallet by ID.
func (h *WalletHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet ID", err.Error())
		return
	}

	wallet, err := h.walletUC.GetWallet(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, "failed to get wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromDomain(wallet))
}

// ListByOwner lists an owner's wallets.
func (h *WalletHandler) ListByOwner(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseIDParam(r, "ownerID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner ID", err.Error())
		return
	}

	wallets, err := h.walletUC.ListWallets(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, r, "failed to list wallets", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletsFromDomain(wallets))
}

// Increment adds coins to a wallet. An empty body adds one coin.
func (h *WalletHandler) Increment(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet ID", err.Error())
		return
	}

	var req dto.IncrementRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	balance, err := h.ledgerUC.Increment(r.Context(), id, req.AmountOrDefault())
	if err != nil {
		writeDomainError(w, r, "failed to increment wallet", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.BalanceResponse{WalletID: id, Balance: balance})
}

// ListTransactions lists log records involving a wallet.
func (h *WalletHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid wallet ID", err.Error())
		return
	}

	listTransactions(w, r, h.ledgerUC, &id)
}

// Provision returns the owner's default wallet, creating it on first use.
func (h *WalletHandler) Provision(w http.ResponseWriter, r *http.Request) {
	ownerID, err := parseIDParam(r, "ownerID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid owner ID", err.Error())
		return
	}

	wallet, err := h.walletUC.ProvisionOwner(r.Context(), ownerID)
	if err != nil {
		writeDomainError(w, r, "failed to provision owner", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.WalletFromDomain(wallet))
}

func listTransactions(w http.ResponseWriter, r *http.Request, ledgerUC ledgerService, walletID *int64) {
	since, err := parseTimeQuery(r, "since")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	until, err := parseTimeQuery(r, "until")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid query", err.Error())
		return
	}

	records, err := ledgerUC.ListTransactions(r.Context(), usecase.ListTransactionsInput{
		WalletID: walletID,
		Since:    since,
		Until:    until,
		Limit:    parseIntQuery(r, "limit", usecase.DefaultListLimit),
		Offset:   parseIntQuery(r, "offset", 0),
	})
	if err != nil {
		writeDomainError(w, r, "failed to list transactions", err)
		return
	}

	writeJSON(w, http.StatusOK, dto.TransactionsFromDomain(records))
}
