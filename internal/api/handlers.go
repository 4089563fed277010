package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/mr-tron/base58"
	"go.uber.org/zap"

	"solana-nft-market/internal/domain"
	"solana-nft-market/internal/marketplace"
	"solana-nft-market/internal/processor"
	"solana-nft-market/internal/reporting"
	"solana-nft-market/internal/solana"
	"solana-nft-market/internal/storage"
)

// BidBody is the POST /v1/bids request.
type BidBody struct {
	Marketplace    string `json:"marketplace"` // marketplace name
	CollectionMint string `json:"collection_mint"`
	Mint           string `json:"mint"`
	Taker          string `json:"taker"`
	PriceLamports  uint64 `json:"price_lamports"` // must equal the listing price
	ExpiresAt      int64  `json:"expires_at"`     // unix seconds
	Signature      string `json:"signature"`      // base58 ed25519 over the bid message
}

// SettlementResponse describes a recorded settlement.
type SettlementResponse struct {
	SettlementID  string `json:"settlement_id"`
	Listing       string `json:"listing"`
	Marketplace   string `json:"marketplace"`
	Mint          string `json:"mint"`
	Maker         string `json:"maker"`
	Taker         string `json:"taker"`
	PriceLamports uint64 `json:"price_lamports"`
	PriceSOL      string `json:"price_sol"`
	ReclaimedSOL  string `json:"reclaimed_sol"`
	Slot          uint64 `json:"slot"`
	UnixTimestamp int64  `json:"unix_timestamp"`
}

func settlementResponse(s *domain.Settlement) SettlementResponse {
	return SettlementResponse{
		SettlementID:  s.SettlementID,
		Listing:       s.Listing,
		Marketplace:   s.Marketplace,
		Mint:          s.Mint,
		Maker:         s.Maker,
		Taker:         s.Taker,
		PriceLamports: s.Price,
		PriceSOL:      reporting.FormatSOL(s.Price),
		ReclaimedSOL:  reporting.FormatSOL(s.Reclaimed()),
		Slot:          s.Slot,
		UnixTimestamp: s.UnixTimestamp,
	}
}

func (s *Server) handleBid(w http.ResponseWriter, r *http.Request) {
	var body BidBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, errorBody{Message: "invalid JSON body"})
		return
	}

	req := processor.BidRequest{
		MarketplaceName: body.Marketplace,
		Price:           body.PriceLamports,
		ExpiresAt:       body.ExpiresAt,
	}
	var err error
	if req.CollectionMint, err = parseKey("collection_mint", body.CollectionMint); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Mint, err = parseKey("mint", body.Mint); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Taker, err = parseKey("taker", body.Taker); err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if req.Signature, err = base58.Decode(body.Signature); err != nil || len(req.Signature) == 0 {
		writeBadRequest(w, r, errors.New("signature: expected base58"))
		return
	}

	settlement, err := s.proc.SubmitBid(r.Context(), req)
	if err != nil {
		s.bidsRejected.Add(1)
		s.writeFailure(w, r, err)
		return
	}
	s.bidsSettled.Add(1)
	writeJSON(w, http.StatusOK, settlementResponse(settlement))
}

// ListingResponse describes a listing and its lifecycle state.
type ListingResponse struct {
	Address       string `json:"address"`
	State         string `json:"state"`
	Maker         string `json:"maker,omitempty"`
	Mint          string `json:"mint,omitempty"`
	PriceLamports uint64 `json:"price_lamports,omitempty"`
	PriceSOL      string `json:"price_sol,omitempty"`
	Expiry        int64  `json:"expiry,omitempty"`
	Slot          uint64 `json:"slot"`
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	address, err := parseKey("address", mux.Vars(r)["address"])
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}

	view, err := s.proc.GetListing(r.Context(), address)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}

	resp := ListingResponse{
		Address: view.Address.String(),
		State:   view.State.String(),
		Slot:    view.Clock.Slot,
	}
	if l := view.Listing; l != nil {
		resp.Maker = l.Maker.String()
		resp.Mint = l.Mint.String()
		resp.PriceLamports = l.Price
		resp.PriceSOL = reporting.FormatSOL(l.Price)
		resp.Expiry = l.Expiry
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	if s.settlements == nil {
		writeError(w, r, http.StatusNotImplemented, errorBody{Message: "settlement history is not configured"})
		return
	}
	settlement, err := s.settlements.GetByID(r.Context(), mux.Vars(r)["id"])
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, errorBody{Message: "settlement not found"})
		return
	}
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementResponse(settlement))
}

// DefaultBidValidity is the expiry the derive endpoint proposes when none is given.
const DefaultBidValidity = 10 * time.Minute

// DeriveResponse lists the addresses a bid on a listing touches.
type DeriveResponse struct {
	Marketplace string `json:"marketplace"`
	Treasury    string `json:"treasury"`
	Whitelist   string `json:"whitelist"`
	Listing     string `json:"listing"`
	Vault       string `json:"vault"`
	TakerATA    string `json:"taker_ata,omitempty"`

	// Present when a taker is given and the price is known, either from the
	// price parameter or from the open listing.
	PriceLamports uint64 `json:"price_lamports,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
	BidMessage    string `json:"bid_message,omitempty"` // base58
}

func (s *Server) handleDeriveListing(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	name := q.Get("marketplace")
	collection, err := parseKey("collection_mint", q.Get("collection_mint"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	mint, err := parseKey("mint", q.Get("mint"))
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	var taker solana.PublicKey
	if raw := q.Get("taker"); raw != "" {
		if taker, err = parseKey("taker", raw); err != nil {
			writeBadRequest(w, r, err)
			return
		}
	}

	var price uint64
	if raw := q.Get("price"); raw != "" {
		if price, err = strconv.ParseUint(raw, 10, 64); err != nil || price == 0 {
			writeBadRequest(w, r, errors.New("price: expected positive lamports"))
			return
		}
	}
	expiresAt := s.now().Add(DefaultBidValidity).Unix()
	if raw := q.Get("expires_at"); raw != "" {
		if expiresAt, err = strconv.ParseInt(raw, 10, 64); err != nil {
			writeBadRequest(w, r, errors.New("expires_at: expected unix seconds"))
			return
		}
	}

	if err := marketplace.ValidateName(name); err != nil {
		s.writeFailure(w, r, err)
		return
	}
	accts, err := s.proc.Program().Seeds().DeriveBidAccounts(name, collection, mint, solana.PublicKey{}, taker)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	resp := DeriveResponse{
		Marketplace: accts.Marketplace.String(),
		Treasury:    accts.Treasury.String(),
		Whitelist:   accts.Whitelist.String(),
		Listing:     accts.Listing.String(),
		Vault:       accts.Vault.String(),
	}
	if !taker.IsZero() {
		resp.TakerATA = accts.TakerATA.String()
		if price == 0 {
			if view, err := s.proc.GetListing(r.Context(), accts.Listing); err == nil && view.Listing != nil {
				price = view.Listing.Price
			}
		}
		if price != 0 {
			resp.PriceLamports = price
			resp.ExpiresAt = expiresAt
			resp.BidMessage = base58.Encode(processor.BidMessage(accts.Listing, taker, price, expiresAt))
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// AirdropBody is the POST /v1/dev/airdrop request.
type AirdropBody struct {
	Address  string `json:"address"`
	Lamports uint64 `json:"lamports"`
}

// AirdropResponse reports the new balance.
type AirdropResponse struct {
	Address         string `json:"address"`
	BalanceLamports uint64 `json:"balance_lamports"`
	BalanceSOL      string `json:"balance_sol"`
}

func (s *Server) handleAirdrop(w http.ResponseWriter, r *http.Request) {
	var body AirdropBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, errorBody{Message: "invalid JSON body"})
		return
	}
	address, err := parseKey("address", body.Address)
	if err != nil {
		writeBadRequest(w, r, err)
		return
	}
	if body.Lamports == 0 {
		writeBadRequest(w, r, errors.New("lamports: must be positive"))
		return
	}

	balance, err := s.proc.Airdrop(r.Context(), address, body.Lamports)
	if err != nil {
		s.writeFailure(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AirdropResponse{
		Address:         address.String(),
		BalanceLamports: balance,
		BalanceSOL:      reporting.FormatSOL(balance),
	})
}

func parseKey(field, raw string) (solana.PublicKey, error) {
	if raw == "" {
		return solana.PublicKey{}, fmt.Errorf("%s: required", field)
	}
	key, err := solana.ParsePublicKey(raw)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s: %w", field, err)
	}
	return key, nil
}

// errorBody is the JSON error payload.
type errorBody struct {
	Kind      string `json:"kind,omitempty"`
	Code      int    `json:"code,omitempty"`
	Name      string `json:"name,omitempty"`
	Message   string `json:"message"`
	Account   string `json:"account,omitempty"`
	Check     string `json:"check,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, body errorBody) {
	body.RequestID = r.Header.Get(RequestIDHeader)
	writeJSON(w, status, struct {
		Error errorBody `json:"error"`
	}{body})
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, http.StatusBadRequest, errorBody{Message: err.Error()})
}

// StatusFor maps a classified error kind to an HTTP status.
func StatusFor(kind marketplace.Kind) int {
	switch kind {
	case marketplace.KindAuthorization:
		return http.StatusForbidden
	case marketplace.KindExpiry:
		return http.StatusGone
	case marketplace.KindConfiguration:
		return http.StatusBadRequest
	case marketplace.KindInsufficientFunds:
		return http.StatusPaymentRequired
	case marketplace.KindAccountNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	if me := marketplace.Classify(err); me != nil {
		writeError(w, r, StatusFor(me.Kind), errorBody{
			Kind:    string(me.Kind),
			Code:    me.Code,
			Name:    me.Name,
			Message: me.Message,
			Account: me.Account,
			Check:   me.Check,
		})
		return
	}
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, errorBody{Message: "not found"})
		return
	}

	s.logger.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", r.Header.Get(RequestIDHeader)),
		zap.Error(err))
	writeError(w, r, http.StatusInternalServerError, errorBody{Message: "internal error"})
}
