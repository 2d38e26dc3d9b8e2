// Package api exposes the market over REST and a WebSocket fill feed. It is
// a read/submit surface for a devnet node: transactions arrive here already
// shaped as validated records (signature checking belongs to the outer
// layer).
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"pegmargin/pkg/core"
	"pegmargin/pkg/core/account"
	"pegmargin/pkg/core/orderbook"
)

// Server handles REST and WebSocket connections.
type Server struct {
	market *core.Market
	router *mux.Router
	hub    *Hub
	log    *zap.Logger

	allowedOrigins []string

	// height stamps resting orders; a real node takes it from consensus,
	// the devnet server increments per accepted order.
	height atomic.Uint64
}

func NewServer(market *core.Market, allowedOrigins []string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{
		market:         market,
		router:         mux.NewRouter(),
		hub:            NewHub(log),
		log:            log,
		allowedOrigins: allowedOrigins,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/orderbook", s.handleGetOrderbook).Methods("GET")
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/fills", s.handleGetFills).Methods("GET")

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")
	api.HandleFunc("/leverage", s.handleLeverage).Methods("POST")
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")

	s.router.HandleFunc("/ws", s.hub.serve)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type"},
		AllowCredentials: true,
	})

	s.log.Info("api_server_starting", zap.String("addr", addr))
	return http.ListenAndServe(addr, c.Handler(s.router))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleGetOrderbook(w http.ResponseWriter, r *http.Request) {
	bids, err := s.market.BidLevels()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	asks, err := s.market.AskLevels()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	snapshot := OrderbookSnapshot{
		Bids: make([]PriceLevel, len(bids)),
		Asks: make([]PriceLevel, len(asks)),
	}
	for i, l := range bids {
		snapshot.Bids[i] = PriceLevel{Price: l.Price, Size: l.Size}
	}
	for i, l := range asks {
		snapshot.Asks[i] = PriceLevel{Price: l.Price, Size: l.Size}
	}
	respondJSON(w, snapshot)
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addrHex := mux.Vars(r)["address"]
	if !common.IsHexAddress(addrHex) {
		respondError(w, http.StatusBadRequest, errors.New("invalid address"))
		return
	}
	addr := common.HexToAddress(addrHex)

	acct, found, err := s.market.Account(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	if !found {
		respondError(w, http.StatusNotFound, account.ErrUnknownAccount)
		return
	}

	respondJSON(w, AccountInfo{
		Address:         addr.Hex(),
		Nonce:           acct.Nonce,
		Balance:         acct.Balance,
		OrderMargin:     acct.OrderMargin,
		PositionMargin:  acct.PositionMargin,
		Size:            acct.Size,
		Side:            acct.Side.String(),
		EntryPrice:      acct.EntryPrice,
		DesiredLeverage: acct.DesiredLeverage,
	})
}

func (s *Server) handleGetFills(w http.ResponseWriter, r *http.Request) {
	fills, err := s.market.RecentFills(100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]FillInfo, len(fills))
	for i, f := range fills {
		out[i] = FillInfo{
			Price:  f.Price,
			Size:   f.Size,
			Maker:  f.Maker.Hex(),
			Taker:  f.Taker.Hex(),
			Height: f.Height,
		}
	}
	respondJSON(w, out)
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(req.Creator) {
		respondError(w, http.StatusBadRequest, errors.New("invalid creator address"))
		return
	}

	creator := common.HexToAddress(req.Creator)
	tx := core.PlaceOrderTx{
		Creator: creator,
		Nonce:   req.Nonce,
		Side:    side,
		Price:   req.Price,
		Size:    req.Size,
	}

	height := s.height.Add(1)
	res, err := s.market.PlaceOrder(tx, height)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}

	out := PlaceOrderResponse{
		TotalFillSize: res.TotalFillSize,
		Fills:         make([]FillInfo, len(res.Fills)),
		Rested:        res.NewOrder != nil,
	}
	for i, f := range res.Fills {
		out.Fills[i] = FillInfo{
			Price:  f.Price,
			Size:   f.Size,
			Maker:  f.Creator.Hex(),
			Taker:  creator.Hex(),
			Height: height,
		}
		s.hub.Broadcast(out.Fills[i])
	}
	respondJSON(w, out)
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(req.Creator) {
		respondError(w, http.StatusBadRequest, errors.New("invalid creator address"))
		return
	}

	err = s.market.CancelOrder(core.CancelOrderTx{
		Creator: common.HexToAddress(req.Creator),
		Nonce:   req.Nonce,
		Side:    side,
		Price:   req.Price,
		Height:  req.Height,
	})
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleLeverage(w http.ResponseWriter, r *http.Request) {
	var req LeverageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(req.Creator) {
		respondError(w, http.StatusBadRequest, errors.New("invalid creator address"))
		return
	}

	err := s.market.UpdateLeverage(core.UpdateLeverageTx{
		Creator:  common.HexToAddress(req.Creator),
		Nonce:    req.Nonce,
		Leverage: req.Leverage,
	})
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "updated"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, errors.New("invalid address"))
		return
	}
	if err := s.market.Deposit(common.HexToAddress(req.Address), req.Amount); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "deposited"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if !common.IsHexAddress(req.Address) {
		respondError(w, http.StatusBadRequest, errors.New("invalid address"))
		return
	}
	if err := s.market.Withdraw(common.HexToAddress(req.Address), req.Amount); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, map[string]string{"status": "withdrawn"})
}

func parseSide(s string) (orderbook.Side, error) {
	switch s {
	case "long", "buy":
		return orderbook.Long, nil
	case "short", "sell":
		return orderbook.Short, nil
	default:
		return 0, errors.New("side must be long or short")
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, account.ErrUnknownAccount),
		errors.Is(err, orderbook.ErrOrderNotFound):
		return http.StatusNotFound
	case errors.Is(err, account.ErrInsufficientFunds),
		errors.Is(err, account.ErrInvalidLeverage),
		errors.Is(err, orderbook.ErrInvalidOrder),
		errors.Is(err, core.ErrBadNonce):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func respondJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, code int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
