package factoringd

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"factorvault/core/types"
	"factorvault/native/common"
	"factorvault/native/factoring"
	"factorvault/observability"
	"factorvault/observability/metrics"
	"factorvault/storage"
)

const requestIDHeader = "X-Request-Id"

// Server exposes the vault engine over HTTP. Engine operations are fully
// serialized behind a mutex; the engine itself performs no locking.
type Server struct {
	mu      sync.Mutex
	engine  *factoring.Engine
	store   *storage.VaultStore
	limiter *rate.Limiter
	logger  *slog.Logger

	router http.Handler
}

// NewServer wires the HTTP API around an engine and its backing store. A
// non-positive ratePerSecond disables throttling.
func NewServer(engine *factoring.Engine, store *storage.VaultStore, ratePerSecond int, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{engine: engine, store: store, logger: logger}
	if ratePerSecond > 0 {
		srv.limiter = rate.NewLimiter(rate.Limit(ratePerSecond), ratePerSecond)
	}
	srv.router = srv.buildRouter()
	return srv
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(s.observeMiddleware)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(v1 chi.Router) {
		v1.Use(s.throttleMiddleware)

		v1.Get("/pool", s.handlePoolStatus)
		v1.Get("/price", s.handlePrice)
		v1.Get("/accounts/{addr}", s.handleAccount)

		v1.Post("/deposits", s.handleDeposit)
		v1.Post("/redemptions", s.handleRedeem)
		v1.Post("/withdrawals", s.handleWithdraw)

		v1.Post("/shares/transfer", s.handleShareTransfer)
		v1.Post("/shares/approve", s.handleShareApprove)

		v1.Get("/queue", s.handleQueueList)
		v1.Post("/queue/process", s.handleQueueProcess)
		v1.Post("/queue/{id}/cancel", s.handleQueueCancel)
		v1.Post("/queue/clear", s.handleQueueClear)

		v1.Get("/invoices/{id}", s.handleInvoiceGet)
		v1.Post("/invoices/{id}/approve", s.handleInvoiceApprove)
		v1.Post("/invoices/{id}/fund", s.handleInvoiceFund)
		v1.Get("/invoices/{id}/unfactor", s.handleUnfactorPreview)
		v1.Post("/invoices/{id}/unfactor", s.handleUnfactor)
		v1.Post("/invoices/{id}/impair", s.handleImpair)
		v1.Post("/invoices/{id}/reconcile", s.handleReconcileOne)
		v1.Post("/reconcile", s.handleReconcileAll)

		v1.Route("/admin", func(admin chi.Router) {
			admin.Post("/params", s.handleSetParams)
			admin.Post("/underwriter", s.handleSetUnderwriter)
			admin.Post("/queue-max", s.handleSetQueueMax)
			admin.Post("/reserve", s.handleFundReserve)
			admin.Post("/fees/{kind}", s.handleWithdrawFees)
		})
	})

	return r
}

// --- middleware ------------------------------------------------------------

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) observeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		observability.APIMetrics().Observe(routePattern(r), ww.Status(), time.Since(start))
	})
}

func (s *Server) throttleMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow() {
			observability.APIMetrics().RecordThrottle(routePattern(r))
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routePattern(r *http.Request) string {
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

// --- share surface ----------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handlePoolStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	status, err := s.engine.PoolStatus()
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	refreshPoolGauges(status)
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handlePrice(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	price, err := s.engine.PricePerShare()
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"pricePerShare": price.String()})
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	addr, err := types.ParseAddress(chi.URLParam(r, "addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	shares, err := s.engine.ShareBalanceOf(addr)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": addr.Hex(),
		"shares":  shares.String(),
	})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Depositor string `json:"depositor"`
		Amount    string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	depositor, err := types.ParseAddress(req.Depositor)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	shares, err := s.engine.Deposit(depositor, amount)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"shares": shares.String()})
}

type redemptionRequest struct {
	Caller   string `json:"caller"`
	Owner    string `json:"owner"`
	Receiver string `json:"receiver"`
	Shares   string `json:"shares,omitempty"`
	Assets   string `json:"assets,omitempty"`
}

func (req redemptionRequest) parties() (caller, owner, receiver types.Address, err error) {
	if caller, err = types.ParseAddress(req.Caller); err != nil {
		return
	}
	if owner, err = types.ParseAddress(req.Owner); err != nil {
		return
	}
	receiver, err = types.ParseAddress(req.Receiver)
	return
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req redemptionRequest
	if !decode(w, r, &req) {
		return
	}
	caller, owner, receiver, err := req.parties()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	shares, err := parseAmount(req.Shares)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	assets, queueID, err := s.engine.RedeemAndOrQueue(caller, owner, receiver, shares)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptionResult(assets, queueID))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req redemptionRequest
	if !decode(w, r, &req) {
		return
	}
	caller, owner, receiver, err := req.parties()
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	assets, err := parseAmount(req.Assets)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	paid, queueID, err := s.engine.WithdrawAndOrQueue(caller, owner, receiver, assets)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, redemptionResult(paid, queueID))
}

func redemptionResult(assets *big.Int, queueID uint64) map[string]any {
	if queueID != 0 {
		return map[string]any{"queued": true, "queueId": queueID}
	}
	return map[string]any{"queued": false, "assets": assets.String()}
}

func (s *Server) handleShareTransfer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	from, err := types.ParseAddress(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	to, err := types.ParseAddress(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.TransferShares(from, to, amount)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleShareApprove(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Owner   string `json:"owner"`
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	owner, err := types.ParseAddress(req.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	spender, err := types.ParseAddress(req.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.ApproveShares(owner, spender, amount)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// --- redemption queue --------------------------------------------------------

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	queue, err := s.store.Queue()
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	entries := []*factoring.QueuedRedemption{}
	if queue != nil {
		entries = queue.Entries
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleQueueProcess(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MaxItems int `json:"maxItems"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.mu.Lock()
	processed, err := s.engine.ProcessRedemptionQueue(req.MaxItems)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"processed": processed})
}

func (s *Server) handleQueueCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("queue id: %w", err))
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.CancelQueuedRedemption(caller, id)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleQueueClear(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.ClearRedemptionQueue(caller)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// --- invoice lifecycle --------------------------------------------------------

func invoiceID(r *http.Request) (factoring.InvoiceID, error) {
	return factoring.ParseInvoiceID(chi.URLParam(r, "id"))
}

func (s *Server) handleInvoiceGet(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	inv, err := s.store.Invoice(id)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, factoring.ErrInvoiceNotFound)
		return
	}
	writeJSON(w, http.StatusOK, inv)
}

func (s *Server) handleInvoiceApprove(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Caller    string             `json:"caller"`
		Terms     factoring.FeeTerms `json:"terms"`
		Principal string             `json:"principal,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var principal *big.Int
	if strings.TrimSpace(req.Principal) != "" {
		if principal, err = parseAmount(req.Principal); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.mu.Lock()
	err = s.engine.ApproveInvoice(caller, id, req.Terms, principal)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

func (s *Server) handleInvoiceFund(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Caller     string `json:"caller"`
		UpfrontBps uint64 `json:"upfrontBps"`
		Payout     string `json:"payout"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	payout := caller
	if strings.TrimSpace(req.Payout) != "" {
		if payout, err = types.ParseAddress(req.Payout); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	s.mu.Lock()
	net, err := s.engine.FundInvoice(caller, id, req.UpfrontBps, payout)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"fundedAmountNet": net.String()})
}

func (s *Server) handleUnfactorPreview(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	price, err := s.engine.PreviewUnfactor(id)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"price": price.String()})
}

func (s *Server) handleUnfactor(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var req struct {
		Caller string `json:"caller"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	price, err := s.engine.UnfactorInvoice(caller, id)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"repaid": price.String()})
}

func (s *Server) handleImpair(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.ImpairInvoice(id)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "impaired"})
}

func (s *Server) handleReconcileOne(w http.ResponseWriter, r *http.Request) {
	id, err := invoiceID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	changed, err := s.engine.ReconcileInvoice(id)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"changed": changed})
}

func (s *Server) handleReconcileAll(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	s.mu.Lock()
	changed, err := s.engine.ReconcileActivePaidInvoices()
	s.mu.Unlock()
	metrics.Factoring().ObserveSweep(time.Since(start))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"changed": changed})
}

// --- admin surface -------------------------------------------------------------

func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string           `json:"caller"`
		Params factoring.Params `json:"params"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.SetParams(caller, req.Params)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetUnderwriter(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller      string `json:"caller"`
		Underwriter string `json:"underwriter"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	underwriter, err := types.ParseAddress(req.Underwriter)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.SetUnderwriter(caller, underwriter)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSetQueueMax(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Max    uint32 `json:"max"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.SetQueueMaxSize(caller, req.Max)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleFundReserve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Caller string `json:"caller"`
		Amount string `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Lock()
	err = s.engine.FundImpairReserve(caller, amount)
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleWithdrawFees(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	var req struct {
		Caller    string `json:"caller"`
		Recipient string `json:"recipient"`
	}
	if !decode(w, r, &req) {
		return
	}
	caller, err := types.ParseAddress(req.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	recipient := caller
	if strings.TrimSpace(req.Recipient) != "" {
		if recipient, err = types.ParseAddress(req.Recipient); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	var amount *big.Int
	s.mu.Lock()
	switch kind {
	case "admin":
		amount, err = s.engine.WithdrawAdminFees(caller, recipient)
	case "protocol":
		amount, err = s.engine.WithdrawProtocolFees(caller)
	case "spread":
		amount, err = s.engine.WithdrawSpreadGains(caller, recipient)
	case "tax":
		amount, err = s.engine.WithdrawTax(caller, recipient)
	default:
		err = fmt.Errorf("unknown fee kind %q", kind)
		s.mu.Unlock()
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.mu.Unlock()
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"amount": amount.String()})
}

// Sweep runs one reconciliation pass, drains the queue, and refreshes the
// pool gauges. The daemon calls it on a timer.
func (s *Server) Sweep() (int, error) {
	start := time.Now()
	s.mu.Lock()
	changed, err := s.engine.ReconcileActivePaidInvoices()
	var status *factoring.PoolStatus
	if err == nil {
		status, err = s.engine.PoolStatus()
	}
	s.mu.Unlock()
	metrics.Factoring().ObserveSweep(time.Since(start))
	if err != nil {
		return changed, err
	}
	refreshPoolGauges(status)
	return changed, nil
}

// --- plumbing --------------------------------------------------------------------

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return false
	}
	return true
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, errors.New("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return value, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// fail maps engine errors onto HTTP status codes and logs server faults.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			slog.String("route", routePattern(r)),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, status, err)
}

func statusForError(err error) int {
	var insufficientFunds *factoring.InsufficientFundsError
	var insufficientLiquidity *factoring.InsufficientLiquidityError
	var queueFull *factoring.QueueCapacityError
	switch {
	case errors.Is(err, factoring.ErrInvoiceNotFound),
		errors.Is(err, factoring.ErrQueueEntryNotFound):
		return http.StatusNotFound
	case errors.Is(err, factoring.ErrCallerNotOwner),
		errors.Is(err, factoring.ErrCallerNotAuthor),
		errors.Is(err, factoring.ErrDepositNotAllowed),
		errors.Is(err, factoring.ErrRedeemNotAllowed),
		errors.Is(err, factoring.ErrFactorNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, common.ErrModulePaused):
		return http.StatusServiceUnavailable
	case errors.As(err, &insufficientFunds),
		errors.As(err, &insufficientLiquidity),
		errors.As(err, &queueFull):
		return http.StatusConflict
	case errors.Is(err, factoring.ErrAmountZero),
		errors.Is(err, factoring.ErrSharesRoundToZero),
		errors.Is(err, factoring.ErrInvalidPercentage),
		errors.Is(err, factoring.ErrPrincipalZero),
		errors.Is(err, factoring.ErrAllowanceExceeded),
		errors.Is(err, factoring.ErrInsufficientShares),
		errors.Is(err, factoring.ErrInvoiceNotApproved),
		errors.Is(err, factoring.ErrApprovalExpired),
		errors.Is(err, factoring.ErrInvoiceNotFunded),
		errors.Is(err, factoring.ErrInvoiceAlreadyPaid),
		errors.Is(err, factoring.ErrInvoiceNotImpaired),
		errors.Is(err, factoring.ErrInvoiceAlreadyImpaired):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func refreshPoolGauges(status *factoring.PoolStatus) {
	if status == nil {
		return
	}
	reg := metrics.Factoring()
	reg.SetPricePerShare(bigToGauge(status.PricePerShare))
	reg.SetCapitalAccount(bigToGauge(status.CapitalAccount))
	reg.SetFreeLiquidity(bigToGauge(status.FreeLiquidity))
	reg.SetDeployedPrincipal(bigToGauge(status.DeployedPrincipal))
	reg.SetQueueDepth(status.QueueLength)
}

func bigToGauge(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	out, _ := new(big.Float).SetInt(value).Float64()
	return out
}
