package factoringd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"factorvault/core/types"
	"factorvault/native/factoring"
	"factorvault/storage"
)

func timeNowUnix() int64 { return time.Now().Unix() }

func testAddr(suffix byte) types.Address {
	var addr types.Address
	addr[types.AddressLength-1] = suffix
	return addr
}

func testInvoiceID(suffix byte) factoring.InvoiceID {
	var id factoring.InvoiceID
	id[len(id)-1] = suffix
	return id
}

// claimStub is a fake claim protocol service backing the HTTP invoice
// adapter during tests.
type claimStub struct {
	mu      sync.Mutex
	details map[string]factoring.InvoiceDetails
	owners  map[string]string
}

func newClaimStub() *claimStub {
	return &claimStub{
		details: make(map[string]factoring.InvoiceDetails),
		owners:  make(map[string]string),
	}
}

func (c *claimStub) set(id factoring.InvoiceID, details factoring.InvoiceDetails) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.details[id.Hex()] = details
}

func (c *claimStub) markPaid(id factoring.InvoiceID, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	details := c.details[id.Hex()]
	details.IsPaid = true
	details.PaidAmount = new(big.Int).Set(amount)
	c.details[id.Hex()] = details
}

func (c *claimStub) owner(id factoring.InvoiceID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owners[id.Hex()]
}

func (c *claimStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 2 || parts[0] != "invoices" {
		http.NotFound(w, r)
		return
	}
	id := parts[1]
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case r.Method == http.MethodGet:
		details, ok := c.details[id]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_ = json.NewEncoder(w).Encode(details)
	case r.Method == http.MethodPost && len(parts) == 3 && parts[2] == "owner":
		var req struct {
			Owner string `json:"owner"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		c.owners[id] = req.Owner
		w.WriteHeader(http.StatusNoContent)
	default:
		http.NotFound(w, r)
	}
}

type daemonHarness struct {
	server *Server
	ledger *storage.TokenLedger
	stub   *claimStub

	pool        types.Address
	owner       types.Address
	underwriter types.Address
}

func newDaemonHarness(t *testing.T) *daemonHarness {
	t.Helper()
	stub := newClaimStub()
	stubServer := httptest.NewServer(stub)
	t.Cleanup(stubServer.Close)

	db := storage.NewMemDB()
	store := storage.NewVaultStore(db)
	ledger := storage.NewTokenLedger(db)

	h := &daemonHarness{
		ledger:      ledger,
		stub:        stub,
		pool:        testAddr(0xf0),
		owner:       testAddr(0x01),
		underwriter: testAddr(0x02),
	}

	engine := factoring.NewEngine(h.pool, h.owner)
	engine.SetState(store)
	engine.SetAssetToken(ledger.Bind(h.pool))
	engine.SetInvoiceAdapter(newHTTPInvoiceAdapter(stubServer.URL))
	engine.SetEmitter(NewEmitter(slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))))
	if err := engine.SetUnderwriter(h.owner, h.underwriter); err != nil {
		t.Fatalf("set underwriter: %v", err)
	}

	h.server = NewServer(engine, store, 0, slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)))
	return h
}

func (h *daemonHarness) mintAndApprove(t *testing.T, addr types.Address, amount int64) {
	t.Helper()
	if err := h.ledger.Mint(addr, big.NewInt(amount)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := h.ledger.Approve(addr, h.pool, big.NewInt(amount)); err != nil {
		t.Fatalf("approve: %v", err)
	}
}

func (h *daemonHarness) request(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("{}")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	out := map[string]any{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestDaemonDepositAndPoolStatus(t *testing.T) {
	h := newDaemonHarness(t)
	depositor := testAddr(0x10)
	h.mintAndApprove(t, depositor, 2_000_000)

	rec := h.request(t, http.MethodPost, "/v1/deposits",
		fmt.Sprintf(`{"depositor":%q,"amount":"2000000"}`, depositor.Hex()))
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["shares"]; got != "2000000" {
		t.Fatalf("shares = %v, want 2000000", got)
	}

	rec = h.request(t, http.MethodGet, "/v1/pool", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("pool status = %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if got := body["freeLiquidity"]; got != float64(2_000_000) {
		t.Fatalf("freeLiquidity = %v, want 2000000", got)
	}
	if got := body["totalShares"]; got != float64(2_000_000) {
		t.Fatalf("totalShares = %v, want 2000000", got)
	}
}

func TestDaemonInvoiceLifecycle(t *testing.T) {
	h := newDaemonHarness(t)
	depositor := testAddr(0x10)
	creditor := testAddr(0x20)
	h.mintAndApprove(t, depositor, 2_000_000)

	rec := h.request(t, http.MethodPost, "/v1/deposits",
		fmt.Sprintf(`{"depositor":%q,"amount":"2000000"}`, depositor.Hex()))
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d body %s", rec.Code, rec.Body.String())
	}

	id := testInvoiceID(0x01)
	h.stub.set(id, factoring.InvoiceDetails{
		Creditor:      creditor,
		Debtor:        testAddr(0x30),
		InvoiceAmount: big.NewInt(1_000_000),
		PaidAmount:    big.NewInt(0),
		DueDate:       timeNowUnix() + 30*24*60*60,
	})

	approveBody := fmt.Sprintf(
		`{"caller":%q,"terms":{"targetYieldBps":1200,"spreadBps":200,"maxUpfrontBps":9000,"minDays":30}}`,
		h.underwriter.Hex())
	rec = h.request(t, http.MethodPost, "/v1/invoices/"+id.Hex()+"/approve", approveBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d body %s", rec.Code, rec.Body.String())
	}

	fundBody := fmt.Sprintf(`{"caller":%q,"upfrontBps":9000}`, creditor.Hex())
	rec = h.request(t, http.MethodPost, "/v1/invoices/"+id.Hex()+"/fund", fundBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("fund status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["fundedAmountNet"]; got != "880992" {
		t.Fatalf("fundedAmountNet = %v, want 880992", got)
	}
	if got := h.stub.owner(id); got != h.pool.Hex() {
		t.Fatalf("claim owner = %q, want pool %q", got, h.pool.Hex())
	}
	net, err := h.ledger.BalanceOf(creditor)
	if err != nil {
		t.Fatalf("creditor balance: %v", err)
	}
	if net.Cmp(big.NewInt(880_992)) != 0 {
		t.Fatalf("creditor balance = %s, want 880992", net)
	}

	// Debtor pays the face value into the pool, then the webhook fires.
	h.stub.markPaid(id, big.NewInt(1_000_000))
	if err := h.ledger.Mint(h.pool, big.NewInt(1_000_000)); err != nil {
		t.Fatalf("mint payment: %v", err)
	}
	rec = h.request(t, http.MethodPost, "/v1/invoices/"+id.Hex()+"/reconcile", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("reconcile status = %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody(t, rec)["changed"]; got != true {
		t.Fatalf("changed = %v, want true", got)
	}

	balance, err := h.ledger.BalanceOf(creditor)
	if err != nil {
		t.Fatalf("creditor balance: %v", err)
	}
	if balance.Cmp(big.NewInt(980_992)) != 0 {
		t.Fatalf("creditor balance after kickback = %s, want 980992", balance)
	}

	rec = h.request(t, http.MethodGet, "/v1/invoices/"+id.Hex(), "")
	if rec.Code != http.StatusOK {
		t.Fatalf("invoice get status = %d", rec.Code)
	}
	var inv factoring.Invoice
	if err := json.Unmarshal(rec.Body.Bytes(), &inv); err != nil {
		t.Fatalf("decode invoice: %v", err)
	}
	if inv.Status != factoring.InvoicePaid {
		t.Fatalf("invoice status = %s, want paid", inv.Status)
	}
}

func TestDaemonRedemptionQueuesWhenIlliquid(t *testing.T) {
	h := newDaemonHarness(t)
	depositor := testAddr(0x10)
	creditor := testAddr(0x20)
	h.mintAndApprove(t, depositor, 1_000_000)

	rec := h.request(t, http.MethodPost, "/v1/deposits",
		fmt.Sprintf(`{"depositor":%q,"amount":"1000000"}`, depositor.Hex()))
	if rec.Code != http.StatusOK {
		t.Fatalf("deposit status = %d body %s", rec.Code, rec.Body.String())
	}

	id := testInvoiceID(0x02)
	h.stub.set(id, factoring.InvoiceDetails{
		Creditor:      creditor,
		Debtor:        testAddr(0x30),
		InvoiceAmount: big.NewInt(1_000_000),
		PaidAmount:    big.NewInt(0),
		DueDate:       timeNowUnix() + 30*24*60*60,
	})
	approveBody := fmt.Sprintf(
		`{"caller":%q,"terms":{"targetYieldBps":1200,"spreadBps":200,"maxUpfrontBps":9000,"minDays":30}}`,
		h.underwriter.Hex())
	if rec := h.request(t, http.MethodPost, "/v1/invoices/"+id.Hex()+"/approve", approveBody); rec.Code != http.StatusOK {
		t.Fatalf("approve status = %d body %s", rec.Code, rec.Body.String())
	}
	fundBody := fmt.Sprintf(`{"caller":%q,"upfrontBps":9000}`, creditor.Hex())
	if rec := h.request(t, http.MethodPost, "/v1/invoices/"+id.Hex()+"/fund", fundBody); rec.Code != http.StatusOK {
		t.Fatalf("fund status = %d body %s", rec.Code, rec.Body.String())
	}

	// Free liquidity is now well under the full redemption value.
	redeemBody := fmt.Sprintf(`{"caller":%q,"owner":%q,"receiver":%q,"shares":"1000000"}`,
		depositor.Hex(), depositor.Hex(), depositor.Hex())
	rec = h.request(t, http.MethodPost, "/v1/redemptions", redeemBody)
	if rec.Code != http.StatusOK {
		t.Fatalf("redeem status = %d body %s", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["queued"] != true {
		t.Fatalf("queued = %v, want true", body["queued"])
	}
	if body["queueId"] == nil {
		t.Fatalf("expected queueId in %v", body)
	}

	rec = h.request(t, http.MethodGet, "/v1/queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("queue list status = %d", rec.Code)
	}
	entries, ok := decodeBody(t, rec)["entries"].([]any)
	if !ok || len(entries) != 1 {
		t.Fatalf("queue entries = %v, want one", entries)
	}
}

func TestDaemonErrorMapping(t *testing.T) {
	h := newDaemonHarness(t)

	rec := h.request(t, http.MethodGet, "/v1/invoices/"+testInvoiceID(0x7f).Hex(), "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown invoice status = %d, want 404", rec.Code)
	}

	rec = h.request(t, http.MethodPost, "/v1/deposits", `{"depositor":"nonsense","amount":"1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad address status = %d, want 400", rec.Code)
	}

	stranger := testAddr(0x66)
	body := fmt.Sprintf(`{"caller":%q,"params":{"adminFeeBps":50,"protocolFeeBps":25,"taxBps":0,"reserveBps":0,"gracePeriodDays":60,"approvalDurationSeconds":259200,"maxQueueLength":64,"queueDrainLimit":16}}`, stranger.Hex())
	rec = h.request(t, http.MethodPost, "/v1/admin/params", body)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner params status = %d body %s, want 403", rec.Code, rec.Body.String())
	}

	rec = h.request(t, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestEmitterLogsEventAttributes(t *testing.T) {
	var buf bytes.Buffer
	emitter := NewEmitter(slog.New(slog.NewTextHandler(&buf, nil)))
	emitter.Emit(&factoring.DepositMade{
		Depositor: testAddr(0x10),
		Assets:    big.NewInt(500),
		Shares:    big.NewInt(500),
	})
	logged := buf.String()
	if !strings.Contains(logged, factoring.TypeDepositMade) {
		t.Fatalf("log %q missing event type", logged)
	}
	if !strings.Contains(logged, "500") {
		t.Fatalf("log %q missing amount attribute", logged)
	}
}
