package factoringd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"factorvault/core/types"
	"factorvault/native/factoring"
)

// httpInvoiceAdapter reads and mutates the external claim protocol over its
// HTTP API. The adapter is deliberately thin: the engine owns all factoring
// semantics and treats the claim service as the source of truth for payment
// state.
type httpInvoiceAdapter struct {
	baseURL string
	client  *http.Client
}

func newHTTPInvoiceAdapter(baseURL string) *httpInvoiceAdapter {
	return &httpInvoiceAdapter{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// InvoiceDetails implements factoring.InvoiceAdapter.
func (a *httpInvoiceAdapter) InvoiceDetails(id factoring.InvoiceID) (factoring.InvoiceDetails, error) {
	var details factoring.InvoiceDetails
	resp, err := a.client.Get(fmt.Sprintf("%s/invoices/%s", a.baseURL, id.Hex()))
	if err != nil {
		return details, fmt.Errorf("invoice adapter: fetch %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return details, fmt.Errorf("invoice adapter: fetch %s: unexpected status %d", id, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return details, fmt.Errorf("invoice adapter: read %s: %w", id, err)
	}
	if err := json.Unmarshal(body, &details); err != nil {
		return details, fmt.Errorf("invoice adapter: decode %s: %w", id, err)
	}
	return details, nil
}

// TransferInvoiceOwnership implements factoring.InvoiceAdapter.
func (a *httpInvoiceAdapter) TransferInvoiceOwnership(id factoring.InvoiceID, to types.Address) error {
	payload, err := json.Marshal(struct {
		Owner string `json:"owner"`
	}{Owner: to.Hex()})
	if err != nil {
		return err
	}
	resp, err := a.client.Post(
		fmt.Sprintf("%s/invoices/%s/owner", a.baseURL, id.Hex()),
		"application/json",
		bytes.NewReader(payload),
	)
	if err != nil {
		return fmt.Errorf("invoice adapter: transfer %s: %w", id, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("invoice adapter: transfer %s: unexpected status %d", id, resp.StatusCode)
	}
	return nil
}
