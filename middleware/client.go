package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/omni402/omnitab/types"
)

// FacilitatorClient calls the facilitator's verify/settle HTTP contract on
// behalf of a merchant application.
type FacilitatorClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewFacilitatorClient returns a client with a bounded request timeout.
func NewFacilitatorClient(baseURL string) *FacilitatorClient {
	return &FacilitatorClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Verify posts the request to /verify.
func (f *FacilitatorClient) Verify(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	var resp types.VerifyResponse
	if err := f.post(ctx, "/verify", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Settle posts the request to /settle.
func (f *FacilitatorClient) Settle(ctx context.Context, req *types.VerifyRequest) (*types.SettleResponse, error) {
	var resp types.SettleResponse
	if err := f.post(ctx, "/settle", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Supported fetches the facilitator's accepted schemes and source chains.
func (f *FacilitatorClient) Supported(ctx context.Context) (*types.SupportedResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.BaseURL+"/supported", nil)
	if err != nil {
		return nil, err
	}

	httpResp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("facilitator request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("facilitator returned status %d", httpResp.StatusCode)
	}

	var resp types.SupportedResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode facilitator response: %w", err)
	}
	return &resp, nil
}

// post sends a JSON body and decodes the JSON result. The facilitator
// answers 200 for both valid and invalid outcomes and 400 for malformed
// requests, so both carry a decodable body.
func (f *FacilitatorClient) post(ctx context.Context, path string, body, out any) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := f.HTTPClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("facilitator request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK && httpResp.StatusCode != http.StatusBadRequest {
		return fmt.Errorf("facilitator returned status %d", httpResp.StatusCode)
	}

	if err := json.NewDecoder(httpResp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode facilitator response: %w", err)
	}
	return nil
}
