package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/integrations/platform"
)

const (
	harvestsPath = "/api/v1/harvests"
	scansPath    = "/api/v1/scans"
)

type Client struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:9000"
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc: &http.Client{
			Timeout: timeout,
		},
	}
}

type harvestReq struct {
	ClientRef   string `json:"clientRef"`
	ProducerRef string `json:"producerRef"`
	PlotRef     string `json:"plotRef"`
	Quantity    string `json:"quantity"`
	CropType    string `json:"cropType"`
	Unit        string `json:"unit"`
	CapturedAt  string `json:"capturedAt"`
}

type scanReq struct {
	Code       string `json:"code"`
	CapturedAt string `json:"capturedAt"`
}

type apiResp struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (c *Client) SubmitHarvest(ctx context.Context, sub platform.HarvestSubmission) error {
	return c.post(ctx, harvestsPath, harvestReq{
		ClientRef:   sub.ClientRef,
		ProducerRef: sub.ProducerRef,
		PlotRef:     sub.PlotRef,
		Quantity:    sub.Quantity.String(),
		CropType:    sub.CropType,
		Unit:        sub.Unit,
		CapturedAt:  sub.CapturedAt.UTC().Format(time.RFC3339),
	})
}

func (c *Client) SubmitScan(ctx context.Context, sub platform.ScanSubmission) error {
	return c.post(ctx, scansPath, scanReq{
		Code:       sub.Code,
		CapturedAt: sub.CapturedAt.UTC().Format(time.RFC3339),
	})
}

func (c *Client) post(ctx context.Context, path string, payload any) error {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return errors.Wrap(err, "parse base url")
	}
	u.Path = path

	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "new request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 == 2 {
		return nil
	}

	var r apiResp
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	_ = json.Unmarshal(raw, &r)

	switch {
	case resp.StatusCode == http.StatusConflict || r.Status == "duplicate":
		return platform.ErrDuplicate
	case resp.StatusCode == http.StatusUnprocessableEntity || resp.StatusCode == http.StatusBadRequest:
		if r.Message != "" {
			return errors.Wrap(platform.ErrRejected, r.Message)
		}
		return platform.ErrRejected
	default:
		return fmt.Errorf("agrilien api http %d", resp.StatusCode)
	}
}
