// Package fake is an in-memory stand-in for the Agri-Lien write endpoints,
// with the same idempotence the sweeper depends on: a harvest client_ref or a
// scan code submitted twice is answered with platform.ErrDuplicate.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/sebastienamafou-glitch/Agri-Lien-sub000/internal/integrations/platform"
)

type Client struct {
	mu sync.Mutex

	harvests map[string]platform.HarvestSubmission // by client ref
	scans    map[string]platform.ScanSubmission    // by code

	harvestErrs map[string]error // scripted, by client ref
	scanErrs    map[string]error // scripted, by code
	allErr      error            // scripted, every submission

	calls []string
}

func New() *Client {
	return &Client{
		harvests:    make(map[string]platform.HarvestSubmission),
		scans:       make(map[string]platform.ScanSubmission),
		harvestErrs: make(map[string]error),
		scanErrs:    make(map[string]error),
	}
}

// FailHarvest makes every submission with the given client ref fail with err
// until cleared with a nil err.
func (c *Client) FailHarvest(clientRef string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.harvestErrs, clientRef)
		return
	}
	c.harvestErrs[clientRef] = err
}

// FailScan makes every submission with the given code fail with err until
// cleared with a nil err.
func (c *Client) FailScan(code string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err == nil {
		delete(c.scanErrs, code)
		return
	}
	c.scanErrs[code] = err
}

// FailAll makes every submission fail with err until cleared with a nil err.
// Useful when the caller mints its own client refs.
func (c *Client) FailAll(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.allErr = err
}

// SeedScan marks a code as already recorded server-side (e.g. via another
// channel), so the next submission is answered with ErrDuplicate.
func (c *Client) SeedScan(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scans[code] = platform.ScanSubmission{Code: code}
}

func (c *Client) SubmitHarvest(ctx context.Context, sub platform.HarvestSubmission) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, "harvest:"+sub.ClientRef)
	if c.allErr != nil {
		return c.allErr
	}
	if err := c.harvestErrs[sub.ClientRef]; err != nil {
		return err
	}
	if _, ok := c.harvests[sub.ClientRef]; ok {
		return platform.ErrDuplicate
	}
	c.harvests[sub.ClientRef] = sub
	return nil
}

func (c *Client) SubmitScan(ctx context.Context, sub platform.ScanSubmission) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls = append(c.calls, "scan:"+sub.Code)
	if c.allErr != nil {
		return c.allErr
	}
	if err := c.scanErrs[sub.Code]; err != nil {
		return err
	}
	if _, ok := c.scans[sub.Code]; ok {
		return platform.ErrDuplicate
	}
	c.scans[sub.Code] = sub
	return nil
}

// Calls returns the submissions seen so far, in order, as "kind:key" strings.
func (c *Client) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.calls))
	copy(out, c.calls)
	return out
}

// Harvests returns how many distinct harvests the fake server holds.
func (c *Client) Harvests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.harvests)
}

// Scans returns how many distinct scans the fake server holds.
func (c *Client) Scans() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scans)
}

var _ platform.Client = (*Client)(nil)

func (c *Client) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return fmt.Sprintf("fake platform (%d harvests, %d scans, %d calls)", len(c.harvests), len(c.scans), len(c.calls))
}
