// Package platform defines the contract of the Agri-Lien server-of-record
// write endpoints as consumed by the device. The server itself (schema,
// pricing, auth) is an external collaborator.
package platform

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicate means the server already holds the logical record. The
	// sweeper counts it as success: the effect landed earlier.
	ErrDuplicate = errors.New("already recorded on the server")

	// ErrRejected is a business validation rejection unrelated to duplication.
	// The record stays queued and is retried later.
	ErrRejected = errors.New("rejected by the server")
)

type HarvestSubmission struct {
	ClientRef   string
	ProducerRef string
	PlotRef     string
	Quantity    decimal.Decimal
	CropType    string
	Unit        string
	CapturedAt  time.Time
}

// ScanSubmission carries only the code; the in-progress harvest context is
// resolved server-side from the authenticated actor.
type ScanSubmission struct {
	Code       string
	CapturedAt time.Time
}

type Client interface {
	SubmitHarvest(ctx context.Context, sub HarvestSubmission) error
	SubmitScan(ctx context.Context, sub ScanSubmission) error
}
