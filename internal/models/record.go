package models

import (
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Crop tags accepted by the platform (can be extended).
const (
	CropCacao    = "CACAO"
	CropCafe     = "CAFE"
	CropAnacarde = "ANACARDE"
	CropHevea    = "HEVEA"
	CropPalmier  = "PALMIER"
)

// Unit-of-measure tags.
const (
	UnitKilogram = "KG"
	UnitTonne    = "T"
	UnitSack     = "SAC"
)

// Synchronization states. A synced record is removed from the queue;
// deletion is the terminal state.
const (
	SyncStatePending = "pending"
	SyncStateSynced  = "synced"
)

type QueuedHarvest struct {
	ID            uint64
	ClientRef     string
	ProducerRef   string
	PlotRef       string
	Quantity      decimal.Decimal
	CropType      string
	Unit          string
	CapturedAt    time.Time
	SyncState     string
	Attempts      int32
	NextAttemptAt time.Time
	LastError     *string
	CreatedAt     time.Time
}

type QueuedScan struct {
	ID            uint64
	Code          string
	CapturedAt    time.Time
	SyncState     string
	Attempts      int32
	NextAttemptAt time.Time
	LastError     *string
	CreatedAt     time.Time
}

// HarvestInput is what a capture gesture carries. ClientRef is minted by the
// caller so the same idempotency key is used on both the remote and local path.
type HarvestInput struct {
	ClientRef   string
	ProducerRef string
	PlotRef     string
	Quantity    decimal.Decimal
	CropType    string
	Unit        string
	CapturedAt  time.Time
}

func KnownCrop(tag string) bool {
	switch tag {
	case CropCacao, CropCafe, CropAnacarde, CropHevea, CropPalmier:
		return true
	}
	return false
}

func KnownUnit(tag string) bool {
	switch tag {
	case UnitKilogram, UnitTonne, UnitSack:
		return true
	}
	return false
}

// Validate checks structural shape only; business validation is the server's job.
func (in HarvestInput) Validate() error {
	if in.ProducerRef == "" {
		return errors.New("producerRef is required")
	}
	if in.PlotRef == "" {
		return errors.New("plotRef is required")
	}
	if !in.Quantity.IsPositive() {
		return errors.New("quantity must be positive")
	}
	if !KnownCrop(in.CropType) {
		return errors.Errorf("unknown crop type %q", in.CropType)
	}
	if !KnownUnit(in.Unit) {
		return errors.Errorf("unknown unit %q", in.Unit)
	}
	return nil
}
