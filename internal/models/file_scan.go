package models

import (
	"fmt"
	"time"
)

type ScanStatus string

const (
	ScanStatusPending    ScanStatus = "pending"
	ScanStatusScanning   ScanStatus = "scanning"
	ScanStatusClean      ScanStatus = "clean"
	ScanStatusInfected   ScanStatus = "infected"
	ScanStatusSuspicious ScanStatus = "suspicious"
	ScanStatusError      ScanStatus = "error"
)

// Terminal reports whether no further transition is allowed from s.
func (s ScanStatus) Terminal() bool {
	switch s {
	case ScanStatusClean, ScanStatusInfected, ScanStatusSuspicious, ScanStatusError:
		return true
	}
	return false
}

// FileUploadScan is the per-upload scan record.
type FileUploadScan struct {
	ID         string        `json:"id"`
	UserID     *string       `json:"user_id,omitempty"`
	FileName   string        `json:"file_name"`
	FileSize   int64         `json:"file_size"`
	FileHash   string        `json:"file_hash,omitempty"`
	MimeType   string        `json:"mime_type,omitempty"`
	Category   string        `json:"category"`
	Status     ScanStatus    `json:"scan_status"`
	ScanResult EventMetadata `json:"scan_result"`
	UploadedAt time.Time     `json:"uploaded_at"`
	ScannedAt  *time.Time    `json:"scanned_at,omitempty"`
}

// Transition moves the scan forward along pending -> scanning -> terminal.
func (f *FileUploadScan) Transition(to ScanStatus, at time.Time) error {
	switch {
	case f.Status.Terminal():
		return fmt.Errorf("%w: scan already %s", ErrInvalidTransition, f.Status)
	case f.Status == ScanStatusPending && to == ScanStatusScanning:
	case f.Status == ScanStatusScanning && to.Terminal():
		f.ScannedAt = &at
	default:
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.Status, to)
	}
	f.Status = to
	return nil
}
