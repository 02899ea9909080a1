package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned by every backend when the requested record is absent.
var ErrNotFound = errors.New("not found")

type ChecklistItem struct {
	ItemID  int    `json:"itemId"`
	Checked bool   `json:"checked"`
	Notes   string `json:"notes"`
}

// Checklist is keyed by its trimmed Target; there is no surrogate id.
type Checklist struct {
	Target    string          `json:"target"`
	Items     []ChecklistItem `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Clone returns a copy whose Items slice does not alias c.Items.
func (c Checklist) Clone() Checklist {
	out := c
	out.Items = make([]ChecklistItem, len(c.Items))
	copy(out.Items, c.Items)
	return out
}

type Credential struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Host      string    `json:"host"`
	Service   string    `json:"service"`
	Notes     string    `json:"notes"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NmapPort struct {
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
	State    string `json:"state"`
	Service  string `json:"service"`
	Version  string `json:"version"`
}

type NmapScan struct {
	ID           string     `json:"id"`
	Target       string     `json:"target"`
	Command      string     `json:"command"`
	Results      string     `json:"results"`
	ScanType     string     `json:"scanType"`
	Ports        []NmapPort `json:"ports"`
	OSDetection  string     `json:"osDetection"`
	ScanDuration string     `json:"scanDuration"`
	Notes        string     `json:"notes"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}
