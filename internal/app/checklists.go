package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"reconbook/api/internal/history"
	"reconbook/api/internal/store"

	"go.uber.org/zap"
)

// ItemInput is one element of a replace request. ItemID is a pointer so a
// missing id can be told apart from id 0.
type ItemInput struct {
	ItemID  *int   `json:"itemId"`
	Checked bool   `json:"checked"`
	Notes   string `json:"notes"`
}

// ItemUpdate carries the optional fields of an upsert. Nil means leave the
// stored value alone.
type ItemUpdate struct {
	ItemID  *int    `json:"itemId"`
	Checked *bool   `json:"checked"`
	Notes   *string `json:"notes"`
}

type SummaryItem struct {
	ItemID  int  `json:"itemId"`
	Checked bool `json:"checked"`
}

// ChecklistSummary is the listAll view of a checklist with derived progress.
type ChecklistSummary struct {
	Target         string        `json:"target"`
	Items          []SummaryItem `json:"items"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	TotalItems     int           `json:"totalItems"`
	CompletedItems int           `json:"completedItems"`
	Progress       int           `json:"progress"`
}

// ReplaceChecklist overwrites the item list of target, creating the
// checklist when it does not exist. A nil items slice means the field was
// missing; an empty one clears the list.
func (s *Service) ReplaceChecklist(ctx context.Context, target string, items []ItemInput) (store.Checklist, error) {
	target = strings.TrimSpace(target)
	if target == "" || items == nil {
		return store.Checklist{}, validationError("Target and items are required")
	}

	replaced := make([]store.ChecklistItem, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for i, item := range items {
		if item.ItemID == nil {
			return store.Checklist{}, validationError(fmt.Sprintf("items[%d].itemId is required", i))
		}
		if _, dup := seen[*item.ItemID]; dup {
			return store.Checklist{}, validationError(fmt.Sprintf("duplicate itemId %d", *item.ItemID))
		}
		seen[*item.ItemID] = struct{}{}
		replaced = append(replaced, store.ChecklistItem{ItemID: *item.ItemID, Checked: item.Checked, Notes: item.Notes})
	}

	unlock := s.lockTarget(target)
	defer unlock()

	now := s.timestamp()
	checklist, err := s.loadChecklist(ctx, target)
	if err != nil {
		return store.Checklist{}, err
	}
	if checklist.CreatedAt.IsZero() {
		checklist.CreatedAt = now
	}
	checklist.Items = replaced
	checklist.UpdatedAt = now

	saved, err := s.checklists.SaveChecklist(ctx, checklist)
	if err != nil {
		return store.Checklist{}, fmt.Errorf("save checklist: %w", err)
	}
	s.recordHistory(saved, fmt.Sprintf("Replace checklist for %s (%d items)", target, len(replaced)))
	return saved, nil
}

// UpsertItem merges one item into target's checklist, creating both the
// checklist and the item as needed. Only supplied fields change.
func (s *Service) UpsertItem(ctx context.Context, target string, update ItemUpdate) (store.Checklist, error) {
	target = strings.TrimSpace(target)
	if target == "" || update.ItemID == nil {
		return store.Checklist{}, validationError("Target and itemId are required")
	}
	itemID := *update.ItemID

	unlock := s.lockTarget(target)
	defer unlock()

	now := s.timestamp()
	checklist, err := s.loadChecklist(ctx, target)
	if err != nil {
		return store.Checklist{}, err
	}
	if checklist.CreatedAt.IsZero() {
		checklist.CreatedAt = now
	}

	found := false
	for i := range checklist.Items {
		if checklist.Items[i].ItemID != itemID {
			continue
		}
		if update.Checked != nil {
			checklist.Items[i].Checked = *update.Checked
		}
		if update.Notes != nil {
			checklist.Items[i].Notes = *update.Notes
		}
		found = true
		break
	}
	if !found {
		item := store.ChecklistItem{ItemID: itemID}
		if update.Checked != nil {
			item.Checked = *update.Checked
		}
		if update.Notes != nil {
			item.Notes = *update.Notes
		}
		checklist.Items = append(checklist.Items, item)
	}
	checklist.UpdatedAt = now

	saved, err := s.checklists.SaveChecklist(ctx, checklist)
	if err != nil {
		return store.Checklist{}, fmt.Errorf("save checklist: %w", err)
	}
	s.recordHistory(saved, fmt.Sprintf("Update item %d for %s", itemID, target))
	return saved, nil
}

// GetChecklist returns the checklist for target, or a fresh empty one when
// none has been saved. Use ChecklistExists to tell the two apart.
func (s *Service) GetChecklist(ctx context.Context, target string) (store.Checklist, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return store.Checklist{}, validationError("Target parameter is required")
	}
	checklist, err := s.loadChecklist(ctx, target)
	if err != nil {
		return store.Checklist{}, err
	}
	if checklist.CreatedAt.IsZero() {
		now := s.timestamp()
		checklist.CreatedAt = now
		checklist.UpdatedAt = now
	}
	return checklist, nil
}

func (s *Service) ChecklistExists(ctx context.Context, target string) (bool, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return false, validationError("Target parameter is required")
	}
	_, err := s.checklists.GetChecklist(ctx, target)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get checklist: %w", err)
	}
	return true, nil
}

// ListChecklists returns every checklist, most recently updated first.
func (s *Service) ListChecklists(ctx context.Context) ([]ChecklistSummary, error) {
	checklists, err := s.checklists.ListChecklists(ctx)
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}
	result := make([]ChecklistSummary, 0, len(checklists))
	for _, checklist := range checklists {
		result = append(result, summarize(checklist))
	}
	return result, nil
}

// DeleteChecklist removes target's checklist; a missing one is NotFound.
func (s *Service) DeleteChecklist(ctx context.Context, target string) (bool, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return false, validationError("Target parameter is required")
	}

	unlock := s.lockTarget(target)
	defer unlock()

	deleted, err := s.checklists.DeleteChecklist(ctx, target)
	if err != nil {
		return false, fmt.Errorf("delete checklist: %w", err)
	}
	if !deleted {
		return false, notFoundError("Checklist not found")
	}
	if s.history != nil {
		if _, err := s.history.Remove(target, fmt.Sprintf("Delete checklist for %s", target)); err != nil {
			s.logger.Warn("history remove failed", zap.String("target", target), zap.Error(err))
		}
	}
	return true, nil
}

// ChecklistHistory lists recorded snapshots of target, newest first.
func (s *Service) ChecklistHistory(_ context.Context, target string, limit int) ([]history.Entry, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, validationError("Target parameter is required")
	}
	if s.history == nil {
		return nil, unavailableError("HISTORY_DISABLED", "Checklist history is not configured")
	}
	entries, err := s.history.History(target, limit)
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

// loadChecklist returns the stored checklist or an empty one with a zero
// CreatedAt when target has none.
func (s *Service) loadChecklist(ctx context.Context, target string) (store.Checklist, error) {
	checklist, err := s.checklists.GetChecklist(ctx, target)
	if errors.Is(err, store.ErrNotFound) {
		return store.Checklist{Target: target, Items: []store.ChecklistItem{}}, nil
	}
	if err != nil {
		return store.Checklist{}, fmt.Errorf("get checklist: %w", err)
	}
	if checklist.Items == nil {
		checklist.Items = []store.ChecklistItem{}
	}
	return checklist, nil
}

func (s *Service) recordHistory(checklist store.Checklist, message string) {
	if s.history == nil {
		return
	}
	if _, err := s.history.Record(checklist, message); err != nil {
		s.logger.Warn("history record failed", zap.String("target", checklist.Target), zap.Error(err))
	}
}

func summarize(checklist store.Checklist) ChecklistSummary {
	items := make([]SummaryItem, 0, len(checklist.Items))
	completed := 0
	for _, item := range checklist.Items {
		items = append(items, SummaryItem{ItemID: item.ItemID, Checked: item.Checked})
		if item.Checked {
			completed++
		}
	}
	return ChecklistSummary{
		Target:         checklist.Target,
		Items:          items,
		CreatedAt:      checklist.CreatedAt,
		UpdatedAt:      checklist.UpdatedAt,
		TotalItems:     len(checklist.Items),
		CompletedItems: completed,
		Progress:       progress(completed, len(checklist.Items)),
	}
}

// progress is round(100*completed/total), 0 for an empty list.
func progress(completed, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(completed) * 100 / float64(total)))
}
