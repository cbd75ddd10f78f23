package automation

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/mattjoyce/leasehook/internal/tenant"
	"github.com/mattjoyce/leasehook/internal/upstream"
)

// DefaultCategoryName is the vendor task category created at initiation.
const DefaultCategoryName = "Automated Tasks"

// InitiationHandler finds or creates the automated tasks category and
// records its id on the tenant. The completed flag is written last.
type InitiationHandler struct {
	Vendor       upstream.Client
	Tenants      TenantStore
	CategoryName string
	Now          func() time.Time
}

func (h *InitiationHandler) Handle(ctx context.Context, tenantID string, headers http.Header, _ GLMapping, event Event) (Result, error) {
	name := h.CategoryName
	if name == "" {
		name = DefaultCategoryName
	}

	categories, err := h.Vendor.ListTaskCategories(ctx, headers)
	if err != nil {
		return Result{}, fmt.Errorf("list task categories: %w", err)
	}

	var category upstream.TaskCategory
	for _, c := range categories {
		if Normalize(c.Name) == Normalize(name) {
			category = c
			break
		}
	}
	created := false
	if category.ID == "" {
		category, err = h.Vendor.CreateTaskCategory(ctx, headers, name)
		if err != nil {
			return Result{}, fmt.Errorf("create task category: %w", err)
		}
		if category.ID == "" {
			return Result{}, fmt.Errorf("vendor returned task category without id")
		}
		created = true
	}

	if _, err := h.Tenants.ShallowMerge(ctx, tenantID, map[string]any{
		tenant.KeyAutomatedTasksCategoryID: category.ID,
	}); err != nil {
		return Result{}, fmt.Errorf("persist category id: %w", err)
	}

	if event.TaskID != "" {
		note := fmt.Sprintf("%s category %s is ready.", name, category.ID)
		if err := h.Vendor.UpdateTask(ctx, headers, event.TaskID, upstream.TaskUpdate{Status: "Completed", Note: note}); err != nil {
			return Result{}, fmt.Errorf("complete initiation task: %w", err)
		}
	}

	if err := h.Tenants.SetPath(ctx, tenantID, tenant.PathInitiationCompletedAt, now(h.Now).Format(time.RFC3339)); err != nil {
		return Result{}, fmt.Errorf("persist initiation completion: %w", err)
	}

	return Result{
		Summary: fmt.Sprintf("automated tasks category %s ready", category.ID),
		Details: map[string]any{"category_id": category.ID, "created": created},
	}, nil
}

func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now().UTC()
	}
	return clock().UTC()
}
