package repository

import (
	"context"
	"testing"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/testutil"
)

func TestActivityLogRepository(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewActivityLogRepository(db)
	ctx := context.Background()
	q := testutil.SeedQuote(t, db, "q-1", entity.StatusResponded, 1)

	for _, action := range []string{"response", "approval", "trash"} {
		if err := repo.LogActivity(ctx, q, action, entity.StatusPending, action, "admin-1", map[string]any{"n": 1}); err != nil {
			t.Fatalf("LogActivity: %v", err)
		}
	}

	items, total, err := repo.FindByQuote(ctx, q.ID, 1, 2)
	if err != nil {
		t.Fatalf("FindByQuote: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("expected 3 total / 2 on page, got %d / %d", total, len(items))
	}
	if items[0].ToStatus != entity.StatusResponded || items[0].Metadata["n"] == nil {
		t.Errorf("unexpected log row %+v", items[0])
	}
}
