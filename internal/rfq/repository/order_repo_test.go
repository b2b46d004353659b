package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/bitfantasy/nimo-rfq/internal/rfq/entity"
	"github.com/bitfantasy/nimo-rfq/internal/rfq/testutil"
	"github.com/shopspring/decimal"
)

func TestOrderRepository_Create(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repo := NewOrderRepository(db)
	ctx := context.Background()

	code, err := repo.GenerateCode(ctx)
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	order := &entity.Order{
		ID:          "o-1",
		Code:        code,
		QuoteID:     "q-1",
		Status:      entity.OrderStatusDraft,
		TotalAmount: decimal.NewFromInt(900),
		Items: []entity.OrderItem{
			{ID: "oi-2", LineItemID: 2, Quantity: 50, UnitPrice: decimal.NewFromInt(10), Amount: decimal.NewFromInt(500), SortOrder: 2},
			{ID: "oi-1", LineItemID: 1, Quantity: 40, UnitPrice: decimal.NewFromInt(10), Amount: decimal.NewFromInt(400), SortOrder: 1},
		},
	}
	if err := repo.Create(ctx, order); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := repo.FindByQuoteID(ctx, "q-1")
	if err != nil {
		t.Fatalf("FindByQuoteID: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0].LineItemID != 1 {
		t.Fatalf("expected items ordered by sort_order, got %+v", got.Items)
	}

	dup := &entity.Order{ID: "o-2", Code: code + "x", QuoteID: "q-1"}
	if err := repo.Create(ctx, dup); err == nil {
		t.Error("expected unique violation for a second order on the same quote")
	}

	if _, err := repo.FindByID(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
