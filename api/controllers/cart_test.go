package controllers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/bazaar-backend/internal/cart"
	"github.com/angelmondragon/bazaar-backend/internal/wishlist"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/google/uuid"
)

type stubCart struct {
	cart.Service
	customer uuid.UUID
	itemID   uuid.UUID
	quantity int
	synced   int
	err      error
}

func (s *stubCart) UpdateItem(ctx context.Context, customerID, itemID uuid.UUID, quantity int) (*cart.CartDTO, error) {
	s.customer, s.itemID, s.quantity = customerID, itemID, quantity
	return &cart.CartDTO{}, s.err
}

func (s *stubCart) Sync(ctx context.Context, customerID uuid.UUID, items []cart.AddItemRequest) (*cart.CartDTO, error) {
	s.synced = len(items)
	if s.err != nil {
		return nil, s.err
	}
	return &cart.CartDTO{}, nil
}

func TestCartUpdateItemZeroQuantity(t *testing.T) {
	svc := &stubCart{}
	customer, itemID := uuid.New(), uuid.New()
	req := httptest.NewRequest(http.MethodPut, "/api/cart/items/"+itemID.String(), strings.NewReader(`{"quantity":0}`))
	req = withParams(asUser(req, customer, enums.RoleCustomer), "itemId", itemID.String())

	resp, _ := serve(t, CartUpdateItem(svc, nil), req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if svc.customer != customer || svc.itemID != itemID || svc.quantity != 0 {
		t.Fatalf("unexpected call %+v", svc)
	}
}

func TestCartUpdateItemRequiresActor(t *testing.T) {
	itemID := uuid.New()
	req := withParams(httptest.NewRequest(http.MethodPut, "/api/cart/items/x", strings.NewReader(`{"quantity":1}`)), "itemId", itemID.String())
	resp, _ := serve(t, CartUpdateItem(&stubCart{}, nil), req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", resp.Code)
	}
}

func TestCartSyncReportsAggregatedErrors(t *testing.T) {
	svc := &stubCart{err: pkgerrors.New(pkgerrors.CodeInsufficientStock, "cart items are invalid").WithDetails([]string{"kettle: only 1 left", "mug: not found"})}
	body := `{"items":[{"productId":"` + uuid.NewString() + `","quantity":3},{"productId":"` + uuid.NewString() + `","quantity":1}]}`
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/cart/sync", strings.NewReader(body)), uuid.New(), enums.RoleCustomer)

	resp, env := serve(t, CartSync(svc, nil), req)
	if resp.Code != http.StatusBadRequest || env.Error.Code != "INSUFFICIENT_STOCK" {
		t.Fatalf("expected 400 INSUFFICIENT_STOCK got %d %s", resp.Code, env.Error.Code)
	}
	if svc.synced != 2 {
		t.Fatalf("expected 2 items forwarded got %d", svc.synced)
	}
	if !strings.Contains(string(env.Error.Details), "mug: not found") {
		t.Fatalf("details missing: %s", env.Error.Details)
	}
}

type stubWishlist struct {
	wishlist.Service
	token string
	moved *wishlist.MoveToCartRequest
}

func (s *stubWishlist) GetShared(ctx context.Context, token string) (*wishlist.WishlistDTO, error) {
	s.token = token
	if token != "abc" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wishlist not found")
	}
	return &wishlist.WishlistDTO{Name: "Birthday", IsPublic: true}, nil
}

func (s *stubWishlist) MoveToCart(ctx context.Context, customerID, productID uuid.UUID, req wishlist.MoveToCartRequest) (*cart.CartDTO, error) {
	s.moved = &req
	return &cart.CartDTO{}, nil
}

func TestWishlistSharedByToken(t *testing.T) {
	svc := &stubWishlist{}
	req := withParams(httptest.NewRequest(http.MethodGet, "/api/users/wishlist/shared/abc", nil), "token", "abc")
	resp, _ := serve(t, WishlistShared(svc, nil), req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}

	req = withParams(httptest.NewRequest(http.MethodGet, "/api/users/wishlist/shared/zzz", nil), "token", "zzz")
	resp, _ = serve(t, WishlistShared(svc, nil), req)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestWishlistMoveToCartBodyOptional(t *testing.T) {
	svc := &stubWishlist{}
	productID := uuid.New()
	req := httptest.NewRequest(http.MethodPost, "/api/users/me/wishlist/items/"+productID.String()+"/move-to-cart", nil)
	req = withParams(asUser(req, uuid.New(), enums.RoleCustomer), "productId", productID.String())

	resp, _ := serve(t, WishlistMoveToCart(svc, nil), req)
	if resp.Code != http.StatusOK || svc.moved == nil {
		t.Fatalf("expected move with defaults, got %d", resp.Code)
	}
	if svc.moved.Quantity != 0 {
		t.Fatalf("unexpected quantity %d", svc.moved.Quantity)
	}
}
