package reviews

import (
	"context"
	"testing"

	"github.com/angelmondragon/bazaar-backend/internal/orders"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc       Service
	reviews   *Repository
	products  *product.Repository
	orders    *orders.Repository
	moderator types.Actor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	f := fixture{
		reviews:   NewRepository(conn),
		products:  product.NewRepository(conn),
		orders:    orders.NewRepository(conn),
		moderator: types.Actor{UserID: uuid.New(), Role: enums.RoleModerator},
	}
	svc, err := NewService(ServiceParams{
		Tx:       db.Wrap(conn),
		Reviews:  f.reviews,
		Products: f.products,
		Orders:   f.orders,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f fixture) seedProduct(t *testing.T) *models.Product {
	t.Helper()
	p := &models.Product{
		VendorID:       uuid.New(),
		Name:           "kettle",
		Description:    "kettle",
		Category:       "kitchen",
		Price:          decimal.NewFromInt(30),
		Stock:          10,
		Images:         types.StringList{"/uploads/kettle.png"},
		IsActive:       true,
		IsApproved:     true,
		ApprovalStatus: enums.ApprovalStatusApproved,
	}
	require.NoError(t, f.products.Create(context.Background(), p))
	return p
}

func (f fixture) seedOrder(t *testing.T, customer uuid.UUID, status enums.OrderStatus, productIDs ...uuid.UUID) *models.Order {
	t.Helper()
	items := make([]models.OrderLineItem, 0, len(productIDs))
	for _, id := range productIDs {
		items = append(items, models.OrderLineItem{ProductID: id, Name: "item", Price: decimal.NewFromInt(30), Quantity: 1, Subtotal: decimal.NewFromInt(30)})
	}
	order := &models.Order{
		OrderNumber:   "ORD-" + uuid.NewString(),
		CustomerID:    customer,
		VendorID:      uuid.New(),
		Items:         items,
		PaymentMethod: enums.PaymentMethodPayPal,
		PaymentStatus: enums.PaymentStatusPaid,
		OrderStatus:   status,
	}
	require.NoError(t, f.orders.Create(context.Background(), order))
	return order
}

func customer() types.Actor {
	return types.Actor{UserID: uuid.New(), Role: enums.RoleCustomer}
}

func (f fixture) review(t *testing.T, author types.Actor, p *models.Product, rating int) *ReviewDTO {
	t.Helper()
	order := f.seedOrder(t, author.UserID, enums.OrderStatusDelivered, p.ID)
	created, err := f.svc.Create(context.Background(), author, CreateReviewRequest{
		ProductID: p.ID,
		OrderID:   order.ID,
		Rating:    rating,
		Title:     "Solid",
		Comment:   "Boils fast",
	})
	require.NoError(t, err)
	return created
}

func TestCreateRequiresDeliveredOrderWithProduct(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kettle := f.seedProduct(t)
	other := f.seedProduct(t)
	buyer := customer()

	cases := map[string]*models.Order{
		"pending order":     f.seedOrder(t, buyer.UserID, enums.OrderStatusPending, kettle.ID),
		"product not in it": f.seedOrder(t, buyer.UserID, enums.OrderStatusDelivered, other.ID),
		"someone else's":    f.seedOrder(t, uuid.New(), enums.OrderStatusDelivered, kettle.ID),
	}
	for name, order := range cases {
		_, err := f.svc.Create(ctx, buyer, CreateReviewRequest{ProductID: kettle.ID, OrderID: order.ID, Rating: 4, Title: "t", Comment: "c"})
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "%s: %v", name, err)
	}

	_, err := f.svc.Create(ctx, buyer, CreateReviewRequest{ProductID: kettle.ID, OrderID: uuid.New(), Rating: 4, Title: "t", Comment: "c"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	created := f.review(t, buyer, kettle, 4)
	assert.False(t, created.IsApproved)
	assert.False(t, created.IsFlagged)
}

func TestCreateRejectsSecondReview(t *testing.T) {
	f := newFixture(t)
	kettle := f.seedProduct(t)
	buyer := customer()
	f.review(t, buyer, kettle, 5)

	order := f.seedOrder(t, buyer.UserID, enums.OrderStatusDelivered, kettle.ID)
	_, err := f.svc.Create(context.Background(), buyer, CreateReviewRequest{ProductID: kettle.ID, OrderID: order.ID, Rating: 1, Title: "again", Comment: "again"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDuplicateReview), "got %v", err)
}

func TestApproveRecomputesRating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kettle := f.seedProduct(t)
	first := f.review(t, customer(), kettle, 5)
	second := f.review(t, customer(), kettle, 4)
	third := f.review(t, customer(), kettle, 4)

	_, err := f.svc.Approve(ctx, customer(), first.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	for _, id := range []uuid.UUID{first.ID, second.ID, third.ID} {
		_, err := f.svc.Approve(ctx, f.moderator, id)
		require.NoError(t, err)
	}
	stored, err := f.products.FindByID(ctx, kettle.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.3, stored.Ratings.Average)
	assert.Equal(t, 3, stored.Ratings.Count)

	rows, meta, err := f.svc.ListForProduct(ctx, kettle.ID, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, int64(3), meta.Total)

	require.NoError(t, f.svc.Remove(ctx, f.moderator, first.ID))
	stored, err = f.products.FindByID(ctx, kettle.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, stored.Ratings.Average)
	assert.Equal(t, 2, stored.Ratings.Count)
}

func TestEditSendsReviewBackToModeration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kettle := f.seedProduct(t)
	author := customer()
	created := f.review(t, author, kettle, 5)
	_, err := f.svc.Approve(ctx, f.moderator, created.ID)
	require.NoError(t, err)

	rating := 2
	_, err = f.svc.Update(ctx, customer(), created.ID, UpdateReviewRequest{Rating: &rating})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	edited, err := f.svc.Update(ctx, author, created.ID, UpdateReviewRequest{Rating: &rating})
	require.NoError(t, err)
	assert.False(t, edited.IsApproved)
	assert.Equal(t, 2, edited.Rating)

	stored, err := f.products.FindByID(ctx, kettle.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, stored.Ratings.Count)
}

func TestReportFlagsAndModeratorsUnflag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kettle := f.seedProduct(t)
	author := customer()
	created := f.review(t, author, kettle, 3)
	reporter := customer()

	_, err := f.svc.Report(ctx, reporter, created.ID, ReportRequest{Reason: "rude"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	_, err = f.svc.Report(ctx, author, created.ID, ReportRequest{Reason: "spam"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	flagged, err := f.svc.Report(ctx, reporter, created.ID, ReportRequest{Reason: "spam", Note: "link farm"})
	require.NoError(t, err)
	assert.True(t, flagged.IsFlagged)
	assert.Empty(t, flagged.Reports, "reports are only shown to moderators")

	_, err = f.svc.Report(ctx, reporter, created.ID, ReportRequest{Reason: "fake"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	queue, _, err := f.svc.Queue(ctx, f.moderator, "flagged", pagination.Params{})
	require.NoError(t, err)
	require.Len(t, queue, 1)
	require.Len(t, queue[0].Reports, 1)
	assert.Equal(t, enums.ReportReasonSpam, queue[0].Reports[0].Reason)

	unflagged, err := f.svc.Unflag(ctx, f.moderator, created.ID)
	require.NoError(t, err)
	assert.False(t, unflagged.IsFlagged)
	assert.False(t, unflagged.IsApproved)

	queue, _, err = f.svc.Queue(ctx, f.moderator, "flagged", pagination.Params{})
	require.NoError(t, err)
	assert.Empty(t, queue)

	pending, _, err := f.svc.Queue(ctx, f.moderator, "", pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, _, err = f.svc.Queue(ctx, f.moderator, "archived", pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeleteByAuthorOrAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kettle := f.seedProduct(t)
	author := customer()
	created := f.review(t, author, kettle, 3)

	err := f.svc.Delete(ctx, customer(), created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	require.NoError(t, f.svc.Delete(ctx, author, created.ID))
	err = f.svc.Delete(ctx, types.Actor{UserID: uuid.New(), Role: enums.RoleAdmin}, created.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestReportsKeepApprovalAndEarlierReports(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	kettle := f.seedProduct(t)
	created := f.review(t, customer(), kettle, 4)

	stale, err := f.reviews.FindByID(ctx, created.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, f.moderator, created.ID)
	require.NoError(t, err)

	stale.IsFlagged = true
	stale.Reports = append(stale.Reports, models.ReviewReport{ReporterID: uuid.New(), Reason: enums.ReportReasonSpam})
	require.NoError(t, f.reviews.SaveFlags(ctx, stale))

	stored, err := f.reviews.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsApproved, "flag write must not undo the approval")
	assert.True(t, stored.IsFlagged)

	first, second := customer(), customer()
	_, err = f.svc.Report(ctx, first, created.ID, ReportRequest{Reason: "spam"})
	require.NoError(t, err)
	_, err = f.svc.Report(ctx, second, created.ID, ReportRequest{Reason: "fake"})
	require.NoError(t, err)

	stored, err = f.reviews.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsApproved)
	assert.Len(t, stored.Reports, 3)
	assert.True(t, stored.ReportedBy(first.UserID))
	assert.True(t, stored.ReportedBy(second.UserID))

	rating, err := f.products.FindByID(ctx, kettle.ID)
	require.NoError(t, err)
	assert.Equal(t, 4.0, rating.Ratings.Average)
}
