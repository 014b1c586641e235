package controllers

import (
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductList browses the catalogue. Staff roles also see hidden and
// unapproved listings.
func ProductList(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}

		q, err := product.ParseListQuery(r.URL.Query())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := optionalActor(r.Context())
		privileged := actor != nil && actor.Is(enums.RoleAdmin, enums.RoleModerator, enums.RoleInventoryManager)

		result, err := svc.List(r.Context(), q, privileged)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, result.Items, len(result.Items), &result.Pagination)
	}
}

func ProductGet(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Get(r.Context(), optionalActor(r.Context()), productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

type uploadLimiter interface {
	MaxRequestBytes() int64
}

// ProductCreate accepts a multipart listing with its images.
func ProductCreate(svc product.Service, uploads uploadLimiter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit := int64(32 << 20)
		if uploads != nil {
			limit = uploads.MaxRequestBytes()
		}
		r.Body = http.MaxBytesReader(w, r.Body, limit)
		if err := r.ParseMultipartForm(limit); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "upload too large"))
				return
			}
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid multipart form"))
			return
		}
		defer r.MultipartForm.RemoveAll()

		req, err := productFormRequest(r.MultipartForm)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := validators.ValidateStruct(&req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Create(r.Context(), actor, req, r.MultipartForm.File["images"])
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, "product created", dto)
	}
}

func productFormRequest(form *multipart.Form) (product.CreateProductRequest, error) {
	value := func(key string) string {
		if vals := form.Value[key]; len(vals) > 0 {
			return strings.TrimSpace(vals[0])
		}
		return ""
	}
	optional := func(key string) *string {
		if v := value(key); v != "" {
			return &v
		}
		return nil
	}
	invalid := func(field string, err error) error {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).WithDetails(map[string]any{"field": field})
	}

	req := product.CreateProductRequest{
		Name:        value("name"),
		Description: value("description"),
		Category:    value("category"),
		SubCategory: optional("subCategory"),
		Brand:       optional("brand"),
		SKU:         optional("sku"),
	}

	rawPrice := value("price")
	if rawPrice == "" {
		return req, pkgerrors.New(pkgerrors.CodeValidation, "price is required").WithDetails(map[string]any{"field": "price"})
	}
	price, err := decimal.NewFromString(rawPrice)
	if err != nil {
		return req, invalid("price", err)
	}
	req.Price = price

	if raw := value("compareAtPrice"); raw != "" {
		compareAt, err := decimal.NewFromString(raw)
		if err != nil {
			return req, invalid("compareAtPrice", err)
		}
		req.CompareAtPrice = &compareAt
	}

	if raw := value("stock"); raw != "" {
		stock, err := strconv.Atoi(raw)
		if err != nil {
			return req, invalid("stock", err)
		}
		req.Stock = stock
	}

	if raw := value("vendorId"); raw != "" {
		vendorID, err := uuid.Parse(raw)
		if err != nil {
			return req, invalid("vendorId", err)
		}
		req.VendorID = &vendorID
	}

	if raw := value("isActive"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return req, invalid("isActive", err)
		}
		req.IsActive = &active
	}

	for _, raw := range form.Value["tags"] {
		req.Tags = append(req.Tags, validators.SplitCSV(raw)...)
	}

	if raw := value("variants"); raw != "" {
		var variants types.VariantOptions
		if err := json.Unmarshal([]byte(raw), &variants); err != nil {
			return req, invalid("variants", err)
		}
		req.Variants = variants
	}
	return req, nil
}

// ProductUpdate applies a partial edit; content changes send the listing back
// to moderation.
func ProductUpdate(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body product.UpdateProductRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Update(r.Context(), actor, productID, body)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "product updated", dto)
	}
}

func ProductDelete(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.Delete(r.Context(), actor, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "product deleted", nil)
	}
}

func ProductStock(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body product.StockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.SetStock(r.Context(), actor, productID, *body.Stock)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// ProductPending is the moderator approval queue.
func ProductPending(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		page, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListPending(r.Context(), page)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteList(w, result.Items, len(result.Items), &result.Pagination)
	}
}

func ProductApprove(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Approve(r.Context(), actor, productID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "product approved", dto)
	}
}

func ProductReject(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body product.RejectRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.Reject(r.Context(), actor, productID, body.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteMessage(w, "product rejected", dto)
	}
}
