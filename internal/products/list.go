package product

import (
	"errors"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type fieldKind int

const (
	kindString fieldKind = iota
	kindDecimal
	kindInt
	kindFloat
	kindBool
	kindUUID
	kindTime
	kindApproval
	kindOpaque
)

// listField maps a public JSON key onto its columns. Opaque fields may be
// selected but not filtered or sorted.
type listField struct {
	columns []string
	kind    fieldKind
}

var listFields = map[string]listField{
	"id":              {[]string{"id"}, kindUUID},
	"vendorId":        {[]string{"vendor_id"}, kindUUID},
	"name":            {[]string{"name"}, kindString},
	"description":     {[]string{"description"}, kindString},
	"category":        {[]string{"category"}, kindString},
	"subCategory":     {[]string{"sub_category"}, kindString},
	"brand":           {[]string{"brand"}, kindString},
	"sku":             {[]string{"sku"}, kindString},
	"price":           {[]string{"price"}, kindDecimal},
	"compareAtPrice":  {[]string{"compare_at_price"}, kindDecimal},
	"stock":           {[]string{"stock"}, kindInt},
	"isActive":        {[]string{"is_active"}, kindBool},
	"isFeatured":      {[]string{"is_featured"}, kindBool},
	"isApproved":      {[]string{"is_approved"}, kindBool},
	"approvalStatus":  {[]string{"approval_status"}, kindApproval},
	"views":           {[]string{"views"}, kindInt},
	"salesCount":      {[]string{"sales_count"}, kindInt},
	"rating":          {[]string{"rating_average"}, kindFloat},
	"createdAt":       {[]string{"created_at"}, kindTime},
	"updatedAt":       {[]string{"updated_at"}, kindTime},
	"images":          {[]string{"images"}, kindOpaque},
	"tags":            {[]string{"tags"}, kindOpaque},
	"variants":        {[]string{"variants"}, kindOpaque},
	"ratings":         {[]string{"rating_average", "rating_count"}, kindOpaque},
	"approvedBy":      {[]string{"approved_by"}, kindOpaque},
	"approvedAt":      {[]string{"approved_at"}, kindOpaque},
	"rejectionReason": {[]string{"rejection_reason"}, kindOpaque},
}

// Operators accepted in key[op]=value filters.
var operators = map[string]string{
	"eq":  "=",
	"ne":  "<>",
	"gt":  ">",
	"gte": ">=",
	"lt":  "<",
	"lte": "<=",
	"in":  "IN",
}

var reservedParams = map[string]struct{}{
	"page": {}, "limit": {}, "sort": {}, "select": {}, "search": {}, "q": {},
}

var filterKeyPattern = regexp.MustCompile(`^([A-Za-z]+)(?:\[([a-z]+)\])?$`)

// Condition is one validated column predicate.
type Condition struct {
	Column string
	Op     string
	Value  any
}

// SortKey orders by a whitelisted column.
type SortKey struct {
	Column string
	Desc   bool
}

// ListQuery is the parsed, whitelisted form of a catalogue query string.
type ListQuery struct {
	Conditions []Condition
	Search     string
	Select     []string
	Sort       []SortKey
	Page       pagination.Params
}

// ListPlan is what the repository executes.
type ListPlan struct {
	Conditions []Condition
	Search     string
	Columns    []string
	Sort       []SortKey
	Page       pagination.Params
}

// ParseListQuery turns query parameters such as price[gte]=10&sort=-price&select=name,price
// into a ListQuery. Unknown fields and operators are rejected.
func ParseListQuery(values url.Values) (ListQuery, error) {
	var q ListQuery
	details := map[string]string{}

	page, err := optionalInt(values.Get("page"))
	if err != nil {
		details["page"] = "must be an integer"
	}
	limit, err := optionalInt(values.Get("limit"))
	if err != nil {
		details["limit"] = "must be an integer"
	}
	q.Page = pagination.Params{Page: page, Limit: limit}

	q.Search = strings.TrimSpace(values.Get("search"))
	if q.Search == "" {
		q.Search = strings.TrimSpace(values.Get("q"))
	}

	for _, key := range splitList(values.Get("select")) {
		if _, ok := listFields[key]; !ok {
			details["select"] = "unknown field " + key
			continue
		}
		q.Select = append(q.Select, key)
	}

	for _, key := range splitList(values.Get("sort")) {
		desc := strings.HasPrefix(key, "-")
		name := strings.TrimPrefix(key, "-")
		field, ok := listFields[name]
		if !ok || field.kind == kindOpaque {
			details["sort"] = "cannot sort by " + name
			continue
		}
		q.Sort = append(q.Sort, SortKey{Column: field.columns[0], Desc: desc})
	}

	for key, raw := range values {
		if _, reserved := reservedParams[key]; reserved {
			continue
		}
		match := filterKeyPattern.FindStringSubmatch(key)
		if match == nil {
			details[key] = "unsupported filter"
			continue
		}
		name, opName := match[1], match[2]
		if opName == "" {
			opName = "eq"
		}
		field, ok := listFields[name]
		if !ok || field.kind == kindOpaque {
			details[key] = "unsupported filter"
			continue
		}
		op, ok := operators[opName]
		if !ok {
			details[key] = "unsupported operator " + opName
			continue
		}
		for _, value := range raw {
			cond, err := buildCondition(field, op, value)
			if err != nil {
				details[key] = err.Error()
				break
			}
			q.Conditions = append(q.Conditions, cond)
		}
	}

	if len(details) > 0 {
		return ListQuery{}, pkgerrors.New(pkgerrors.CodeValidation, "invalid product query").WithDetails(details)
	}
	return q, nil
}

// Plan resolves the query into columns and predicates. Public callers are
// restricted to approved, active listings.
func (q ListQuery) Plan(publicOnly bool) ListPlan {
	plan := ListPlan{
		Conditions: append([]Condition(nil), q.Conditions...),
		Search:     q.Search,
		Sort:       q.Sort,
		Page:       q.Page,
	}
	if publicOnly {
		plan.Conditions = append(plan.Conditions,
			Condition{Column: "is_approved", Op: "=", Value: true},
			Condition{Column: "is_active", Op: "=", Value: true},
		)
	}
	if len(q.Select) > 0 {
		seen := map[string]struct{}{"id": {}}
		plan.Columns = []string{"id"}
		for _, key := range q.Select {
			for _, column := range listFields[key].columns {
				if _, ok := seen[column]; ok {
					continue
				}
				seen[column] = struct{}{}
				plan.Columns = append(plan.Columns, column)
			}
		}
	}
	return plan
}

func buildCondition(field listField, op, raw string) (Condition, error) {
	column := field.columns[0]
	if op == "IN" {
		parts := splitList(raw)
		if len(parts) == 0 {
			return Condition{}, errInvalidValue
		}
		values := make([]any, 0, len(parts))
		for _, part := range parts {
			v, err := parseValue(field.kind, part)
			if err != nil {
				return Condition{}, err
			}
			values = append(values, v)
		}
		return Condition{Column: column, Op: op, Value: values}, nil
	}
	if field.kind == kindBool && op != "=" && op != "<>" {
		return Condition{}, errInvalidValue
	}
	v, err := parseValue(field.kind, raw)
	if err != nil {
		return Condition{}, err
	}
	return Condition{Column: column, Op: op, Value: v}, nil
}

var errInvalidValue = errors.New("invalid value")

func parseValue(kind fieldKind, raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch kind {
	case kindDecimal:
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, errInvalidValue
		}
		return d, nil
	case kindInt:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errInvalidValue
		}
		return n, nil
	case kindFloat:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, errInvalidValue
		}
		return f, nil
	case kindBool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errInvalidValue
		}
		return b, nil
	case kindUUID:
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, errInvalidValue
		}
		return id, nil
	case kindTime:
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, errInvalidValue
		}
		return t.UTC(), nil
	case kindApproval:
		status, err := enums.ParseApprovalStatus(raw)
		if err != nil {
			return nil, errInvalidValue
		}
		return string(status), nil
	}
	if raw == "" {
		return nil, errInvalidValue
	}
	return raw, nil
}

func optionalInt(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
