package handler

import (
	"sort"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/kart-checkout/internal/domain/basket"
	"github.com/xenking/kart-checkout/internal/domain/checkout"
	"github.com/xenking/kart-checkout/internal/domain/inventory"
	"github.com/xenking/kart-checkout/internal/domain/money"
	"github.com/xenking/kart-checkout/internal/domain/product"
	"github.com/xenking/kart-checkout/internal/metrics"
)

// sessionView is a snapshot of a session taken while holding its lock.
type sessionView struct {
	ID        string
	Status    checkout.Status
	Items     []product.Product
	Summary   basket.Summary
	Converted *money.Money
}

func encodeMoney(e *jx.Encoder, m money.Money) {
	e.ObjStart()
	e.FieldStart("amount")
	e.Str(m.Amount.StringFixed(2))
	e.FieldStart("currency")
	e.Str(m.Currency)
	e.ObjEnd()
}

func encodeProduct(e *jx.Encoder, p product.Product) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(p.Code)
	e.FieldStart("name")
	e.Str(p.Name)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.ObjEnd()
}

func encodeProducts(e *jx.Encoder, products []product.Product) {
	e.ArrStart()
	for _, p := range products {
		encodeProduct(e, p)
	}
	e.ArrEnd()
}

func encodeStock(e *jx.Encoder, code string, lvl inventory.Level) {
	e.ObjStart()
	e.FieldStart("code")
	e.Str(code)
	e.FieldStart("total")
	e.Int(lvl.Total)
	e.FieldStart("reserved")
	e.Int(lvl.Reserved)
	e.FieldStart("sold")
	e.Int(lvl.Sold)
	e.FieldStart("available")
	e.Int(lvl.Available)
	e.ObjEnd()
}

func encodeSession(e *jx.Encoder, v sessionView) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(v.ID)
	e.FieldStart("status")
	e.Str(v.Status.String())
	e.FieldStart("items")
	encodeProducts(e, v.Items)
	e.FieldStart("subtotal")
	encodeMoney(e, v.Summary.Subtotal)
	e.FieldStart("discount")
	encodeMoney(e, v.Summary.Discount)
	e.FieldStart("total")
	encodeMoney(e, v.Summary.Total)
	e.FieldStart("applications")
	e.ArrStart()
	for _, a := range v.Summary.Applications {
		e.ObjStart()
		e.FieldStart("rule")
		e.Str(a.Rule)
		e.FieldStart("product_code")
		e.Str(a.ProductCode)
		e.FieldStart("amount")
		e.Str(a.Amount.StringFixed(2))
		e.ObjEnd()
	}
	e.ArrEnd()
	if v.Converted != nil {
		e.FieldStart("converted_total")
		encodeMoney(e, *v.Converted)
	}
	e.ObjEnd()
}

func encodeCounts(e *jx.Encoder, counts []metrics.Count) {
	e.ArrStart()
	for _, c := range counts {
		e.ObjStart()
		e.FieldStart("name")
		e.Str(c.Name)
		e.FieldStart("count")
		e.Int(c.Count)
		e.ObjEnd()
	}
	e.ArrEnd()
}

func encodeBuckets(e *jx.Encoder, buckets map[string]metrics.Bucket) {
	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.ObjStart()
	for _, k := range keys {
		b := buckets[k]
		e.FieldStart(k)
		e.ObjStart()
		e.FieldStart("checkouts")
		e.Int(b.Checkouts)
		e.FieldStart("revenue")
		e.Str(b.Revenue.StringFixed(2))
		e.ObjEnd()
	}
	e.ObjEnd()
}

func encodeReport(e *jx.Encoder, r metrics.Report) {
	e.ObjStart()
	e.FieldStart("uptime_seconds")
	e.Float64(r.Uptime.Seconds())
	e.FieldStart("total_operations")
	e.Int(r.TotalOperations)
	e.FieldStart("success_rate")
	e.Float64(r.SuccessRate)
	e.FieldStart("financial_summary")
	e.ObjStart()
	e.FieldStart("total_revenue")
	e.Str(fixed(r.TotalRevenue))
	e.FieldStart("total_savings")
	e.Str(fixed(r.TotalSavings))
	e.FieldStart("average_order_value")
	e.Str(fixed(r.AverageOrderValue))
	e.FieldStart("average_cart_size")
	e.Float64(r.AverageCartSize)
	e.ObjEnd()
	e.FieldStart("top_products")
	encodeCounts(e, r.TopProducts)
	e.FieldStart("most_used_rules")
	encodeCounts(e, r.MostUsedRules)
	e.FieldStart("error_summary")
	e.ObjStart()
	e.FieldStart("total_errors")
	e.Int(r.TotalErrors)
	e.FieldStart("error_rate")
	e.Float64(r.ErrorRate)
	e.FieldStart("error_types")
	kinds := make([]string, 0, len(r.ErrorTypes))
	for k := range r.ErrorTypes {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	e.ObjStart()
	for _, k := range kinds {
		e.FieldStart(k)
		e.Int(r.ErrorTypes[k])
	}
	e.ObjEnd()
	e.ObjEnd()
	e.FieldStart("hourly")
	encodeBuckets(e, r.Hourly)
	e.FieldStart("daily")
	encodeBuckets(e, r.Daily)
	e.ObjEnd()
}

func fixed(d decimal.Decimal) string {
	return d.StringFixed(2)
}
