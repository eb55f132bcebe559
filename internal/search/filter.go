package search

import (
	"fmt"
	"strings"
)

type FilterParams struct {
	Query       string
	MinPrice    *float64
	MaxPrice    *float64
	MinDiscount *float64
	SortBy      string
	Limit       int64
}

func (p FilterParams) limit() int64 {
	if p.Limit <= 0 {
		return 20
	}
	if p.Limit > 100 {
		return 100
	}
	return p.Limit
}

// BuildFilter renders the Meilisearch filter expression for params
func BuildFilter(params FilterParams) string {
	var filters []string
	if params.MinPrice != nil {
		filters = append(filters, fmt.Sprintf("price >= %g", *params.MinPrice))
	}
	if params.MaxPrice != nil {
		filters = append(filters, fmt.Sprintf("price <= %g", *params.MaxPrice))
	}
	if params.MinDiscount != nil {
		filters = append(filters, fmt.Sprintf("discount_percent >= %g", *params.MinDiscount))
	}
	return strings.Join(filters, " AND ")
}

// BuildSort maps a sort key from the API to Meilisearch sort rules
func BuildSort(sortBy string) []string {
	switch sortBy {
	case "price_asc":
		return []string{"price:asc"}
	case "price_desc":
		return []string{"price:desc"}
	case "discount":
		return []string{"discount_percent:desc"}
	case "newest":
		return []string{"updated_on:desc"}
	default:
		return nil
	}
}
