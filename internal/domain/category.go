package domain

import "strings"

// Category is a product category. Top-level categories have no parent.
type Category struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parentId"`
}

func (c Category) IsRoot() bool {
	return c.ParentID == nil
}

// ProductFilter narrows the catalog the way the product screen does. Zero
// fields match everything.
type ProductFilter struct {
	// Query matches name or code, case-insensitive.
	Query string
	// CategoryID is a top-level category; products in it or in any of its
	// subcategories match.
	CategoryID int64
	// SubcategoryID matches products assigned exactly that category.
	SubcategoryID int64
}

// FilterProducts returns the products that match f, keeping their order.
// A product whose category is unknown never matches a category filter.
func FilterProducts(products []Product, categories []Category, f ProductFilter) []Product {
	byID := make(map[int64]Category, len(categories))
	for _, c := range categories {
		byID[c.ID] = c
	}
	query := strings.ToLower(strings.TrimSpace(f.Query))

	result := make([]Product, 0, len(products))
	for _, p := range products {
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Name), query) &&
			!strings.Contains(strings.ToLower(p.Code), query) {
			continue
		}
		if f.CategoryID != 0 && !inCategory(p, byID, f.CategoryID) {
			continue
		}
		if f.SubcategoryID != 0 && (p.CategoryID == nil || *p.CategoryID != f.SubcategoryID) {
			continue
		}
		result = append(result, p)
	}
	return result
}

func inCategory(p Product, byID map[int64]Category, parentID int64) bool {
	if p.CategoryID == nil {
		return false
	}
	c, ok := byID[*p.CategoryID]
	if !ok {
		return false
	}
	if c.ParentID != nil {
		return *c.ParentID == parentID
	}
	return c.ID == parentID
}

// Subcategories returns the direct children of parentID.
func Subcategories(categories []Category, parentID int64) []Category {
	var result []Category
	for _, c := range categories {
		if c.ParentID != nil && *c.ParentID == parentID {
			result = append(result, c)
		}
	}
	return result
}
