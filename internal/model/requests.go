package model

// NewInventoryItem is one manually entered fridge item.
type NewInventoryItem struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Quantity *string `json:"quantity,omitempty" validate:"omitempty,max=100"`
	Category *string `json:"category,omitempty" validate:"omitempty,max=50"`
}

// AddInventoryRequest is the body of POST /api/inventory
type AddInventoryRequest struct {
	Items []NewInventoryItem `json:"items" validate:"required,min=1,max=100,dive"`
}

// UpdateInventoryRequest is the body of PUT /api/inventory/:id. Omitted
// fields stay unchanged.
type UpdateInventoryRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,min=1,max=200"`
	Quantity *string `json:"quantity,omitempty" validate:"omitempty,max=100"`
	Category *string `json:"category,omitempty" validate:"omitempty,max=50"`
}

// CreateMatchRequest is the body of POST /api/matches
type CreateMatchRequest struct {
	CookbookID   string `json:"cookbookId" validate:"required,uuid"`
	FridgeScanID string `json:"fridgeScanId" validate:"required,uuid"`
}

// SelectProductRequest is the body of POST /api/cookbooks/:id/product-lookup/select
type SelectProductRequest struct {
	ProductID string `json:"productId" validate:"required,max=64"`
}

// RecommendationQuery is the query string of GET /api/recommendations. A
// nil MinMatch uses the configured default.
type RecommendationQuery struct {
	MinMatch *int   `query:"minMatch" validate:"omitempty,min=0,max=100"`
	Limit    int    `query:"limit" validate:"min=0,max=100"`
	Offset   int    `query:"offset" validate:"min=0"`
	Cuisine  string `query:"cuisine" validate:"max=50"`
}

// PageQuery is the limit/offset query of list endpoints.
type PageQuery struct {
	Limit  int `query:"limit" validate:"min=0,max=100"`
	Offset int `query:"offset" validate:"min=0"`
}

// ScanJobQuery is the query string of GET /api/scan-jobs
type ScanJobQuery struct {
	PageQuery
	Type   string `query:"type" validate:"omitempty,oneof=cookbook fridge"`
	Status string `query:"status" validate:"omitempty,oneof=pending processing completed failed pending_review"`
}

// UpdateCookbookRequest is the body of PUT /api/cookbooks/:id
type UpdateCookbookRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

// HotRecipeQuery is the query string of GET /api/recipes/hot. Period is in
// days and defaults to 30.
type HotRecipeQuery struct {
	PageQuery
	Period  int    `query:"period" validate:"min=0,max=365"`
	Cuisine string `query:"cuisine" validate:"max=50"`
}

// PopularCookbookQuery is the query string of GET /api/cookbooks/popular
type PopularCookbookQuery struct {
	Limit  int `query:"limit" validate:"min=0,max=50"`
	Period int `query:"period" validate:"min=0,max=365"`
}
