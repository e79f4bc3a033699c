package models

// Category is one node of the spending category tree. The tree is consumed
// as a lookup table; depth is bounded at three levels.
type Category struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id,omitempty"`
	Name     string `json:"name"`
	Depth    int    `json:"depth"`
}

// MaxCategoryDepth bounds descendant walks over the category tree.
const MaxCategoryDepth = 3
