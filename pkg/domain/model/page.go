package model

// PageMeta describes the position of a page inside a paged collection
type PageMeta struct {
	Page       int `json:"page"`
	Size       int `json:"size"`
	TotalItems int `json:"totalItems"`
	TotalPages int `json:"totalPages"`
}

// HasNext reports whether a page exists after this one
func (m PageMeta) HasNext() bool {
	return m.Page < m.TotalPages
}
