package domain

type Calendar struct {
	ID         int64   `json:"id"`
	Name       string  `json:"calendarName"`
	OwnerID    int64   `json:"parent_id"`
	SharedWith []int64 `json:"sharedWith"`
	Owned      bool    `json:"owned"`
}

type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Offset int   `json:"offset"`
	Limit  int   `json:"limit"`
}
