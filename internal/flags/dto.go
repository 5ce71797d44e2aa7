package flags

type CreateFlagRequest struct {
	Name        string  `json:"name" validate:"required,min=1,max=255"`
	Description *string `json:"description,omitempty"`
	IsEnabled   bool    `json:"is_enabled"`
}

type UpdateFlagRequest struct {
	Name        *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
	Description *string `json:"description,omitempty"`
	IsEnabled   *bool   `json:"is_enabled,omitempty"`
}

// IsEmpty reports whether the update carries no fields at all.
func (r UpdateFlagRequest) IsEmpty() bool {
	return r.Name == nil && r.Description == nil && r.IsEnabled == nil
}

type ToggleFlagRequest struct {
	IsEnabled *bool `json:"is_enabled" validate:"required"`
}

type SetOverrideRequest struct {
	IsEnabled *bool `json:"is_enabled" validate:"required"`
}

type ListFlagsRequest struct {
	Skip        int  `json:"skip" validate:"gte=0"`
	Limit       int  `json:"limit" validate:"gte=1,lte=200"`
	EnabledOnly bool `json:"enabled_only"`
}

type ListOverridesRequest struct {
	Skip  int `json:"skip" validate:"gte=0"`
	Limit int `json:"limit" validate:"gte=1,lte=200"`
}

type FlagListResponse struct {
	Items []Flag `json:"items"`
	Total int    `json:"total"`
}

type OverrideListResponse struct {
	Items []Override `json:"items"`
	Total int        `json:"total"`
}

type MessageResponse struct {
	Detail string `json:"detail"`
}
