package domain

// Identity represents a caller resolved by the access gate
type Identity struct {
	Subject   string `json:"sub"`
	OwnerCode string `json:"code,omitempty"`
}
