package model

type HandoffMode string

const (
	HandoffRedirect HandoffMode = "redirect"
	HandoffStorage  HandoffMode = "storage"
)

type Contact struct {
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
	Phone  string `json:"phone,omitempty"`
}

// VoucherCheckout is persisted by the client under the handoff storage key
// and read back by the checkout page.
type VoucherCheckout struct {
	Slot    Slot    `json:"slot"`
	HoldID  string  `json:"hold_id"`
	Contact Contact `json:"contact"`
}

// Handoff transfers a held slot to the external checkout flow.
type Handoff struct {
	Mode       HandoffMode      `json:"mode"`
	URL        string           `json:"url"`
	StorageKey string           `json:"storage_key,omitempty"`
	Payload    *VoucherCheckout `json:"payload,omitempty"`
}

// Arbitration is the successful outcome of arbitrating a slot.
type Arbitration struct {
	Hold    Hold    `json:"hold"`
	Handoff Handoff `json:"handoff"`
}
