// Package model defines the payment instruction and batch types shared by
// the automation engine, the store and the HTTP service.
package model

// Instruction lifecycle. Transitions only ever move forward:
// pending -> processing -> sent | failed.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusSent       = "sent"
	StatusFailed     = "failed"
)

// CheckEntry is a single check to be issued through the portal.
type CheckEntry struct {
	ID          string  `json:"id"`
	PayeeName   string  `json:"payeeName"`
	CUIT        string  `json:"cuitNumber"`
	Amount      float64 `json:"amount"`
	PaymentDate string  `json:"paymentDate"`
	Email       string  `json:"email"`
	Status      string  `json:"status"`
	SentAt      string  `json:"sentAt,omitempty"`
	UpdatedAt   string  `json:"updatedAt,omitempty"`
}

// TransferEntry is a single wire transfer to be submitted through the portal.
type TransferEntry struct {
	ID           string  `json:"id"`
	ProviderName string  `json:"providerName"`
	CUIT         string  `json:"cuitNumber"`
	CBU          string  `json:"cbu"`
	Amount       float64 `json:"amount"`
	PaymentDate  string  `json:"paymentDate"`
	Status       string  `json:"status"`
	SentAt       string  `json:"sentAt,omitempty"`
	UpdatedAt    string  `json:"updatedAt,omitempty"`
}

// Batch is an ordered upload of checks. TotalAmount is computed once at
// creation and is not re-validated after partial sends.
type Batch struct {
	ID          string       `json:"id"`
	FileName    string       `json:"fileName"`
	UploadedAt  string       `json:"uploadedAt"`
	Checks      []CheckEntry `json:"checks"`
	TotalAmount float64      `json:"totalAmount"`
}

// TransferBatch is an ordered upload of transfers.
type TransferBatch struct {
	ID          string          `json:"id"`
	FileName    string          `json:"fileName"`
	UploadedAt  string          `json:"uploadedAt"`
	Transfers   []TransferEntry `json:"transfers"`
	TotalAmount float64         `json:"totalAmount"`
}

// SumCheckAmounts returns the batch total for a set of checks.
func SumCheckAmounts(checks []CheckEntry) float64 {
	var total float64
	for _, c := range checks {
		total += c.Amount
	}
	return total
}

// SumTransferAmounts returns the batch total for a set of transfers.
func SumTransferAmounts(transfers []TransferEntry) float64 {
	var total float64
	for _, t := range transfers {
		total += t.Amount
	}
	return total
}
