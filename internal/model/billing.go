package model

import "time"

// Item types used by the HIS billing module.
const (
	ItemConsultation = "consultation"
	ItemProcedure    = "procedure"
	ItemLab          = "lab"
	ItemRadiology    = "radiology"
	ItemMedicine     = "medicine"
	ItemBed          = "bed"
	ItemSurgery      = "surgery"
	ItemNursing      = "nursing"
	ItemConsumables  = "consumables"
	ItemOther        = "other"
)

// Billing is one bill document. A visit may carry more than one bill.
type Billing struct {
	ID            string
	PatientID     string
	VisitID       string
	VisitType     string
	BillDate      *time.Time
	CreatedAt     *time.Time
	GrandTotal    float64
	PaidAmount    float64
	TotalDiscount float64
	Items         []BillingItem
}

// BillingItem is a single line of a bill. Quantity and IsBilled are optional
// in the source documents.
type BillingItem struct {
	ItemType      string  `json:"itemType"`
	ItemReference string  `json:"itemReference,omitempty"`
	ItemCode      string  `json:"itemCode,omitempty"`
	ServiceCode   string  `json:"serviceCode,omitempty"`
	Description   string  `json:"description,omitempty"`
	Rate          float64 `json:"rate"`
	Quantity      *int    `json:"quantity,omitempty"`
	Amount        float64 `json:"amount"`
	IsBilled      *bool   `json:"isBilled,omitempty"`
}

// Qty returns the item quantity, 1 when absent.
func (it BillingItem) Qty() int {
	if it.Quantity == nil {
		return 1
	}
	return *it.Quantity
}

// Billed reports whether the item is billed. Only an explicit false counts as unbilled.
func (it BillingItem) Billed() bool {
	return it.IsBilled == nil || *it.IsBilled
}

// Code returns the tariff lookup code: itemCode, falling back to serviceCode.
func (it BillingItem) Code() string {
	if it.ItemCode != "" {
		return it.ItemCode
	}
	return it.ServiceCode
}

// HasItem reports whether the bill contains an item of the given type that
// references ref. An empty ref matches any item of that type.
func (b *Billing) HasItem(itemType, ref string) bool {
	for _, it := range b.Items {
		if it.ItemType != itemType {
			continue
		}
		if ref == "" || it.ItemReference == ref {
			return true
		}
	}
	return false
}

// EffectiveDate returns billDate, falling back to createdAt.
func (b *Billing) EffectiveDate() *time.Time {
	if b.BillDate != nil {
		return b.BillDate
	}
	return b.CreatedAt
}

// BillingColumns returns the ordered column names for COPY into his.billings.
func BillingColumns() []string {
	return []string{
		"id",
		"patient_id",
		"visit_id",
		"visit_type",
		"bill_date",
		"created_at",
		"grand_total",
		"paid_amount",
		"total_discount",
		"items",
	}
}

// CopyValues returns the row values in the same order as BillingColumns().
func (b *Billing) CopyValues() []any {
	items := b.Items
	if items == nil {
		items = []BillingItem{}
	}
	return []any{
		b.ID,
		b.PatientID,
		nullable(b.VisitID),
		b.VisitType,
		b.BillDate,
		b.CreatedAt,
		b.GrandTotal,
		b.PaidAmount,
		b.TotalDiscount,
		items,
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
