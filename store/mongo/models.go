package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/invoicing/account"
	"github.com/xraph/invoicing/id"
	"github.com/xraph/invoicing/invoice"
	"github.com/xraph/invoicing/types"
)

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:invoicing_accounts"`

	ID           string            `grove:"id,pk"         bson:"_id"`
	ExternalKey  string            `grove:"external_key"  bson:"external_key"`
	Name         string            `grove:"name"          bson:"name"`
	Currency     string            `grove:"currency"      bson:"currency"`
	BillingDay   int               `grove:"billing_day"   bson:"billing_day"`
	Parked       bool              `grove:"parked"        bson:"parked"`
	ParkedReason string            `grove:"parked_reason" bson:"parked_reason"`
	ParkedAt     *time.Time        `grove:"parked_at"     bson:"parked_at,omitempty"`
	Metadata     map[string]string `grove:"metadata"      bson:"metadata,omitempty"`
	CreatedAt    time.Time         `grove:"created_at"    bson:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"    bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:           a.ID.String(),
		ExternalKey:  a.ExternalKey,
		Name:         a.Name,
		Currency:     a.Currency,
		BillingDay:   a.BillingDay,
		Parked:       a.Parked,
		ParkedReason: a.ParkedReason,
		ParkedAt:     a.ParkedAt,
		Metadata:     a.Metadata,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}

	return &account.Account{
		ID:           accountID,
		ExternalKey:  m.ExternalKey,
		Name:         m.Name,
		Currency:     m.Currency,
		BillingDay:   m.BillingDay,
		Parked:       m.Parked,
		ParkedReason: m.ParkedReason,
		ParkedAt:     m.ParkedAt,
		Metadata:     m.Metadata,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}, nil
}

// ==================== Invoice models ====================

// Items embed in the invoice document, so committing an invoice with
// all its items is a single atomic insert.
type invoiceModel struct {
	grove.BaseModel `grove:"table:invoicing_invoices"`

	ID          string            `grove:"id,pk"        bson:"_id"`
	AccountID   string            `grove:"account_id"   bson:"account_id"`
	InvoiceDate time.Time         `grove:"invoice_date" bson:"invoice_date"`
	TargetDate  time.Time         `grove:"target_date"  bson:"target_date"`
	Status      string            `grove:"status"       bson:"status"`
	Currency    string            `grove:"currency"     bson:"currency"`
	Items       []itemModel       `grove:"items"        bson:"items"`
	PaidAt      *time.Time        `grove:"paid_at"      bson:"paid_at,omitempty"`
	PaymentRef  string            `grove:"payment_ref"  bson:"payment_ref"`
	VoidedAt    *time.Time        `grove:"voided_at"    bson:"voided_at,omitempty"`
	VoidReason  string            `grove:"void_reason"  bson:"void_reason"`
	Metadata    map[string]string `grove:"metadata"     bson:"metadata,omitempty"`
	CreatedAt   time.Time         `grove:"created_at"   bson:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"   bson:"updated_at"`
}

type itemModel struct {
	ID             string     `bson:"id"`
	InvoiceID      string     `bson:"invoice_id"`
	AccountID      string     `bson:"account_id"`
	SubscriptionID string     `bson:"subscription_id,omitempty"`
	Kind           string     `bson:"kind"`
	StartDate      time.Time  `bson:"start_date"`
	EndDate        *time.Time `bson:"end_date,omitempty"`
	AmountCents    int64      `bson:"amount_cents"`
	AmountCurrency string     `bson:"amount_currency"`
	Description    string     `bson:"description,omitempty"`
	PlanName       string     `bson:"plan_name,omitempty"`
	LinkedItemID   string     `bson:"linked_item_id,omitempty"`
	CreatedAt      time.Time  `bson:"created_at"`
}

func toInvoiceModel(inv *invoice.Invoice) *invoiceModel {
	items := make([]itemModel, len(inv.Items))
	for i, it := range inv.Items {
		items[i] = itemModel{
			ID:             it.ID.String(),
			InvoiceID:      it.InvoiceID.String(),
			AccountID:      it.AccountID.String(),
			Kind:           string(it.Kind),
			StartDate:      it.StartDate,
			EndDate:        it.EndDate,
			AmountCents:    it.Amount.Amount,
			AmountCurrency: it.Amount.Currency,
			Description:    it.Description,
			PlanName:       it.PlanName,
			CreatedAt:      it.CreatedAt,
		}
		if !it.SubscriptionID.IsNil() {
			items[i].SubscriptionID = it.SubscriptionID.String()
		}
		if !it.LinkedItemID.IsNil() {
			items[i].LinkedItemID = it.LinkedItemID.String()
		}
	}

	return &invoiceModel{
		ID:          inv.ID.String(),
		AccountID:   inv.AccountID.String(),
		InvoiceDate: inv.InvoiceDate,
		TargetDate:  inv.TargetDate,
		Status:      string(inv.Status),
		Currency:    inv.Currency,
		Items:       items,
		PaidAt:      inv.PaidAt,
		PaymentRef:  inv.PaymentRef,
		VoidedAt:    inv.VoidedAt,
		VoidReason:  inv.VoidReason,
		Metadata:    inv.Metadata,
		CreatedAt:   inv.CreatedAt,
		UpdatedAt:   inv.UpdatedAt,
	}
}

func fromInvoiceModel(m *invoiceModel) (*invoice.Invoice, error) {
	invID, err := id.ParseInvoiceID(m.ID)
	if err != nil {
		return nil, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return nil, err
	}

	items := make([]invoice.Item, len(m.Items))
	for i, im := range m.Items {
		it, err := fromItemModel(&im)
		if err != nil {
			return nil, err
		}
		items[i] = it
	}

	return &invoice.Invoice{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:          invID,
		AccountID:   accountID,
		InvoiceDate: m.InvoiceDate,
		TargetDate:  m.TargetDate,
		Status:      invoice.Status(m.Status),
		Currency:    m.Currency,
		Items:       items,
		PaidAt:      m.PaidAt,
		PaymentRef:  m.PaymentRef,
		VoidedAt:    m.VoidedAt,
		VoidReason:  m.VoidReason,
		Metadata:    m.Metadata,
	}, nil
}

func fromItemModel(m *itemModel) (invoice.Item, error) {
	itemID, err := id.ParseItemID(m.ID)
	if err != nil {
		return invoice.Item{}, err
	}
	invID, err := id.ParseInvoiceID(m.InvoiceID)
	if err != nil {
		return invoice.Item{}, err
	}
	accountID, err := id.ParseAccountID(m.AccountID)
	if err != nil {
		return invoice.Item{}, err
	}

	it := invoice.Item{
		ID:          itemID,
		InvoiceID:   invID,
		AccountID:   accountID,
		Kind:        invoice.ItemKind(m.Kind),
		StartDate:   m.StartDate,
		EndDate:     m.EndDate,
		Amount:      types.Money{Amount: m.AmountCents, Currency: m.AmountCurrency},
		Description: m.Description,
		PlanName:    m.PlanName,
		CreatedAt:   m.CreatedAt,
	}
	if m.SubscriptionID != "" {
		subID, err := id.ParseSubscriptionID(m.SubscriptionID)
		if err != nil {
			return invoice.Item{}, err
		}
		it.SubscriptionID = subID
	}
	if m.LinkedItemID != "" {
		linkID, err := id.ParseItemID(m.LinkedItemID)
		if err != nil {
			return invoice.Item{}, err
		}
		it.LinkedItemID = linkID
	}
	return it, nil
}
