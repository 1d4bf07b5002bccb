package postgres

import (
	"encoding/json"
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

	ID           string            `grove:"id,pk"`
	ExternalKey  string            `grove:"external_key"`
	Name         string            `grove:"name"`
	Currency     string            `grove:"currency"`
	BillingDay   int               `grove:"billing_day"`
	Parked       bool              `grove:"parked"`
	ParkedReason string            `grove:"parked_reason"`
	ParkedAt     *time.Time        `grove:"parked_at"`
	Metadata     map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt    time.Time         `grove:"created_at"`
	UpdatedAt    time.Time         `grove:"updated_at"`
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

// Items persist as a JSONB column on the invoice row, so committing an
// invoice with all its items is a single atomic insert.
type invoiceModel struct {
	grove.BaseModel `grove:"table:invoicing_invoices"`

	ID          string            `grove:"id,pk"`
	AccountID   string            `grove:"account_id"`
	InvoiceDate time.Time         `grove:"invoice_date"`
	TargetDate  time.Time         `grove:"target_date"`
	Status      string            `grove:"status"`
	Currency    string            `grove:"currency"`
	Items       json.RawMessage   `grove:"items,type:jsonb"`
	PaidAt      *time.Time        `grove:"paid_at"`
	PaymentRef  string            `grove:"payment_ref"`
	VoidedAt    *time.Time        `grove:"voided_at"`
	VoidReason  string            `grove:"void_reason"`
	Metadata    map[string]string `grove:"metadata,type:jsonb"`
	CreatedAt   time.Time         `grove:"created_at"`
	UpdatedAt   time.Time         `grove:"updated_at"`
}

func toInvoiceModel(inv *invoice.Invoice) (*invoiceModel, error) {
	items, err := json.Marshal(inv.Items)
	if err != nil {
		return nil, err
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
	}, nil
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

	var items []invoice.Item
	if len(m.Items) > 0 {
		if err := json.Unmarshal(m.Items, &items); err != nil {
			return nil, err
		}
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
