package dto

import (
	"time"

	"github.com/noah-isme/sma-lms-api/internal/models"
)

// FeeStructureRequest sets the monthly rate of a class.
type FeeStructureRequest struct {
	MonthlyAmount float64 `json:"monthly_amount" validate:"required,gt=0"`
	Currency      string  `json:"currency" validate:"omitempty,len=3"`
}

// GenerateFeesRequest explicitly creates a schedule; session defaults to the class session.
type GenerateFeesRequest struct {
	SessionID string `json:"session_id"`
}

// PayFeeRequest settles a monthly fee.
type PayFeeRequest struct {
	ReceiptNumber string     `json:"receipt_number" validate:"max=64"`
	PaymentDate   *time.Time `json:"payment_date"`
}

// PayFeeResponse returns the settled fee and a signed receipt link.
type PayFeeResponse struct {
	Fee              models.MonthlyFee `json:"fee"`
	ReceiptURL       string            `json:"receipt_url"`
	ReceiptExpiresAt time.Time         `json:"receipt_expires_at"`
}

// FeeExportFormat enumerates catalog export renderers.
type FeeExportFormat string

const (
	FeeExportCSV  FeeExportFormat = "csv"
	FeeExportPDF  FeeExportFormat = "pdf"
	FeeExportXLSX FeeExportFormat = "xlsx"
)

// FeeExport is a rendered catalog document.
type FeeExport struct {
	Filename    string
	ContentType string
	Body        []byte
}
