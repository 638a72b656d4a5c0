package service

import (
	"context"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-lms-api/internal/dto"
	"github.com/noah-isme/sma-lms-api/internal/models"
	appErrors "github.com/noah-isme/sma-lms-api/pkg/errors"
)

func generateFor(t *testing.T, f *lmsFixture, studentID string) *models.FeeCatalog {
	t.Helper()
	f.expectTx(true)
	catalog, err := f.fees.Generate(context.Background(), studentID, dto.GenerateFeesRequest{}, adminClaims())
	require.NoError(t, err)
	return catalog
}

func TestFeeGenerateBuildsConsistentCatalog(t *testing.T) {
	f := newLMSFixture(t)
	f.fees.now = func() time.Time { return session2024Start }

	catalog := generateFor(t, f, "S1")
	assert.Equal(t, "s24", catalog.SessionID)
	assert.Equal(t, "c5a", catalog.ClassID)
	require.Len(t, catalog.Fees, 12)
	assert.Equal(t, "April", catalog.Fees[0].MonthName)
	assert.Equal(t, "March", catalog.Fees[11].MonthName)
	assert.InDelta(t, 12000, catalog.TotalAmount, 0.001)
	assert.InDelta(t, 12000, catalog.TotalPending, 0.001)
	assert.True(t, catalog.Consistent())
}

func TestFeeGenerateTwiceReturnsFeesAlreadyExist(t *testing.T) {
	f := newLMSFixture(t)
	generateFor(t, f, "S1")

	f.expectTx(false)
	_, err := f.fees.Generate(context.Background(), "S1", dto.GenerateFeesRequest{}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrFeesAlreadyExist.Code, appCode(err))
	assert.Equal(t, 409, appErrors.FromError(err).Status)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestFeeGenerateRejectsForeignSession(t *testing.T) {
	f := newLMSFixture(t)

	_, err := f.fees.Generate(context.Background(), "S1", dto.GenerateFeesRequest{SessionID: "s25"}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(err))
}

func TestFeeCatalogDerivesOverdue(t *testing.T) {
	f := newLMSFixture(t)
	generateFor(t, f, "S1")
	f.fees.now = func() time.Time { return time.Date(2024, time.May, 11, 9, 0, 0, 0, time.UTC) }

	catalog, err := f.fees.Catalog(context.Background(), "S1", "")
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusOverdue, catalog.Fees[0].Status)
	assert.Equal(t, models.FeeStatusOverdue, catalog.Fees[1].Status)
	assert.Equal(t, models.FeeStatusPending, catalog.Fees[2].Status)
	assert.InDelta(t, 2000, catalog.TotalOverdue, 0.001)
	assert.InDelta(t, 10000, catalog.TotalPending, 0.001)
	assert.Equal(t, models.FeeStatusOverdue, catalog.OverallStatus())
	assert.True(t, catalog.Consistent())
}

func TestFeeCatalogWithoutClassNeedsSession(t *testing.T) {
	f := newLMSFixture(t)
	f.store.addStudent("S9", "No Class", "")

	_, err := f.fees.Catalog(context.Background(), "S9", "")
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appCode(err))

	catalog, err := f.fees.Catalog(context.Background(), "S9", "s24")
	require.NoError(t, err)
	assert.Empty(t, catalog.Fees)
	assert.False(t, catalog.Consistent())
}

func TestFeePayGeneratesReceipt(t *testing.T) {
	f := newLMSFixture(t)
	generateFor(t, f, "S1")
	feeID := f.store.feesFor("S1", "s24")[0].ID
	f.fees.now = func() time.Time { return time.Date(2024, time.April, 5, 10, 0, 0, 0, time.UTC) }

	resp, err := f.fees.Pay(context.Background(), feeID, dto.PayFeeRequest{}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, models.FeeStatusPaid, resp.Fee.Status)
	require.NotNil(t, resp.Fee.ReceiptNumber)
	assert.Regexp(t, regexp.MustCompile(`^RCP-20240405-[0-9A-F]{8}$`), *resp.Fee.ReceiptNumber)
	require.NotNil(t, resp.Fee.PaymentDate)
	assert.True(t, resp.Fee.PaymentDate.Equal(time.Date(2024, time.April, 5, 10, 0, 0, 0, time.UTC)))
	assert.True(t, strings.HasPrefix(resp.ReceiptURL, "/api/v1/receipts/"))
	assert.False(t, resp.ReceiptExpiresAt.IsZero())
	assert.Contains(t, f.cacheRepo.invalidated, "dash:*")

	_, err = f.fees.Pay(context.Background(), feeID, dto.PayFeeRequest{ReceiptNumber: "R-2"}, adminClaims())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appCode(err))
}

func TestFeePayKeepsProvidedReceiptAndDate(t *testing.T) {
	f := newLMSFixture(t)
	generateFor(t, f, "S1")
	fee := f.store.feesFor("S1", "s24")[3]
	paidOn := time.Date(2024, time.July, 2, 0, 0, 0, 0, time.UTC)

	resp, err := f.fees.Pay(context.Background(), fee.ID, dto.PayFeeRequest{ReceiptNumber: "BANK-77", PaymentDate: &paidOn}, adminClaims())
	require.NoError(t, err)
	assert.Equal(t, "BANK-77", *resp.Fee.ReceiptNumber)
	assert.True(t, resp.Fee.PaymentDate.Equal(paidOn))
}

func TestFeePayMissingFee(t *testing.T) {
	f := newLMSFixture(t)

	_, err := f.fees.Pay(context.Background(), "fee-missing", dto.PayFeeRequest{}, adminClaims())
	assert.Equal(t, appErrors.ErrNotFound.Code, appCode(err))
}

func TestFeeReceiptFromSignedLink(t *testing.T) {
	f := newLMSFixture(t)
	generateFor(t, f, "S1")
	feeID := f.store.feesFor("S1", "s24")[0].ID

	resp, err := f.fees.Pay(context.Background(), feeID, dto.PayFeeRequest{ReceiptNumber: "RCP-1"}, adminClaims())
	require.NoError(t, err)
	token := strings.TrimPrefix(resp.ReceiptURL, "/api/v1/receipts/")

	doc, err := f.fees.Receipt(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.ContentType)
	assert.Equal(t, "receipt-RCP-1.pdf", doc.Filename)
	assert.True(t, strings.HasPrefix(string(doc.Body), "%PDF"))

	_, err = f.fees.Receipt(context.Background(), token+"x")
	assert.Equal(t, appErrors.ErrForbidden.Code, appCode(err))
}

func TestFeeExportFormats(t *testing.T) {
	f := newLMSFixture(t)
	generateFor(t, f, "S1")
	f.fees.now = func() time.Time { return session2024Start }

	csvDoc, err := f.fees.Export(context.Background(), "S1", "", dto.FeeExportCSV)
	require.NoError(t, err)
	assert.Equal(t, "text/csv", csvDoc.ContentType)
	assert.Contains(t, string(csvDoc.Body), "April,2024,2024-04-10,1000.00,PENDING")
	assert.Equal(t, "fees-S1-s24.csv", csvDoc.Filename)

	xlsxDoc, err := f.fees.Export(context.Background(), "S1", "s24", dto.FeeExportXLSX)
	require.NoError(t, err)
	assert.NotEmpty(t, xlsxDoc.Body)

	_, err = f.fees.Export(context.Background(), "S1", "s24", dto.FeeExportFormat("doc"))
	assert.Equal(t, appErrors.ErrValidation.Code, appCode(err))
}

func TestFeeMarkOverdue(t *testing.T) {
	f := newLMSFixture(t)
	generateFor(t, f, "S1")

	affected, err := f.fees.MarkOverdue(context.Background(), time.Date(2024, time.June, 11, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(3), affected)
}

func TestBuildCatalogSumsInCents(t *testing.T) {
	due := time.Date(2025, time.April, 10, 0, 0, 0, 0, time.UTC)
	fees := make([]models.MonthlyFee, 0, 10)
	for i := 1; i <= 10; i++ {
		status := models.FeeStatusPending
		if i <= 3 {
			status = models.FeeStatusPaid
		}
		fees = append(fees, models.MonthlyFee{MonthIndex: i, ClassID: "c5a", Amount: 0.1, DueDate: due.AddDate(0, i, 0), Status: status})
	}

	catalog := buildCatalog("S1", "s24", fees, due)
	assert.Equal(t, 1.0, catalog.TotalAmount)
	assert.Equal(t, 0.3, catalog.TotalPaid)
	assert.Equal(t, 0.7, catalog.TotalPending)
	assert.True(t, catalog.Consistent())
	assert.Equal(t, "1.00", formatAmount(catalog.TotalAmount))
	assert.Equal(t, "-0.05", formatAmount(-0.05))
}
