package httpapi

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
)

func sampleStatistics() domain.Statistics {
	return domain.Statistics{
		From:         "2026-03-01",
		To:           "2026-03-07",
		SalesCount:   3,
		ReturnsCount: 1,
		GrossSales:   money.MustParse("120000"),
		ReturnsTotal: money.MustParse("20000"),
		Revenue:      money.MustParse("100000"),
		Profit:       money.MustParse("40000"),
		CostBasis:    domain.CostBasisCurrent,
		AverageSale:  money.MustParse("33333.33"),
		ByPayment: []domain.PaymentBreakdown{
			{Method: domain.PaymentCash, Count: 2, Gross: money.MustParse("80000"), Refunded: money.MustParse("20000"), Net: money.MustParse("60000")},
			{Method: domain.PaymentNequi, Count: 1, Gross: money.MustParse("40000"), Net: money.MustParse("40000")},
		},
		TopProducts: []domain.TopProduct{{ProductID: "prd_nexgard", Name: "NexGard M", Quantity: 2, Revenue: money.MustParse("124000")}},
		Daily:       []domain.DailyTotal{{Date: "2026-03-01", Sales: money.MustParse("120000"), Returns: money.MustParse("20000"), Net: money.MustParse("100000")}},
		Employees:   []domain.EmployeeStats{{UserID: "usr_1", Username: "caja", SalesCount: 3, Revenue: money.MustParse("100000")}},
	}
}

func TestStatisticsToCSV(t *testing.T) {
	body, err := statisticsToCSV(sampleStatistics())
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"section", "key", "value"}, rows[0])
	assert.Contains(t, rows, []string{"summary", "revenue", "100000.00"})
	assert.Contains(t, rows, []string{"payment", "efectivo_net", "60000.00"})
	assert.Contains(t, rows, []string{"top_product", "NexGard M", "2"})
}

func TestStatisticsToXLSXSheets(t *testing.T) {
	body, err := statisticsToXLSX(sampleStatistics())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(body))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Resumen", "Pagos", "Diario", "Productos", "Empleados"}, f.GetSheetList())

	revenue, err := f.GetCellValue("Resumen", "B7")
	require.NoError(t, err)
	assert.Equal(t, "100000", revenue)

	method, err := f.GetCellValue("Pagos", "A2")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentCash, method)

	rows, err := f.GetRows("Empleados")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "caja", rows[1][0])
}

func TestStatisticsToHTMLEscapes(t *testing.T) {
	stats := sampleStatistics()
	stats.TopProducts[0].Name = "<script>x</script>"

	body, err := statisticsToHTML(stats)
	require.NoError(t, err)
	assert.NotContains(t, string(body), "<script>x</script>")
	assert.Contains(t, string(body), "Estadísticas 2026-03-01 a 2026-03-07")
}

func TestRenderInvoiceHTML(t *testing.T) {
	loc, err := time.LoadLocation("America/Bogota")
	require.NoError(t, err)

	invoice := domain.Invoice{
		Business: domain.DefaultSettings(),
		Sale: domain.Sale{
			Number:        "V-20260310-0001",
			PaymentMethod: domain.PaymentCash,
			CreatedAt:     time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC),
			Total:         money.MustParse("72000"),
			Items: []domain.SaleItem{
				{ProductName: "Vacuna", Quantity: 1, UnitPrice: money.MustParse("35000"), Subtotal: money.MustParse("35000")},
			},
		},
		Cashier:  "caja",
		NetTotal: money.MustParse("72000"),
		Animal:   &domain.Animal{Name: "Toby", Species: "Perro", OwnerName: "Camila"},
	}

	body, err := renderInvoiceHTML(invoice, loc)
	require.NoError(t, err)
	html := string(body)
	assert.Contains(t, html, "Factura V-20260310-0001")
	assert.Contains(t, html, "2026-03-10 10:00")
	assert.Contains(t, html, "Total: $72000.00")
	assert.Contains(t, html, "Paciente: Toby")
	assert.False(t, strings.Contains(html, "Devuelto:"), "no returns, no returned line")
}
