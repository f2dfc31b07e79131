package httpapi

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
)

func statisticsToCSV(stats domain.Statistics) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	rows := [][]string{
		{"section", "key", "value"},
		{"summary", "from", stats.From},
		{"summary", "to", stats.To},
		{"summary", "sales_count", strconv.Itoa(stats.SalesCount)},
		{"summary", "returns_count", strconv.Itoa(stats.ReturnsCount)},
		{"summary", "gross_sales", stats.GrossSales.String()},
		{"summary", "returns_total", stats.ReturnsTotal.String()},
		{"summary", "revenue", stats.Revenue.String()},
		{"summary", "profit", stats.Profit.String()},
		{"summary", "cost_basis", stats.CostBasis},
		{"summary", "average_sale", stats.AverageSale.String()},
	}
	for _, p := range stats.ByPayment {
		rows = append(rows,
			[]string{"payment", p.Method + "_count", strconv.Itoa(p.Count)},
			[]string{"payment", p.Method + "_net", p.Net.String()},
		)
	}
	for _, d := range stats.Daily {
		rows = append(rows, []string{"daily", d.Date, d.Net.String()})
	}
	for _, t := range stats.TopProducts {
		rows = append(rows, []string{"top_product", t.Name, strconv.Itoa(t.Quantity)})
	}
	for _, e := range stats.Employees {
		rows = append(rows, []string{"employee", e.Username, e.Revenue.String()})
	}

	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var statisticsHTMLTmpl = template.Must(template.New("statistics").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Estadísticas {{.From}} a {{.To}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num { text-align: right; }
    h2, h3 { margin-bottom: 4px; }
  </style>
</head>
<body>
  <h2>Estadísticas {{.From}} a {{.To}}</h2>
  <p>Ventas: {{.SalesCount}} | Devoluciones: {{.ReturnsCount}}</p>
  <p>Bruto: ${{.GrossSales}} | Devuelto: ${{.ReturnsTotal}} | Ingresos: ${{.Revenue}} | Ganancia: ${{.Profit}} | Promedio: ${{.AverageSale}}</p>

  <h3>Por método de pago</h3>
  <table>
    <thead><tr><th>Método</th><th>Ventas</th><th>Bruto</th><th>Devuelto</th><th>Neto</th></tr></thead>
    <tbody>{{range .ByPayment}}<tr><td>{{.Method}}</td><td class="num">{{.Count}}</td><td class="num">{{.Gross}}</td><td class="num">{{.Refunded}}</td><td class="num">{{.Net}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Por día</h3>
  <table>
    <thead><tr><th>Fecha</th><th>Ventas</th><th>Devoluciones</th><th>Neto</th></tr></thead>
    <tbody>{{range .Daily}}<tr><td>{{.Date}}</td><td class="num">{{.Sales}}</td><td class="num">{{.Returns}}</td><td class="num">{{.Net}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Productos más vendidos</h3>
  <table>
    <thead><tr><th>Producto</th><th>Cantidad</th><th>Ingresos</th></tr></thead>
    <tbody>{{range .TopProducts}}<tr><td>{{.Name}}</td><td class="num">{{.Quantity}}</td><td class="num">{{.Revenue}}</td></tr>{{end}}</tbody>
  </table>

  <h3>Empleados</h3>
  <table>
    <thead><tr><th>Usuario</th><th>Ventas</th><th>Ingresos</th><th>Ganancia</th></tr></thead>
    <tbody>{{range .Employees}}<tr><td>{{.Username}}</td><td class="num">{{.SalesCount}}</td><td class="num">{{.Revenue}}</td><td class="num">{{.Profit}}</td></tr>{{end}}</tbody>
  </table>
</body>
</html>
`))

func statisticsToHTML(stats domain.Statistics) ([]byte, error) {
	var buf bytes.Buffer
	if err := statisticsHTMLTmpl.Execute(&buf, stats); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func statisticsToXLSX(stats domain.Statistics) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summary := "Resumen"
	if err := f.SetSheetName("Sheet1", summary); err != nil {
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return nil, err
	}

	summaryRows := [][]any{
		{"Desde", stats.From},
		{"Hasta", stats.To},
		{"Ventas", stats.SalesCount},
		{"Devoluciones", stats.ReturnsCount},
		{"Bruto", stats.GrossSales.Float()},
		{"Devuelto", stats.ReturnsTotal.Float()},
		{"Ingresos", stats.Revenue.Float()},
		{"Ganancia", stats.Profit.Float()},
		{"Promedio por venta", stats.AverageSale.Float()},
	}
	for i, row := range summaryRows {
		if err := f.SetSheetRow(summary, fmt.Sprintf("A%d", i+1), &row); err != nil {
			return nil, err
		}
	}
	if err := f.SetCellStyle(summary, "A1", fmt.Sprintf("A%d", len(summaryRows)), bold); err != nil {
		return nil, err
	}
	_ = f.SetColWidth(summary, "A", "A", 22)

	sheets := []struct {
		name    string
		headers []any
		rows    [][]any
	}{
		{"Pagos", []any{"Método", "Ventas", "Bruto", "Devuelto", "Neto"}, paymentRows(stats.ByPayment)},
		{"Diario", []any{"Fecha", "Ventas", "Devoluciones", "Neto"}, dailyRows(stats.Daily)},
		{"Productos", []any{"Producto", "Cantidad", "Ingresos"}, topProductRows(stats.TopProducts)},
		{"Empleados", []any{"Usuario", "Ventas", "Bruto", "Devuelto", "Ingresos", "Ganancia"}, employeeRows(stats.Employees)},
	}
	for _, sheet := range sheets {
		if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet.name, "A1", &sheet.headers); err != nil {
			return nil, err
		}
		last, _ := excelize.ColumnNumberToName(len(sheet.headers))
		if err := f.SetCellStyle(sheet.name, "A1", last+"1", bold); err != nil {
			return nil, err
		}
		for i, row := range sheet.rows {
			if err := f.SetSheetRow(sheet.name, fmt.Sprintf("A%d", i+2), &row); err != nil {
				return nil, err
			}
		}
		_ = f.SetColWidth(sheet.name, "A", "A", 28)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func paymentRows(payments []domain.PaymentBreakdown) [][]any {
	rows := make([][]any, 0, len(payments))
	for _, p := range payments {
		rows = append(rows, []any{p.Method, p.Count, p.Gross.Float(), p.Refunded.Float(), p.Net.Float()})
	}
	return rows
}

func dailyRows(days []domain.DailyTotal) [][]any {
	rows := make([][]any, 0, len(days))
	for _, d := range days {
		rows = append(rows, []any{d.Date, d.Sales.Float(), d.Returns.Float(), d.Net.Float()})
	}
	return rows
}

func topProductRows(products []domain.TopProduct) [][]any {
	rows := make([][]any, 0, len(products))
	for _, t := range products {
		rows = append(rows, []any{t.Name, t.Quantity, t.Revenue.Float()})
	}
	return rows
}

func employeeRows(employees []domain.EmployeeStats) [][]any {
	rows := make([][]any, 0, len(employees))
	for _, e := range employees {
		rows = append(rows, []any{e.Username, e.SalesCount, e.Gross.Float(), e.Returns.Float(), e.Revenue.Float(), e.Profit.Float()})
	}
	return rows
}

var invoiceHTMLTmpl = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": func(a money.Amount) string { return "$" + a.String() },
}).Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Factura {{.Invoice.Sale.Number}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; max-width: 720px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border-bottom: 1px solid #ddd; padding: 6px; font-size: 13px; }
    td.num, th.num { text-align: right; }
    .muted { color: #666; font-size: 12px; }
  </style>
</head>
<body>
  <h2>{{.Invoice.Business.Name}}</h2>
  {{with .Invoice.Business.TaxID}}<p class="muted">NIT: {{.}}</p>{{end}}
  {{with .Invoice.Business.Address}}<p class="muted">{{.}}</p>{{end}}
  {{with .Invoice.Business.Phone}}<p class="muted">Tel: {{.}}</p>{{end}}

  <h3>Factura {{.Invoice.Sale.Number}}</h3>
  <p>Fecha: {{.SoldAt}} | Atendió: {{.Invoice.Cashier}} | Pago: {{.Invoice.Sale.PaymentMethod}}</p>
  {{with .Invoice.Animal}}<p>Paciente: {{.Name}} ({{.Species}}) | Propietario: {{.OwnerName}}</p>{{end}}
  {{with .Invoice.Consultation}}<p>Motivo de consulta: {{.Reason}}</p>{{end}}

  <table>
    <thead><tr><th>Producto</th><th class="num">Cant.</th><th class="num">Precio</th><th class="num">Subtotal</th></tr></thead>
    <tbody>{{range .Invoice.Sale.Items}}<tr><td>{{.ProductName}}</td><td class="num">{{.Quantity}}</td><td class="num">{{money .UnitPrice}}</td><td class="num">{{money .Subtotal}}</td></tr>{{end}}</tbody>
  </table>

  <p><strong>Total: {{money .Invoice.Sale.Total}}</strong></p>
  {{if .Invoice.ReturnedTotal}}<p>Devuelto: {{money .Invoice.ReturnedTotal}} | Neto: {{money .Invoice.NetTotal}}</p>{{end}}
  <p class="muted">Gracias por su compra</p>
</body>
</html>
`))

func renderInvoiceHTML(invoice domain.Invoice, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	err := invoiceHTMLTmpl.Execute(&buf, struct {
		Invoice domain.Invoice
		SoldAt  string
	}{
		Invoice: invoice,
		SoldAt:  invoice.Sale.CreatedAt.In(loc).Format("2006-01-02 15:04"),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
