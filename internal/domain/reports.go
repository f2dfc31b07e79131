package domain

import (
	"time"

	"vetpos/backend/internal/money"
)

type StatisticsFilter struct {
	From   time.Time
	To     time.Time
	UserID string
}

type PaymentBreakdown struct {
	Method   string       `json:"method"`
	Count    int          `json:"count"`
	Gross    money.Amount `json:"gross"`
	Refunded money.Amount `json:"refunded"`
	Net      money.Amount `json:"net"`
}

type TopProduct struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Quantity  int          `json:"quantity"`
	Revenue   money.Amount `json:"revenue"`
}

type DailyTotal struct {
	Date    string       `json:"date"`
	Sales   money.Amount `json:"sales"`
	Returns money.Amount `json:"returns"`
	Net     money.Amount `json:"net"`
}

type EmployeeStats struct {
	UserID      string       `json:"user_id"`
	Username    string       `json:"username"`
	SalesCount  int          `json:"sales_count"`
	Gross       money.Amount `json:"gross"`
	Returns     money.Amount `json:"returns"`
	Revenue     money.Amount `json:"revenue"`
	Profit      money.Amount `json:"profit"`
	AverageSale money.Amount `json:"average_sale"`
}

type Statistics struct {
	From         string             `json:"from"`
	To           string             `json:"to"`
	SalesCount   int                `json:"sales_count"`
	ReturnsCount int                `json:"returns_count"`
	GrossSales   money.Amount       `json:"gross_sales"`
	ReturnsTotal money.Amount       `json:"returns_total"`
	Revenue      money.Amount       `json:"revenue"`
	Profit       money.Amount       `json:"profit"`
	CostBasis    string             `json:"cost_basis"`
	AverageSale  money.Amount       `json:"average_sale"`
	ByPayment    []PaymentBreakdown `json:"by_payment"`
	TopProducts  []TopProduct       `json:"top_products"`
	Daily        []DailyTotal       `json:"daily"`
	Employees    []EmployeeStats    `json:"employees"`
	LowStock     []Product          `json:"low_stock"`
	Purchases    PurchaseStats      `json:"purchases"`
}
