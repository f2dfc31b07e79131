package service

import (
	"context"
	"slices"
	"strings"
	"time"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
)

const (
	topProductsLimit  = 10
	defaultReportDays = 7
	maxReportDays     = 366
)

type StatisticsQuery struct {
	From   string
	To     string
	UserID string
}

// Statistics aggregates sales, returns and purchases for an inclusive range
// of business-local days. Returns count against the day they were processed
// and the user who processed them, not the original sale.
func (s *Service) Statistics(ctx context.Context, query StatisticsQuery) (domain.Statistics, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Statistics{}, err
	}

	firstDay, lastDay, err := s.reportDays(query.From, query.To)
	if err != nil {
		return domain.Statistics{}, err
	}
	from := firstDay.UTC()
	to := lastDay.AddDate(0, 0, 1).UTC()
	userID := strings.TrimSpace(query.UserID)

	sales, err := s.repo.ListSalesBetween(ctx, from, to, userID)
	if err != nil {
		return domain.Statistics{}, err
	}
	returns, err := s.repo.ListReturnsBetween(ctx, from, to, userID)
	if err != nil {
		return domain.Statistics{}, err
	}
	costs, err := s.costLookup(ctx, sales, returns)
	if err != nil {
		return domain.Statistics{}, err
	}
	lowStock, err := s.repo.ListLowStock(ctx)
	if err != nil {
		return domain.Statistics{}, err
	}
	purchases, err := s.repo.ListPurchases(ctx, domain.PurchaseFilter{From: from, To: to})
	if err != nil {
		return domain.Statistics{}, err
	}

	stats := domain.Statistics{
		From:      firstDay.Format("2006-01-02"),
		To:        lastDay.Format("2006-01-02"),
		CostBasis: s.costBasis,
		LowStock:  lowStock,
		Purchases: s.purchaseStats(purchases),
	}

	payments := make(map[string]*domain.PaymentBreakdown, len(domain.PaymentMethods))
	for _, method := range domain.PaymentMethods {
		payments[method] = &domain.PaymentBreakdown{Method: method}
	}
	paymentFor := func(method string) *domain.PaymentBreakdown {
		p, ok := payments[method]
		if !ok {
			p = &domain.PaymentBreakdown{Method: method}
			payments[method] = p
		}
		return p
	}

	daily := make(map[string]*domain.DailyTotal)
	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		daily[key] = &domain.DailyTotal{Date: key}
	}
	dayFor := func(at time.Time) *domain.DailyTotal {
		return daily[at.In(s.location).Format("2006-01-02")]
	}

	employees := make(map[string]*domain.EmployeeStats)
	employeeFor := func(id string, username string) *domain.EmployeeStats {
		e, ok := employees[id]
		if !ok {
			e = &domain.EmployeeStats{UserID: id}
			employees[id] = e
		}
		if e.Username == "" {
			e.Username = username
		}
		return e
	}

	top := make(map[string]*domain.TopProduct)
	for _, sale := range sales {
		stats.SalesCount++
		stats.GrossSales += sale.Total

		p := paymentFor(sale.PaymentMethod)
		p.Count++
		p.Gross += sale.Total

		if d := dayFor(sale.CreatedAt); d != nil {
			d.Sales += sale.Total
		}

		e := employeeFor(sale.UserID, sale.Username)
		e.SalesCount++
		e.Gross += sale.Total

		for _, item := range sale.Items {
			profit := (item.UnitPrice - costs.cost(item.ProductID, item.UnitCost)).Mul(item.Quantity)
			stats.Profit += profit
			e.Profit += profit

			t, ok := top[item.ProductID]
			if !ok {
				t = &domain.TopProduct{ProductID: item.ProductID, Name: item.ProductName}
				top[item.ProductID] = t
			}
			t.Quantity += item.Quantity
			t.Revenue += item.Subtotal
		}
	}

	for _, ret := range returns {
		stats.ReturnsCount++
		stats.ReturnsTotal += ret.Total

		paymentFor(ret.PaymentMethod).Refunded += ret.Total

		if d := dayFor(ret.CreatedAt); d != nil {
			d.Returns += ret.Total
		}

		e := employeeFor(ret.UserID, ret.Username)
		e.Returns += ret.Total

		for _, item := range ret.Items {
			profit := (item.UnitPrice - costs.cost(item.ProductID, item.UnitCost)).Mul(item.Quantity)
			stats.Profit -= profit
			e.Profit -= profit
		}
	}

	stats.Revenue = stats.GrossSales - stats.ReturnsTotal
	if stats.SalesCount > 0 {
		stats.AverageSale = money.FromCents(stats.GrossSales.Cents() / int64(stats.SalesCount))
	}

	stats.ByPayment = make([]domain.PaymentBreakdown, 0, len(payments))
	for _, method := range domain.PaymentMethods {
		p := payments[method]
		p.Net = p.Gross - p.Refunded
		stats.ByPayment = append(stats.ByPayment, *p)
		delete(payments, method)
	}
	legacy := make([]string, 0, len(payments))
	for method := range payments {
		legacy = append(legacy, method)
	}
	slices.Sort(legacy)
	for _, method := range legacy {
		p := payments[method]
		p.Net = p.Gross - p.Refunded
		stats.ByPayment = append(stats.ByPayment, *p)
	}

	stats.Daily = make([]domain.DailyTotal, 0, len(daily))
	for day := firstDay; !day.After(lastDay); day = day.AddDate(0, 0, 1) {
		d := daily[day.Format("2006-01-02")]
		d.Net = d.Sales - d.Returns
		stats.Daily = append(stats.Daily, *d)
	}

	stats.TopProducts = make([]domain.TopProduct, 0, len(top))
	for _, t := range top {
		stats.TopProducts = append(stats.TopProducts, *t)
	}
	slices.SortFunc(stats.TopProducts, func(a, b domain.TopProduct) int {
		if a.Quantity != b.Quantity {
			return b.Quantity - a.Quantity
		}
		return strings.Compare(a.Name, b.Name)
	})
	if len(stats.TopProducts) > topProductsLimit {
		stats.TopProducts = stats.TopProducts[:topProductsLimit]
	}

	stats.Employees = make([]domain.EmployeeStats, 0, len(employees))
	for _, e := range employees {
		e.Revenue = e.Gross - e.Returns
		if e.SalesCount > 0 {
			e.AverageSale = money.FromCents(e.Gross.Cents() / int64(e.SalesCount))
		}
		stats.Employees = append(stats.Employees, *e)
	}
	slices.SortFunc(stats.Employees, func(a, b domain.EmployeeStats) int {
		if a.Revenue != b.Revenue {
			if a.Revenue > b.Revenue {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Username, b.Username)
	})

	return stats, nil
}

// reportDays resolves the inclusive day range, defaulting to the last seven
// days ending today.
func (s *Service) reportDays(from string, to string) (time.Time, time.Time, error) {
	start, end, err := s.dayRange(from, to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	lastDay := s.today()
	if !end.IsZero() {
		lastDay = end.AddDate(0, 0, -1)
	}
	firstDay := lastDay.AddDate(0, 0, -(defaultReportDays - 1))
	if !start.IsZero() {
		firstDay = start
	}
	if firstDay.After(lastDay) {
		return time.Time{}, time.Time{}, invalid("from must not be after to")
	}
	if lastDay.Sub(firstDay) > maxReportDays*24*time.Hour {
		return time.Time{}, time.Time{}, invalid("range must not exceed %d days", maxReportDays)
	}
	return firstDay, lastDay, nil
}

type costTable struct {
	historical bool
	current    map[string]money.Amount
}

// cost returns the unit cost used for profit: the snapshot taken at sale
// time, or the product's cost price now.
func (c costTable) cost(productID string, snapshot money.Amount) money.Amount {
	if c.historical {
		return snapshot
	}
	if current, ok := c.current[productID]; ok {
		return current
	}
	return snapshot
}

func (s *Service) costLookup(ctx context.Context, sales []domain.Sale, returns []domain.Return) (costTable, error) {
	if s.costBasis == domain.CostBasisHistorical {
		return costTable{historical: true}, nil
	}
	seen := make(map[string]struct{})
	ids := make([]string, 0, 32)
	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	for _, sale := range sales {
		for _, item := range sale.Items {
			add(item.ProductID)
		}
	}
	for _, ret := range returns {
		for _, item := range ret.Items {
			add(item.ProductID)
		}
	}
	if len(ids) == 0 {
		return costTable{}, nil
	}
	products, err := s.repo.GetProductsByIDs(ctx, ids)
	if err != nil {
		return costTable{}, err
	}
	current := make(map[string]money.Amount, len(products))
	for id, p := range products {
		current[id] = p.CostPrice
	}
	return costTable{current: current}, nil
}
