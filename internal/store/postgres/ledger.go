package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/jmoiron/sqlx"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/money"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

const saleSelect = `
	SELECT s.id, s.number, s.total_cents, s.payment_method, s.notes,
		COALESCE(s.user_id, '') AS user_id, COALESCE(u.username, '') AS username, s.created_at
	FROM sales s
	LEFT JOIN users u ON u.id = s.user_id
`

const returnSelect = `
	SELECT r.id, r.number, r.sale_id, r.total_cents, r.reason,
		COALESCE(r.user_id, '') AS user_id, COALESCE(u.username, '') AS username, r.created_at,
		s.payment_method
	FROM returns r
	JOIN sales s ON s.id = r.sale_id
	LEFT JOIN users u ON u.id = r.user_id
`

type lockedProduct struct {
	ID        string       `db:"id"`
	Name      string       `db:"name"`
	Barcode   string       `db:"barcode"`
	SalePrice money.Amount `db:"sale_price_cents"`
	CostPrice money.Amount `db:"cost_price_cents"`
	Stock     int          `db:"stock"`
	Active    bool         `db:"active"`
}

// lockProducts takes row locks in id order so concurrent carts cannot
// deadlock on each other.
func lockProducts(ctx context.Context, tx *sqlx.Tx, ids []string) (map[string]lockedProduct, error) {
	unique := slices.Clone(ids)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	rows := make([]lockedProduct, 0, len(unique))
	err := tx.SelectContext(ctx, &rows, `
		SELECT id, name, barcode, sale_price_cents, cost_price_cents, stock, active
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, unique)
	if err != nil {
		return nil, err
	}
	result := make(map[string]lockedProduct, len(rows))
	for _, row := range rows {
		result[row.ID] = row
	}
	return result, nil
}

func (s *Store) CreateSale(ctx context.Context, in store.NewSale) (*domain.Sale, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := insertSale(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetSale(ctx, sale.ID)
}

func insertSale(ctx context.Context, tx *sqlx.Tx, in store.NewSale) (*domain.Sale, error) {
	if len(in.Lines) == 0 || in.Number == "" {
		return nil, store.ErrInvalidTransaction
	}
	ids := make([]string, 0, len(in.Lines))
	for _, line := range in.Lines {
		if line.Quantity < 1 {
			return nil, store.ErrInvalidTransaction
		}
		ids = append(ids, line.ProductID)
	}
	products, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}

	needed := make(map[string]int, len(in.Lines))
	for _, line := range in.Lines {
		product, ok := products[line.ProductID]
		if !ok || !product.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
		needed[line.ProductID] += line.Quantity
		if product.Stock < needed[line.ProductID] {
			return nil, fmt.Errorf("%w: %s (available %d)", store.ErrInsufficientStock, product.Name, product.Stock)
		}
	}

	if in.ID == "" {
		in.ID = xid.New("sale")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	sale := domain.Sale{
		ID:            in.ID,
		Number:        in.Number,
		PaymentMethod: in.PaymentMethod,
		Notes:         in.Notes,
		UserID:        in.UserID,
		CreatedAt:     in.CreatedAt,
		Items:         make([]domain.SaleItem, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		product := products[line.ProductID]
		price := product.SalePrice
		if line.PriceOverride != nil {
			price = *line.PriceOverride
		}
		item := domain.SaleItem{
			ID:          xid.New("si"),
			SaleID:      sale.ID,
			ProductID:   product.ID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			UnitPrice:   price,
			UnitCost:    product.CostPrice,
			Subtotal:    price.Mul(line.Quantity),
		}
		sale.Total += item.Subtotal
		sale.Items = append(sale.Items, item)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sales (id, number, total_cents, payment_method, notes, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, sale.ID, sale.Number, sale.Total, sale.PaymentMethod, sale.Notes, nullIfEmpty(sale.UserID), sale.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateNumber
		}
		return nil, err
	}

	for i, item := range sale.Items {
		res, err := tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $2, updated_at = $3
			WHERE id = $1 AND active AND stock >= $2
		`, item.ProductID, item.Quantity, sale.CreatedAt)
		if err != nil {
			return nil, err
		}
		if n, err := res.RowsAffected(); err != nil {
			return nil, err
		} else if n == 0 {
			return nil, fmt.Errorf("%w: %s", store.ErrInsufficientStock, item.ProductName)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO sale_items (
				id, sale_id, line_no, product_id, product_name, quantity,
				unit_price_cents, unit_cost_cents, subtotal_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, item.ID, item.SaleID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice, item.UnitCost, item.Subtotal)
		if err != nil {
			return nil, err
		}
	}
	return &sale, nil
}

func (s *Store) GetSale(ctx context.Context, id string) (*domain.Sale, error) {
	var sale domain.Sale
	if err := s.db.GetContext(ctx, &sale, saleSelect+` WHERE s.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	sales := []domain.Sale{sale}
	if err := s.attachSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return &sales[0], nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, int, error) {
	w := saleWhere(filter.From, filter.To, filter.UserID)

	var total int
	if err := s.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM sales s`+w.sql(), w.args...); err != nil {
		return nil, 0, err
	}

	query := saleSelect + w.sql() + ` ORDER BY s.created_at DESC, s.id DESC`
	if filter.PerPage > 0 {
		page := max(filter.Page, 1)
		query += fmt.Sprintf(" LIMIT %d OFFSET %d", filter.PerPage, (page-1)*filter.PerPage)
	}
	sales := make([]domain.Sale, 0, 32)
	if err := s.db.SelectContext(ctx, &sales, query, w.args...); err != nil {
		return nil, 0, err
	}
	if err := s.attachSaleItems(ctx, sales); err != nil {
		return nil, 0, err
	}
	return sales, total, nil
}

func (s *Store) ListSalesBetween(ctx context.Context, from time.Time, to time.Time, userID string) ([]domain.Sale, error) {
	w := saleWhere(from, to, userID)
	sales := make([]domain.Sale, 0, 64)
	if err := s.db.SelectContext(ctx, &sales, saleSelect+w.sql()+` ORDER BY s.created_at, s.id`, w.args...); err != nil {
		return nil, err
	}
	if err := s.attachSaleItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

func saleWhere(from time.Time, to time.Time, userID string) where {
	var w where
	if !from.IsZero() {
		w.add("s.created_at >= ?", from)
	}
	if !to.IsZero() {
		w.add("s.created_at < ?", to)
	}
	if userID != "" {
		w.add("s.user_id = ?", userID)
	}
	return w
}

func (s *Store) attachSaleItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, len(sales))
	for i := range sales {
		ids[i] = sales[i].ID
	}
	items := make([]domain.SaleItem, 0, len(sales)*2)
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price_cents, unit_cost_cents, subtotal_cents
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY sale_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	bySale := make(map[string][]domain.SaleItem, len(sales))
	for _, item := range items {
		bySale[item.SaleID] = append(bySale[item.SaleID], item)
	}
	for i := range sales {
		sales[i].Items = bySale[sales[i].ID]
	}
	return nil
}

func (s *Store) CreateReturn(ctx context.Context, in store.NewReturn) (*domain.Return, error) {
	if len(in.Lines) == 0 || in.Number == "" {
		return nil, store.ErrInvalidTransaction
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// Locking the sale row serializes concurrent returns against it.
	var paymentMethod string
	err = tx.GetContext(ctx, &paymentMethod, `SELECT payment_method FROM sales WHERE id = $1 FOR UPDATE`, in.SaleID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: sale %s", store.ErrNotFound, in.SaleID)
		}
		return nil, err
	}

	saleItems := make([]domain.SaleItem, 0, 8)
	err = tx.SelectContext(ctx, &saleItems, `
		SELECT id, sale_id, product_id, product_name, quantity, unit_price_cents, unit_cost_cents, subtotal_cents
		FROM sale_items
		WHERE sale_id = $1
		ORDER BY line_no
		FOR UPDATE
	`, in.SaleID)
	if err != nil {
		return nil, err
	}
	itemsByID := make(map[string]domain.SaleItem, len(saleItems))
	for _, item := range saleItems {
		itemsByID[item.ID] = item
	}

	returned, err := returnedQty(ctx, tx, in.SaleID)
	if err != nil {
		return nil, err
	}
	requested := make(map[string]int, len(in.Lines))
	for _, line := range in.Lines {
		item, ok := itemsByID[line.SaleItemID]
		if !ok || line.Quantity < 1 {
			return nil, fmt.Errorf("%w: sale line %s", store.ErrInvalidTransaction, line.SaleItemID)
		}
		requested[item.ID] += line.Quantity
		available := item.Quantity - returned[item.ID]
		if requested[item.ID] > available {
			return nil, fmt.Errorf("%w: %s (returnable %d)", store.ErrOverReturn, item.ProductName, available)
		}
	}

	if in.ID == "" {
		in.ID = xid.New("ret")
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	ret := domain.Return{
		ID:            in.ID,
		Number:        in.Number,
		SaleID:        in.SaleID,
		Reason:        in.Reason,
		UserID:        in.UserID,
		CreatedAt:     in.CreatedAt,
		PaymentMethod: paymentMethod,
		Items:         make([]domain.ReturnItem, 0, len(in.Lines)),
	}
	for _, line := range in.Lines {
		item := itemsByID[line.SaleItemID]
		ri := domain.ReturnItem{
			ID:          xid.New("ri"),
			ReturnID:    ret.ID,
			SaleItemID:  item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   item.UnitPrice,
			UnitCost:    item.UnitCost,
			Subtotal:    item.UnitPrice.Mul(line.Quantity),
		}
		ret.Total += ri.Subtotal
		ret.Items = append(ret.Items, ri)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO returns (id, number, sale_id, total_cents, reason, user_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, ret.ID, ret.Number, ret.SaleID, ret.Total, ret.Reason, nullIfEmpty(ret.UserID), ret.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateNumber
		}
		return nil, err
	}
	for i, ri := range ret.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO return_items (
				id, return_id, line_no, sale_item_id, product_id, product_name, quantity,
				unit_price_cents, unit_cost_cents, subtotal_cents
			)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		`, ri.ID, ri.ReturnID, i, ri.SaleItemID, ri.ProductID, ri.ProductName, ri.Quantity, ri.UnitPrice, ri.UnitCost, ri.Subtotal)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1
		`, ri.ProductID, ri.Quantity, ret.CreatedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	created := ret
	return &created, nil
}

func returnedQty(ctx context.Context, q sqlx.QueryerContext, saleID string) (map[string]int, error) {
	rows := make([]struct {
		SaleItemID string `db:"sale_item_id"`
		Quantity   int    `db:"quantity"`
	}, 0, 8)
	err := sqlx.SelectContext(ctx, q, &rows, `
		SELECT ri.sale_item_id, COALESCE(SUM(ri.quantity), 0)::int AS quantity
		FROM return_items ri
		JOIN returns r ON r.id = ri.return_id
		WHERE r.sale_id = $1
		GROUP BY ri.sale_item_id
	`, saleID)
	if err != nil {
		return nil, err
	}
	result := make(map[string]int, len(rows))
	for _, row := range rows {
		result[row.SaleItemID] = row.Quantity
	}
	return result, nil
}

func (s *Store) GetReturnedQtyBySale(ctx context.Context, saleID string) (map[string]int, error) {
	return returnedQty(ctx, s.db, saleID)
}

func (s *Store) ReturnTotalsBySale(ctx context.Context, saleIDs []string) (map[string]money.Amount, error) {
	result := make(map[string]money.Amount, len(saleIDs))
	if len(saleIDs) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(`
		SELECT sale_id, COALESCE(SUM(total_cents), 0)::bigint AS total_cents
		FROM returns
		WHERE sale_id IN (?)
		GROUP BY sale_id
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	rows := make([]struct {
		SaleID string       `db:"sale_id"`
		Total  money.Amount `db:"total_cents"`
	}, 0, len(saleIDs))
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, row := range rows {
		result[row.SaleID] = row.Total
	}
	return result, nil
}

func (s *Store) ListReturnsBySale(ctx context.Context, saleID string) ([]domain.Return, error) {
	returns := make([]domain.Return, 0, 4)
	if err := s.db.SelectContext(ctx, &returns, returnSelect+` WHERE r.sale_id = $1 ORDER BY r.created_at, r.id`, saleID); err != nil {
		return nil, err
	}
	if err := s.attachReturnItems(ctx, returns); err != nil {
		return nil, err
	}
	return returns, nil
}

func (s *Store) ListReturnsBetween(ctx context.Context, from time.Time, to time.Time, userID string) ([]domain.Return, error) {
	var w where
	if !from.IsZero() {
		w.add("r.created_at >= ?", from)
	}
	if !to.IsZero() {
		w.add("r.created_at < ?", to)
	}
	if userID != "" {
		w.add("r.user_id = ?", userID)
	}
	returns := make([]domain.Return, 0, 16)
	if err := s.db.SelectContext(ctx, &returns, returnSelect+w.sql()+` ORDER BY r.created_at, r.id`, w.args...); err != nil {
		return nil, err
	}
	if err := s.attachReturnItems(ctx, returns); err != nil {
		return nil, err
	}
	return returns, nil
}

func (s *Store) attachReturnItems(ctx context.Context, returns []domain.Return) error {
	if len(returns) == 0 {
		return nil
	}
	ids := make([]string, len(returns))
	for i := range returns {
		ids[i] = returns[i].ID
	}
	items := make([]domain.ReturnItem, 0, len(returns)*2)
	err := s.db.SelectContext(ctx, &items, `
		SELECT id, return_id, sale_item_id, product_id, product_name, quantity,
			unit_price_cents, unit_cost_cents, subtotal_cents
		FROM return_items
		WHERE return_id = ANY($1)
		ORDER BY return_id, line_no
	`, ids)
	if err != nil {
		return err
	}
	byReturn := make(map[string][]domain.ReturnItem, len(returns))
	for _, item := range items {
		byReturn[item.ReturnID] = append(byReturn[item.ReturnID], item)
	}
	for i := range returns {
		returns[i].Items = byReturn[returns[i].ID]
	}
	return nil
}

const purchaseSelect = `
	SELECT p.id, p.number, COALESCE(p.supplier_id, '') AS supplier_id, COALESCE(su.name, '') AS supplier_name,
		p.total_cents, p.notes, COALESCE(p.user_id, '') AS user_id, p.received_at
	FROM purchases p
	LEFT JOIN suppliers su ON su.id = p.supplier_id
`

func (s *Store) CreatePurchase(ctx context.Context, in store.NewPurchase) (*domain.Purchase, error) {
	if len(in.Lines) == 0 || in.Number == "" {
		return nil, store.ErrInvalidTransaction
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if in.SupplierID != "" {
		var active bool
		err := tx.GetContext(ctx, &active, `SELECT active FROM suppliers WHERE id = $1 FOR SHARE`, in.SupplierID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if !active {
			return nil, fmt.Errorf("%w: supplier %s", store.ErrNotFound, in.SupplierID)
		}
	}

	ids := make([]string, 0, len(in.Lines))
	total := money.Amount(0)
	for _, line := range in.Lines {
		if line.Quantity < 1 || line.UnitCost.IsNegative() {
			return nil, store.ErrInvalidTransaction
		}
		ids = append(ids, line.ProductID)
		total += line.UnitCost.Mul(line.Quantity)
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: purchase total must be positive", store.ErrInvalidTransaction)
	}
	products, err := lockProducts(ctx, tx, ids)
	if err != nil {
		return nil, err
	}
	for _, line := range in.Lines {
		if p, ok := products[line.ProductID]; !ok || !p.Active {
			return nil, fmt.Errorf("%w: product %s", store.ErrNotFound, line.ProductID)
		}
	}

	if in.ID == "" {
		in.ID = xid.New("pur")
	}
	if in.ReceivedAt.IsZero() {
		in.ReceivedAt = time.Now().UTC()
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO purchases (id, number, supplier_id, total_cents, notes, user_id, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, in.ID, in.Number, nullIfEmpty(in.SupplierID), total, in.Notes, nullIfEmpty(in.UserID), in.ReceivedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicateNumber
		}
		return nil, err
	}
	for i, line := range in.Lines {
		product := products[line.ProductID]
		_, err = tx.ExecContext(ctx, `
			INSERT INTO purchase_items (id, purchase_id, line_no, product_id, product_name, quantity, unit_cost_cents, subtotal_cents)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		`, xid.New("pi"), in.ID, i, product.ID, product.Name, line.Quantity, line.UnitCost, line.UnitCost.Mul(line.Quantity))
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock = stock + $2, updated_at = $3 WHERE id = $1
		`, product.ID, line.Quantity, in.ReceivedAt)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetPurchase(ctx, in.ID)
}

func (s *Store) GetPurchase(ctx context.Context, id string) (*domain.Purchase, error) {
	var purchase domain.Purchase
	if err := s.db.GetContext(ctx, &purchase, purchaseSelect+` WHERE p.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	purchases := []domain.Purchase{purchase}
	if err := s.attachPurchaseItems(ctx, purchases); err != nil {
		return nil, err
	}
	return &purchases[0], nil
}

func (s *Store) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	var w where
	if !filter.From.IsZero() {
		w.add("p.received_at >= ?", filter.From)
	}
	if !filter.To.IsZero() {
		w.add("p.received_at < ?", filter.To)
	}
	if filter.SupplierID != "" {
		w.add("p.supplier_id = ?", filter.SupplierID)
	}
	query := purchaseSelect + w.sql() + ` ORDER BY p.received_at DESC, p.id DESC`
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	purchases := make([]domain.Purchase, 0, 32)
	if err := s.db.SelectContext(ctx, &purchases, query, w.args...); err != nil {
		return nil, err
	}
	if filter.WithItems {
		if err := s.attachPurchaseItems(ctx, purchases); err != nil {
			return nil, err
		}
	}
	return purchases, nil
}

func (s *Store) attachPurchaseItems(ctx context.Context, purchases []domain.Purchase) error {
	if len(purchases) == 0 {
		return nil
	}
	ids := make([]string, len(purchases))
	for i := range purchases {
		ids[i] = purchases[i].ID
	}
	items := make([]domain.PurchaseItem, 0, len(purchases)*2)
	err := s.db.SelectContext(ctx, &items, `
		SELECT pi.id, pi.purchase_id, pi.product_id, pi.product_name, COALESCE(pr.barcode, '') AS barcode,
			pi.quantity, pi.unit_cost_cents, pi.subtotal_cents
		FROM purchase_items pi
		LEFT JOIN products pr ON pr.id = pi.product_id
		WHERE pi.purchase_id = ANY($1)
		ORDER BY pi.purchase_id, pi.line_no
	`, ids)
	if err != nil {
		return err
	}
	byPurchase := make(map[string][]domain.PurchaseItem, len(purchases))
	for _, item := range items {
		byPurchase[item.PurchaseID] = append(byPurchase[item.PurchaseID], item)
	}
	for i := range purchases {
		purchases[i].Items = byPurchase[purchases[i].ID]
	}
	return nil
}
