package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"

	"vetpos/backend/internal/domain"
	"vetpos/backend/internal/store"
	"vetpos/backend/internal/xid"
)

type Store struct {
	db *sqlx.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sqlx.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const userColumns = `id, username, full_name, password_hash, role, active, created_at, last_access`

func (s *Store) CreateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	user.Username = strings.ToLower(strings.TrimSpace(user.Username))
	if user.Username == "" || user.PasswordHash == "" {
		return nil, store.ErrInvalidTransaction
	}
	if user.ID == "" {
		user.ID = xid.New("usr")
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, full_name, password_hash, role, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, user.ID, user.Username, user.FullName, user.PasswordHash, user.Role, user.Active, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: username %s already exists", store.ErrConflict, user.Username)
		}
		return nil, err
	}
	created := user
	return &created, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users WHERE username = $1`, strings.ToLower(strings.TrimSpace(username)))
	if err != nil {
		return nil, notFound(err)
	}
	return &user, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.User, error) {
	users := make([]domain.User, 0, 16)
	if err := s.db.SelectContext(ctx, &users, `SELECT `+userColumns+` FROM users ORDER BY username`); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUser(ctx context.Context, user domain.User) (*domain.User, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET full_name = $2, password_hash = $3, role = $4, active = $5
		WHERE id = $1
	`, user.ID, user.FullName, user.PasswordHash, user.Role, user.Active)
	if err != nil {
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetUserByID(ctx, user.ID)
}

func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users`)
	return count, err
}

func (s *Store) CountActiveAdmins(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM users WHERE active AND role = $1`, domain.RoleAdmin)
	return count, err
}

func (s *Store) TouchLastAccess(ctx context.Context, userID string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET last_access = $2 WHERE id = $1`, userID, at)
	if err != nil {
		return err
	}
	return expectOneRow(res)
}

func (s *Store) CreateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	category.Name = strings.TrimSpace(category.Name)
	if category.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if category.ID == "" {
		category.ID = xid.New("cat")
	}
	if category.CreatedAt.IsZero() {
		category.CreatedAt = time.Now().UTC()
	}
	category.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, description, active, created_at)
		VALUES ($1,$2,$3,$4,$5)
	`, category.ID, category.Name, category.Description, category.Active, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, category.Name)
		}
		return nil, err
	}
	created := category
	return &created, nil
}

func (s *Store) GetCategory(ctx context.Context, id string) (*domain.Category, error) {
	var category domain.Category
	err := s.db.GetContext(ctx, &category, `
		SELECT id, name, description, active, created_at FROM categories WHERE id = $1
	`, id)
	if err != nil {
		return nil, notFound(err)
	}
	return &category, nil
}

func (s *Store) UpdateCategory(ctx context.Context, category domain.Category) (*domain.Category, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE categories SET name = $2, description = $3, active = $4 WHERE id = $1
	`, category.ID, category.Name, category.Description, category.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: category %s already exists", store.ErrConflict, category.Name)
		}
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetCategory(ctx, category.ID)
}

func (s *Store) ListCategories(ctx context.Context, activeOnly bool) ([]domain.Category, error) {
	categories := make([]domain.Category, 0, 16)
	err := s.db.SelectContext(ctx, &categories, `
		SELECT id, name, description, active, created_at
		FROM categories
		WHERE ($1 = false OR active)
		ORDER BY name
	`, activeOnly)
	if err != nil {
		return nil, err
	}
	return categories, nil
}

func (s *Store) CountActiveProductsInCategory(ctx context.Context, categoryID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM products WHERE active AND category_id = $1`, categoryID)
	return count, err
}

const productSelect = `
	SELECT p.id, p.barcode, p.name, p.description, p.sale_price_cents, p.cost_price_cents,
		p.stock, p.stock_min, COALESCE(p.category_id, '') AS category_id,
		COALESCE(c.name, '') AS category_name, p.active, p.created_at, p.updated_at
	FROM products p
	LEFT JOIN categories c ON c.id = p.category_id
`

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Barcode == "" || product.Name == "" || product.Stock < 0 {
		return nil, store.ErrInvalidTransaction
	}
	if product.ID == "" {
		product.ID = xid.New("prd")
	}
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (
			id, barcode, name, description, sale_price_cents, cost_price_cents,
			stock, stock_min, category_id, active, created_at, updated_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,true,$10,$10)
	`, product.ID, product.Barcode, product.Name, product.Description, product.SalePrice, product.CostPrice,
		product.Stock, product.StockMin, nullIfEmpty(product.CategoryID), now)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: barcode %s already exists", store.ErrConflict, product.Barcode)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: category %s", store.ErrNotFound, product.CategoryID)
		}
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	var product domain.Product
	if err := s.db.GetContext(ctx, &product, productSelect+` WHERE p.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.GetContext(ctx, &product, productSelect+` WHERE p.barcode = $1 AND p.active`, strings.TrimSpace(barcode))
	if err != nil {
		return nil, notFound(err)
	}
	return &product, nil
}

func (s *Store) GetProductsByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	result := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	query, args, err := sqlx.In(productSelect+` WHERE p.id IN (?)`, ids)
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(ids))
	if err := s.db.SelectContext(ctx, &products, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}
	for _, p := range products {
		result[p.ID] = p
	}
	return result, nil
}

// UpdateProduct leaves stock untouched; only ledger operations move it.
func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET barcode = $2, name = $3, description = $4, sale_price_cents = $5, cost_price_cents = $6,
			stock_min = $7, category_id = $8, active = $9, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Barcode, product.Name, product.Description, product.SalePrice, product.CostPrice,
		product.StockMin, nullIfEmpty(product.CategoryID), product.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: barcode %s already exists", store.ErrConflict, product.Barcode)
		}
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: category %s", store.ErrNotFound, product.CategoryID)
		}
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, product.ID)
}

func (s *Store) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	var w where
	if !filter.IncludeInactive {
		w.add("p.active")
	}
	if filter.CategoryID != "" {
		w.add("p.category_id = ?", filter.CategoryID)
	}
	products := make([]domain.Product, 0, 64)
	if err := s.db.SelectContext(ctx, &products, productSelect+w.sql()+` ORDER BY p.name, p.id`, w.args...); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) SearchProducts(ctx context.Context, search domain.ProductSearch) ([]domain.Product, error) {
	var w where
	w.add("p.active")
	if search.InStockOnly {
		w.add("p.stock > 0")
	}
	if search.CategoryID != "" {
		w.add("p.category_id = ?", search.CategoryID)
	}
	alternatives := make([]string, 0, len(search.Terms))
	for _, term := range search.Terms {
		folded := store.Fold(term)
		if folded == "" {
			continue
		}
		w.args = append(w.args, likePattern(folded))
		n := len(w.args)
		alternatives = append(alternatives, fmt.Sprintf(
			"(%s LIKE $%d OR %s LIKE $%d OR p.barcode LIKE $%d)",
			foldSQL("p.name"), n, foldSQL("p.description"), n, n,
		))
	}
	if len(alternatives) > 0 {
		w.clauses = append(w.clauses, "("+strings.Join(alternatives, " OR ")+")")
	}
	query := productSelect + w.sql() + ` ORDER BY p.name, p.id`
	if search.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", search.Limit)
	}
	products := make([]domain.Product, 0, 20)
	if err := s.db.SelectContext(ctx, &products, query, w.args...); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListLowStock(ctx context.Context) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 16)
	err := s.db.SelectContext(ctx, &products, productSelect+`
		WHERE p.active AND p.stock <= p.stock_min
		ORDER BY p.stock, p.name
	`)
	if err != nil {
		return nil, err
	}
	return products, nil
}

const supplierSelect = `
	SELECT s.id, s.name, s.phone, s.email, s.notes, s.active, s.created_at,
		(SELECT COUNT(*) FROM purchases pu WHERE pu.supplier_id = s.id) AS purchase_count
	FROM suppliers s
`

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, store.ErrInvalidTransaction
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	supplier.Active = true
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, name, phone, email, notes, active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, supplier.Notes, supplier.Active, supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: supplier %s already exists", store.ErrConflict, supplier.Name)
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) GetSupplier(ctx context.Context, id string) (*domain.Supplier, error) {
	var supplier domain.Supplier
	if err := s.db.GetContext(ctx, &supplier, supplierSelect+` WHERE s.id = $1`, id); err != nil {
		return nil, notFound(err)
	}
	return &supplier, nil
}

func (s *Store) UpdateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE suppliers SET name = $2, phone = $3, email = $4, notes = $5, active = $6 WHERE id = $1
	`, supplier.ID, supplier.Name, supplier.Phone, supplier.Email, supplier.Notes, supplier.Active)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: supplier %s already exists", store.ErrConflict, supplier.Name)
		}
		return nil, err
	}
	if err := expectOneRow(res); err != nil {
		return nil, err
	}
	return s.GetSupplier(ctx, supplier.ID)
}

func (s *Store) ListSuppliers(ctx context.Context, activeOnly bool) ([]domain.Supplier, error) {
	suppliers := make([]domain.Supplier, 0, 16)
	err := s.db.SelectContext(ctx, &suppliers, supplierSelect+` WHERE ($1 = false OR s.active) ORDER BY s.name`, activeOnly)
	if err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSettings(ctx context.Context) (*domain.BusinessSettings, error) {
	var settings domain.BusinessSettings
	err := s.db.GetContext(ctx, &settings, `
		SELECT name, tax_id, address, phone, email, logo_path, updated_at
		FROM business_settings WHERE id = 1
	`)
	if err != nil {
		return nil, notFound(err)
	}
	return &settings, nil
}

func (s *Store) SaveSettings(ctx context.Context, settings domain.BusinessSettings) (*domain.BusinessSettings, error) {
	settings.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO business_settings (id, name, tax_id, address, phone, email, logo_path, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, tax_id = EXCLUDED.tax_id, address = EXCLUDED.address,
			phone = EXCLUDED.phone, email = EXCLUDED.email, logo_path = EXCLUDED.logo_path,
			updated_at = EXCLUDED.updated_at
	`, settings.Name, settings.TaxID, settings.Address, settings.Phone, settings.Email, settings.LogoPath, settings.UpdatedAt)
	if err != nil {
		return nil, err
	}
	saved := settings
	return &saved, nil
}

func (s *Store) CreateAuditLog(ctx context.Context, entry domain.AuditLog) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO audit_logs (id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at)
		VALUES (:id, :actor_username, :actor_role, :action, :entity_type, :entity_id, :detail, :created_at)
	`, entry)
	return err
}

func (s *Store) ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	if limit < 1 {
		limit = 100
	}
	var w where
	if !from.IsZero() {
		w.add("created_at >= ?", from)
	}
	if !to.IsZero() {
		w.add("created_at < ?", to)
	}
	entries := make([]domain.AuditLog, 0, 64)
	err := s.db.SelectContext(ctx, &entries, `
		SELECT id, actor_username, actor_role, action, entity_type, entity_id, detail, created_at
		FROM audit_logs`+w.sql()+fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT %d`, limit), w.args...)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// where collects AND-ed predicates. Each "?" in a clause is bound to the
// argument added with it.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, args ...any) {
	for _, arg := range args {
		w.args = append(w.args, arg)
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

// foldSQL mirrors store.Fold for the accents used in Spanish catalog names.
func foldSQL(column string) string {
	return fmt.Sprintf("translate(lower(%s), 'áéíóúüñ', 'aeiouun')", column)
}

func likePattern(term string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(term) + "%"
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23503"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
