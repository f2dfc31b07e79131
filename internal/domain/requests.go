package domain

import (
	"time"

	"vetpos/backend/internal/money"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
	User        User      `json:"user"`
}

type CategoryRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type CategoryUpdateRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Active      *bool   `json:"active,omitempty"`
}

type ProductCreateRequest struct {
	Barcode     string       `json:"barcode"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	SalePrice   money.Amount `json:"sale_price"`
	CostPrice   money.Amount `json:"cost_price"`
	Stock       int          `json:"stock"`
	StockMin    int          `json:"stock_min"`
	CategoryID  string       `json:"category_id"`
}

// ProductUpdateRequest never touches stock; stock only moves through
// sales, returns and purchases.
type ProductUpdateRequest struct {
	Barcode     *string       `json:"barcode,omitempty"`
	Name        *string       `json:"name,omitempty"`
	Description *string       `json:"description,omitempty"`
	SalePrice   *money.Amount `json:"sale_price,omitempty"`
	CostPrice   *money.Amount `json:"cost_price,omitempty"`
	StockMin    *int          `json:"stock_min,omitempty"`
	CategoryID  *string       `json:"category_id,omitempty"`
	Active      *bool         `json:"active,omitempty"`
}

type ProductFilter struct {
	CategoryID      string
	IncludeInactive bool
}

type ProductSearch struct {
	// Terms are matched against name, description and barcode. A product
	// matches when any term matches.
	Terms       []string
	CategoryID  string
	InStockOnly bool
	Limit       int
}

type SupplierRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
	Email string `json:"email"`
	Notes string `json:"notes"`
}

type SupplierUpdateRequest struct {
	Name   *string `json:"name,omitempty"`
	Phone  *string `json:"phone,omitempty"`
	Email  *string `json:"email,omitempty"`
	Notes  *string `json:"notes,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

type SaleLineRequest struct {
	ProductID string        `json:"product_id"`
	Quantity  int           `json:"quantity"`
	UnitPrice *money.Amount `json:"unit_price,omitempty"`
}

type SaleRequest struct {
	Items         []SaleLineRequest `json:"items"`
	PaymentMethod string            `json:"payment_method"`
	Notes         string            `json:"notes"`
}

type SaleFilter struct {
	From    time.Time
	To      time.Time
	UserID  string
	Page    int
	PerPage int
}

type SaleSummary struct {
	Sale
	ReturnedTotal money.Amount `json:"returned_total"`
	NetTotal      money.Amount `json:"net_total"`
	ItemCount     int          `json:"item_count"`
}

type SaleListResponse struct {
	Sales   []SaleSummary `json:"sales"`
	Total   int           `json:"total"`
	Page    int           `json:"page"`
	PerPage int           `json:"per_page"`
	Pages   int           `json:"pages"`
}

type SaleDetailLine struct {
	SaleItem
	ReturnedQuantity   int `json:"returned_quantity"`
	ReturnableQuantity int `json:"returnable_quantity"`
}

type SaleDetail struct {
	Sale
	Lines         []SaleDetailLine `json:"lines"`
	Returns       []Return         `json:"returns"`
	ReturnedTotal money.Amount     `json:"returned_total"`
	NetTotal      money.Amount     `json:"net_total"`
}

type ReturnLineRequest struct {
	SaleItemID string `json:"sale_item_id"`
	Quantity   int    `json:"quantity"`
}

type ReturnRequest struct {
	SaleID string              `json:"sale_id"`
	Items  []ReturnLineRequest `json:"items"`
	Reason string              `json:"reason"`
}

type PurchaseLineRequest struct {
	ProductID string       `json:"product_id"`
	Quantity  int          `json:"quantity"`
	UnitCost  money.Amount `json:"unit_cost"`
}

type PurchaseRequest struct {
	SupplierID string                `json:"supplier_id"`
	Items      []PurchaseLineRequest `json:"items"`
	Notes      string                `json:"notes"`
}

type PurchaseFilter struct {
	From       time.Time
	To         time.Time
	SupplierID string
	Limit      int
	WithItems  bool
}

type PurchaseStats struct {
	Count     int            `json:"count"`
	Total     money.Amount   `json:"total"`
	ByWeekday map[string]int `json:"by_weekday"`
	ByHour    map[string]int `json:"by_hour"`
}

type SupplierPurchaseEntry struct {
	PurchaseID string       `json:"purchase_id"`
	Number     string       `json:"number"`
	ReceivedAt time.Time    `json:"received_at"`
	Quantity   int          `json:"quantity"`
	UnitCost   money.Amount `json:"unit_cost"`
	Subtotal   money.Amount `json:"subtotal"`
}

type SupplierProduct struct {
	ProductID      string                  `json:"product_id"`
	ProductName    string                  `json:"product_name"`
	Barcode        string                  `json:"barcode,omitempty"`
	TotalQuantity  int                     `json:"total_quantity"`
	TotalSpent     money.Amount            `json:"total_spent"`
	MinUnitCost    money.Amount            `json:"min_unit_cost"`
	MaxUnitCost    money.Amount            `json:"max_unit_cost"`
	AvgUnitCost    money.Amount            `json:"avg_unit_cost"`
	PurchaseCount  int                     `json:"purchase_count"`
	LastPurchaseAt time.Time               `json:"last_purchase_at"`
	Entries        []SupplierPurchaseEntry `json:"entries"`
}

type SupplierProductsResponse struct {
	Supplier      Supplier          `json:"supplier"`
	Products      []SupplierProduct `json:"products"`
	TotalSpent    money.Amount      `json:"total_spent"`
	TotalQuantity int               `json:"total_quantity"`
}

type AnimalRequest struct {
	Name       string `json:"name"`
	Species    string `json:"species"`
	Breed      string `json:"breed"`
	AgeYears   int    `json:"age_years"`
	AgeMonths  int    `json:"age_months"`
	OwnerName  string `json:"owner_name"`
	OwnerPhone string `json:"owner_phone"`
	Notes      string `json:"notes"`
}

type AnimalFilter struct {
	Query           string
	Species         string
	IncludeInactive bool
	Limit           int
}

type ClinicalHistory struct {
	Animal        Animal         `json:"animal"`
	AgeDisplay    string         `json:"age_display"`
	Consultations []Consultation `json:"consultations"`
}

type ConsultationItemRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Notes     string `json:"notes"`
}

// ConsultationRequest registers a consultation. When PaymentMethod is set
// the prescribed items are billed in the same transaction.
type ConsultationRequest struct {
	ConsultedAt   string                    `json:"consulted_at,omitempty"`
	Reason        string                    `json:"reason"`
	Diagnosis     string                    `json:"diagnosis"`
	Treatment     string                    `json:"treatment"`
	Observations  string                    `json:"observations"`
	Items         []ConsultationItemRequest `json:"items"`
	PaymentMethod string                    `json:"payment_method,omitempty"`
}

type ConsultationResponse struct {
	Consultation Consultation `json:"consultation"`
	Sale         *Sale        `json:"sale,omitempty"`
}

type ConsultationBillRequest struct {
	PaymentMethod string `json:"payment_method"`
}

type PendingConsultation struct {
	ID          string             `json:"id"`
	ConsultedAt time.Time          `json:"consulted_at"`
	AnimalName  string             `json:"animal_name"`
	OwnerName   string             `json:"owner_name"`
	Reason      string             `json:"reason"`
	ItemCount   int                `json:"item_count"`
	Items       []ConsultationItem `json:"items"`
}

type CartLine struct {
	ProductID string       `json:"product_id"`
	Name      string       `json:"name"`
	Barcode   string       `json:"barcode"`
	UnitPrice money.Amount `json:"unit_price"`
	Quantity  int          `json:"quantity"`
	Subtotal  money.Amount `json:"subtotal"`
	Stock     int          `json:"stock"`
}

type CartPreview struct {
	ConsultationID string       `json:"consultation_id"`
	AnimalName     string       `json:"animal_name"`
	Items          []CartLine   `json:"items"`
	Total          money.Amount `json:"total"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Role     string `json:"role"`
}

type UserUpdateRequest struct {
	FullName *string `json:"full_name,omitempty"`
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

type SettingsRequest struct {
	Name     string `json:"name"`
	TaxID    string `json:"tax_id"`
	Address  string `json:"address"`
	Phone    string `json:"phone"`
	Email    string `json:"email"`
	LogoPath string `json:"logo_path"`
}

type ReceiptResponse struct {
	SaleID       string `json:"sale_id"`
	Number       string `json:"number"`
	EscposBase64 string `json:"escpos_base64"`
	PreviewText  string `json:"preview_text"`
	FileName     string `json:"file_name"`
}

type CashDrawerOpenRequest struct {
	TerminalID string `json:"terminal_id"`
}

type CashDrawerOpenResponse struct {
	TerminalID    string    `json:"terminal_id"`
	CommandBase64 string    `json:"command_base64"`
	RequestedAt   time.Time `json:"requested_at"`
}

type AuditLogFilter struct {
	From  time.Time
	To    time.Time
	Limit int
}

// Invoice is everything the printable invoice shows for one sale.
type Invoice struct {
	Business      BusinessSettings `json:"business"`
	Sale          Sale             `json:"sale"`
	Cashier       string           `json:"cashier"`
	Consultation  *Consultation    `json:"consultation,omitempty"`
	Animal        *Animal          `json:"animal,omitempty"`
	ReturnedTotal money.Amount     `json:"returned_total"`
	NetTotal      money.Amount     `json:"net_total"`
	IssuedAt      time.Time        `json:"issued_at"`
}
