package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"inventario/internal/domain"
	"inventario/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
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

	s := &Store{db: db}
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, name, unit_cost, sale_price, current_stock, total_invested
		FROM products
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.UnitCost, &p.SalePrice, &p.CurrentStock, &p.TotalInvested); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, code, name, unit_cost, sale_price, current_stock, total_invested
		FROM products
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Code, &p.Name, &p.UnitCost, &p.SalePrice, &p.CurrentStock, &p.TotalInvested)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, code, name, unit_cost, sale_price, current_stock, total_invested)
		VALUES ($1,$2,$3,$4,$5,0,0)
	`, product.ID, product.Code, product.Name, product.UnitCost, product.SalePrice)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	product.CurrentStock = 0
	product.TotalInvested = 0
	created := product
	return &created, nil
}

func (s *Store) UpdateProduct(ctx context.Context, req domain.ProductUpdateRequest) error {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	appendSet := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if req.Code != nil {
		appendSet("code", *req.Code)
	}
	if req.Name != nil {
		appendSet("name", *req.Name)
	}
	if req.UnitCost != nil {
		appendSet("unit_cost", *req.UnitCost)
	}
	if req.SalePrice != nil {
		appendSet("sale_price", *req.SalePrice)
	}
	if len(sets) == 0 {
		return nil
	}

	args = append(args, req.ID)
	query := fmt.Sprintf("UPDATE products SET %s WHERE id = $%d", joinSets(sets), len(args))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListEntries(ctx context.Context) ([]domain.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, quantity, unit_cost, total_cost, date
		FROM entries
		ORDER BY date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.Entry, 0, 64)
	for rows.Next() {
		var e domain.Entry
		if err := rows.Scan(&e.ID, &e.ProductID, &e.Quantity, &e.UnitCost, &e.TotalCost, &e.Date); err != nil {
			return nil, err
		}
		e.Date = e.Date.UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// RecordEntry appends the purchase row and applies the compound product
// update in one transaction. The average-cost recompute is a single UPDATE
// statement, so concurrent entries for the same product cannot interleave
// and lose an increment; the CASE guard keeps the last known average when
// stock would not be positive.
func (s *Store) RecordEntry(ctx context.Context, entry domain.Entry) (*domain.Entry, error) {
	if entry.Quantity <= 0 || entry.UnitCost <= 0 {
		return nil, store.ErrInvalidInput
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Date.IsZero() {
		entry.Date = time.Now().UTC()
	}
	entry.TotalCost = entry.Quantity * entry.UnitCost

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
		UPDATE products
		SET current_stock = current_stock + $1,
			total_invested = total_invested + $2,
			unit_cost = CASE
				WHEN current_stock + $1 > 0 THEN (total_invested + $2) / (current_stock + $1)
				ELSE unit_cost
			END
		WHERE id = $3
	`, entry.Quantity, entry.TotalCost, entry.ProductID)
	if err != nil {
		return nil, translateErr(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO entries (id, product_id, quantity, unit_cost, total_cost, date)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, entry.ID, entry.ProductID, entry.Quantity, entry.UnitCost, entry.TotalCost, entry.Date)
	if err != nil {
		return nil, translateErr(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateErr(err)
	}
	created := entry
	return &created, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.product_id, p.name, p.code, s.quantity, s.unit_price,
			s.total_revenue, s.date, s.transaction_id, s.seller_id, s.seller_name
		FROM sales s
		JOIN products p ON p.id = s.product_id
		ORDER BY s.date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 64)
	for rows.Next() {
		var sale domain.Sale
		var sellerID, sellerName sql.NullString
		if err := rows.Scan(&sale.ID, &sale.ProductID, &sale.ProductName, &sale.ProductCode,
			&sale.Quantity, &sale.UnitPrice, &sale.TotalRevenue, &sale.Date,
			&sale.TransactionID, &sellerID, &sellerName); err != nil {
			return nil, err
		}
		sale.Date = sale.Date.UTC()
		sale.SellerID = sellerID.String
		sale.SellerName = sellerName.String
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

// CreateCheckout applies every line of one checkout atomically. Product rows
// are locked with SELECT ... FOR UPDATE in id order so overlapping checkouts
// always take their locks in the same sequence, and stock is checked against
// the locked value, never the one the caller read earlier. Duplicate product
// lines apply cumulatively against the same locked row.
func (s *Store) CreateCheckout(ctx context.Context, checkout domain.Checkout) (*domain.SaleReceipt, error) {
	if len(checkout.Items) == 0 {
		return nil, store.ErrInvalidInput
	}
	if checkout.TransactionID == "" {
		checkout.TransactionID = uuid.NewString()
	}
	if checkout.Date.IsZero() {
		checkout.Date = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ids := uniqueProductIDs(checkout.Items)
	productRows, err := tx.QueryContext(ctx, `
		SELECT id, code, name, sale_price, current_stock
		FROM products
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, ids)
	if err != nil {
		return nil, translateErr(err)
	}
	type lockedProduct struct {
		code      string
		name      string
		salePrice float64
		stock     float64
	}
	locked := make(map[string]*lockedProduct, len(ids))
	for productRows.Next() {
		var id string
		p := &lockedProduct{}
		if err := productRows.Scan(&id, &p.code, &p.name, &p.salePrice, &p.stock); err != nil {
			_ = productRows.Close()
			return nil, err
		}
		locked[id] = p
	}
	if err := productRows.Err(); err != nil {
		_ = productRows.Close()
		return nil, err
	}
	_ = productRows.Close()

	receipt := &domain.SaleReceipt{
		TransactionID: checkout.TransactionID,
		Date:          checkout.Date,
		Items:         make([]domain.Sale, 0, len(checkout.Items)),
	}
	for _, item := range checkout.Items {
		if item.Quantity <= 0 {
			return nil, store.ErrInvalidInput
		}
		product, exists := locked[item.ProductID]
		if !exists {
			return nil, fmt.Errorf("product %s: %w", item.ProductID, store.ErrNotFound)
		}
		if product.stock < item.Quantity {
			return nil, fmt.Errorf("product %s: %w", product.code, store.ErrInsufficientStock)
		}
		if product.salePrice <= 0 {
			return nil, fmt.Errorf("product %s has non-positive sale price: %w", product.code, store.ErrInvalidInput)
		}

		sale := domain.Sale{
			ID:            uuid.NewString(),
			ProductID:     item.ProductID,
			ProductName:   product.name,
			ProductCode:   product.code,
			Quantity:      item.Quantity,
			UnitPrice:     product.salePrice,
			TotalRevenue:  item.Quantity * product.salePrice,
			Date:          checkout.Date,
			TransactionID: checkout.TransactionID,
			SellerID:      checkout.SellerID,
			SellerName:    checkout.SellerName,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO sales (id, product_id, quantity, unit_price, total_revenue, date, transaction_id, seller_id, seller_name)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		`, sale.ID, sale.ProductID, sale.Quantity, sale.UnitPrice, sale.TotalRevenue, sale.Date,
			sale.TransactionID, nullIfEmpty(sale.SellerID), nullIfEmpty(sale.SellerName))
		if err != nil {
			return nil, translateErr(err)
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE products
			SET current_stock = current_stock - $1
			WHERE id = $2
		`, item.Quantity, item.ProductID)
		if err != nil {
			return nil, translateErr(err)
		}

		product.stock -= item.Quantity
		receipt.Items = append(receipt.Items, sale)
		receipt.TotalRevenue += sale.TotalRevenue
	}

	if err := tx.Commit(); err != nil {
		return nil, translateErr(err)
	}
	return receipt, nil
}

func (s *Store) AdjustPrices(ctx context.Context, factor float64) (int64, error) {
	if factor <= 0 {
		return 0, store.ErrInvalidInput
	}
	res, err := s.db.ExecContext(ctx, `UPDATE products SET sale_price = sale_price * $1`, factor)
	if err != nil {
		return 0, translateErr(err)
	}
	return res.RowsAffected()
}

func (s *Store) Summary(ctx context.Context) (domain.Summary, error) {
	var summary domain.Summary
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_cost), 0) FROM entries`).Scan(&summary.TotalInvested)
	if err != nil {
		return domain.Summary{}, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(total_revenue), 0) FROM sales`).Scan(&summary.TotalSold)
	if err != nil {
		return domain.Summary{}, err
	}
	summary.GrossProfit = summary.TotalSold - summary.TotalInvested
	return summary, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (username) DO NOTHING
	`, user.ID, user.Username, user.PasswordHash, user.Role, user.CreatedAt)
	return err
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	var user domain.User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, created_at
		FROM users
		WHERE username = $1
	`, username).Scan(&user.ID, &user.Username, &user.PasswordHash, &user.Role, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) HasUserWithRole(ctx context.Context, role string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE role = $1)`, role).Scan(&exists)
	if err != nil {
		return false, err
	}
	return exists, nil
}

func (s *Store) CreateSession(ctx context.Context, session domain.Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, user_id, expires_at)
		VALUES ($1,$2,$3)
	`, session.Token, session.UserID, session.ExpiresAt)
	if err != nil && isUniqueViolation(err) {
		return store.ErrConflict
	}
	return err
}

// GetUserBySessionToken joins the session to its user and checks expiry in
// the same statement, leaving no window between the check and the use.
func (s *Store) GetUserBySessionToken(ctx context.Context, token string, now time.Time) (*domain.SessionUser, error) {
	var user domain.SessionUser
	err := s.db.QueryRowContext(ctx, `
		SELECT u.id, u.username, u.role
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2
	`, token, now).Scan(&user.ID, &user.Username, &user.Role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) DeleteSession(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return err
}

func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE expires_at < $1`, now)
	return err
}

func uniqueProductIDs(items []domain.SaleItemInput) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Strings(ids)
	return ids
}

func joinSets(sets []string) string {
	out := ""
	for i, set := range sets {
		if i > 0 {
			out += ", "
		}
		out += set
	}
	return out
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// translateErr maps lock and serialization failures onto ErrTransient so
// callers can surface them as retryable instead of corrupting state.
func translateErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return fmt.Errorf("%w: %s", store.ErrTransient, pgErr.Code)
		case "23514":
			// products_current_stock_check acts as a last line of defense.
			return store.ErrInsufficientStock
		}
	}
	return err
}
