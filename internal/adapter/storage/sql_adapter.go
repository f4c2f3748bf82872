package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/milk-route/internal/core/domain"
)

//go:embed migrations/mysql.sql
var mysqlSchema string

//go:embed migrations/postgres.sql
var postgresSchema string

type Dialect int

const (
	DialectMySQL Dialect = iota
	DialectPostgres
)

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	if d == DialectPostgres {
		return "postgres"
	}
	return "mysql"
}

// DSN prepares a connection string for the dialect. MySQL DSNs get
// parseTime=true so DATETIME columns scan into time.Time.
func (d Dialect) DSN(dsn string) (string, error) {
	if d == DialectPostgres {
		return dsn, nil
	}
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	return cfg.FormatDSN(), nil
}

func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql":
		return DialectMySQL, nil
	case "postgres", "postgresql":
		return DialectPostgres, nil
	default:
		return 0, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// SQLAdapter stores shops and ledger records in MySQL or Postgres. Queries are
// written with ? placeholders and rebound for Postgres.
type SQLAdapter struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLAdapter(db *sql.DB, dialect Dialect) *SQLAdapter {
	return &SQLAdapter{db: db, dialect: dialect}
}

func (a *SQLAdapter) Ping(ctx context.Context) error {
	return a.db.PingContext(ctx)
}

// Migrate creates the tables if they do not exist. Statements are run one at
// a time since the mysql driver rejects multi-statement Exec by default.
func (a *SQLAdapter) Migrate(ctx context.Context) error {
	schema := mysqlSchema
	if a.dialect == DialectPostgres {
		schema = postgresSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// AddShop inserts the shop or updates its name and route order.
func (a *SQLAdapter) AddShop(ctx context.Context, shop domain.Shop) error {
	query := `
		INSERT INTO shops (id, name, route_order, created_at) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE name = VALUES(name), route_order = VALUES(route_order)`
	if a.dialect == DialectPostgres {
		query = `
		INSERT INTO shops (id, name, route_order, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, route_order = EXCLUDED.route_order`
	}
	if shop.CreatedAt.IsZero() {
		shop.CreatedAt = time.Now()
	}
	if _, err := a.db.ExecContext(ctx, a.rebind(query), shop.ID, shop.Name, shop.RouteOrder, shop.CreatedAt); err != nil {
		return fmt.Errorf("upsert shop: %w", err)
	}
	return nil
}

func (a *SQLAdapter) CreateDeliveryRecord(ctx context.Context, rec domain.DeliveryRecord) (domain.DeliveryRecord, error) {
	quantities, err := json.Marshal(rec.ProductQuantities)
	if err != nil {
		return domain.DeliveryRecord{}, fmt.Errorf("encode product quantities: %w", err)
	}

	_, err = a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO deliveries (id, shop_id, date, product_quantities, total_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`),
		rec.ID, rec.ShopID, rec.Date, string(quantities), rec.TotalAmount, rec.CreatedAt,
	)
	if err != nil {
		return domain.DeliveryRecord{}, fmt.Errorf("insert delivery: %w", err)
	}
	return rec, nil
}

func (a *SQLAdapter) CreatePaymentRecord(ctx context.Context, rec domain.PaymentRecord) (domain.PaymentRecord, error) {
	_, err := a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO payments (id, shop_id, date, amount, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		rec.ID, rec.ShopID, rec.Date, rec.Amount, rec.CreatedAt,
	)
	if err != nil {
		return domain.PaymentRecord{}, fmt.Errorf("insert payment: %w", err)
	}
	return rec, nil
}

func (a *SQLAdapter) ListDeliveries(ctx context.Context, f domain.RecordFilter) ([]domain.DeliveryRecord, error) {
	where, args := filterClause(f)
	rows, err := a.db.QueryContext(ctx, a.rebind(`
		SELECT id, shop_id, date, product_quantities, total_amount, created_at
		FROM deliveries`+where), args...)
	if err != nil {
		return nil, fmt.Errorf("query deliveries: %w", err)
	}
	defer rows.Close()

	var out []domain.DeliveryRecord
	for rows.Next() {
		var (
			rec        domain.DeliveryRecord
			date       sqlDate
			quantities []byte
		)
		if err := rows.Scan(&rec.ID, &rec.ShopID, &date, &quantities, &rec.TotalAmount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan delivery: %w", err)
		}
		rec.Date = date.String()
		if err := json.Unmarshal(quantities, &rec.ProductQuantities); err != nil {
			return nil, fmt.Errorf("decode product quantities of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) ListPayments(ctx context.Context, f domain.RecordFilter) ([]domain.PaymentRecord, error) {
	where, args := filterClause(f)
	rows, err := a.db.QueryContext(ctx, a.rebind(`
		SELECT id, shop_id, date, amount, created_at
		FROM payments`+where), args...)
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	var out []domain.PaymentRecord
	for rows.Next() {
		var (
			rec  domain.PaymentRecord
			date sqlDate
		)
		if err := rows.Scan(&rec.ID, &rec.ShopID, &date, &rec.Amount, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		rec.Date = date.String()
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) ListShops(ctx context.Context) ([]domain.Shop, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT id, name, route_order, created_at
		FROM shops ORDER BY route_order`)
	if err != nil {
		return nil, fmt.Errorf("query shops: %w", err)
	}
	defer rows.Close()

	var out []domain.Shop
	for rows.Next() {
		var s domain.Shop
		if err := rows.Scan(&s.ID, &s.Name, &s.RouteOrder, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan shop: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (a *SQLAdapter) GetShop(ctx context.Context, id string) (*domain.Shop, error) {
	var s domain.Shop
	err := a.db.QueryRowContext(ctx, a.rebind(`
		SELECT id, name, route_order, created_at
		FROM shops WHERE id = ?`), id,
	).Scan(&s.ID, &s.Name, &s.RouteOrder, &s.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query shop: %w", err)
	}
	return &s, nil
}

func (a *SQLAdapter) CreateNote(ctx context.Context, note domain.Note) (domain.Note, error) {
	_, err := a.db.ExecContext(ctx, a.rebind(`
		INSERT INTO notes (id, shop_id, date, content, created_at)
		VALUES (?, ?, ?, ?, ?)`),
		note.ID, note.ShopID, note.Date, note.Content, note.CreatedAt,
	)
	if err != nil {
		return domain.Note{}, fmt.Errorf("insert note: %w", err)
	}
	return note, nil
}

func (a *SQLAdapter) ListNotes(ctx context.Context, f domain.RecordFilter) ([]domain.Note, error) {
	where, args := filterClause(f)
	rows, err := a.db.QueryContext(ctx, a.rebind(`
		SELECT id, shop_id, date, content, created_at
		FROM notes`+where+` ORDER BY created_at DESC`), args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	var out []domain.Note
	for rows.Next() {
		var (
			n    domain.Note
			date sqlDate
		)
		if err := rows.Scan(&n.ID, &n.ShopID, &date, &n.Content, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		n.Date = date.String()
		out = append(out, n)
	}
	return out, rows.Err()
}

func filterClause(f domain.RecordFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	if f.ShopID != "" {
		conds = append(conds, "shop_id = ?")
		args = append(args, f.ShopID)
	}
	if f.Date != "" {
		conds = append(conds, "date = ?")
		args = append(args, f.Date)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// rebind turns ? placeholders into $1..$n for Postgres.
func (a *SQLAdapter) rebind(query string) string {
	if a.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// sqlDate scans a DATE column whether the driver returns time.Time (mysql
// with parseTime, lib/pq) or raw text.
type sqlDate struct {
	value string
}

func (d *sqlDate) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		d.value = v.Format(domain.DateLayout)
	case []byte:
		d.value = trimDate(string(v))
	case string:
		d.value = trimDate(v)
	case nil:
		d.value = ""
	default:
		return fmt.Errorf("unsupported date type %T", src)
	}
	return nil
}

func (d sqlDate) String() string {
	return d.value
}

func trimDate(s string) string {
	if len(s) > len(domain.DateLayout) {
		return s[:len(domain.DateLayout)]
	}
	return s
}
