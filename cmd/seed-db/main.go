// Command seed-db populates the database with the bakery's demo catalog and
// the standing promotional coupons.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sweetoven/coupon-engine/internal/repository"
)

type seedProduct struct {
	id         string
	name       string
	price      int64
	categoryID int64
	onSale     bool
}

// Category 1 = cakes, 2 = breads, 3 = drinks.
var products = []seedProduct{
	{id: "banh-mi-thit", name: "Bánh mì thịt", price: 25000, categoryID: 2},
	{id: "banh-mi-cha", name: "Bánh mì chả", price: 22000, categoryID: 2},
	{id: "croissant", name: "Butter croissant", price: 35000, categoryID: 2},
	{id: "tiramisu-slice", name: "Tiramisu slice", price: 55000, categoryID: 1},
	{id: "matcha-cake", name: "Matcha mousse cake", price: 320000, categoryID: 1},
	{id: "birthday-cake-s", name: "Birthday cake (small)", price: 250000, categoryID: 1},
	{id: "birthday-cake-l", name: "Birthday cake (large)", price: 450000, categoryID: 1},
	{id: "choco-cake", name: "Chocolate cake", price: 280000, categoryID: 1, onSale: true},
	{id: "ca-phe-sua", name: "Cà phê sữa đá", price: 30000, categoryID: 3},
	{id: "tra-dao", name: "Trà đào", price: 35000, categoryID: 3},
}

const upsertProductSQL = `INSERT INTO products (id, name, price, category_id, on_sale)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (id) DO UPDATE SET
		name = EXCLUDED.name, price = EXCLUDED.price,
		category_id = EXCLUDED.category_id, on_sale = EXCLUDED.on_sale`

const upsertCouponSQL = `INSERT INTO coupons
	(code, name, description, discount_type, discount_value, max_discount,
	 min_order_amount, apply_to, category_ids, exclude_sale_items,
	 customer_restriction, start_date, end_date, total_usage_limit,
	 usage_per_customer, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 'active')
	ON CONFLICT ((UPPER(code))) DO NOTHING`

func main() {
	var databaseURL string
	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL string) error {
	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool) error {
	for _, p := range products {
		_, err := pool.Exec(ctx, upsertProductSQL,
			p.id, p.name, decimal.NewFromInt(p.price), p.categoryID, p.onSale,
		)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.id)
		}
	}
	slog.Info("products seeded", slog.Int("count", len(products)))
	return nil
}

type seedCoupon struct {
	code, name, description string
	discountType            string
	value                   decimal.Decimal
	maxDiscount             *decimal.Decimal
	minOrder                decimal.Decimal
	applyTo                 string
	categoryIDs             []int64
	excludeSale             bool
	restriction             string
	totalLimit              int
	perCustomer             int
}

var cap50k = decimal.NewFromInt(50000)

// category_ids is a NOT NULL array column, and pgx encodes a nil []int64
// as SQL NULL, so every row carries at least an empty slice.
var coupons = []seedCoupon{
	{
		code: "BANH20", name: "20% off",
		description:  "20% off orders from 200k, up to 50k",
		discountType: "percent", value: decimal.NewFromInt(20), maxDiscount: &cap50k,
		minOrder: decimal.NewFromInt(200000), applyTo: "all", categoryIDs: []int64{},
		restriction: "all", perCustomer: 3,
	},
	{
		code: "NEW30K", name: "Welcome 30k",
		description:  "30k off your first order from 300k",
		discountType: "fixed", value: decimal.NewFromInt(30000),
		minOrder: decimal.NewFromInt(300000), applyTo: "all", categoryIDs: []int64{},
		restriction: "new", perCustomer: 1,
	},
	{
		code: "FREESHIP", name: "Free shipping",
		description:  "Free delivery on orders from 200k",
		discountType: "free_ship", value: decimal.Zero,
		minOrder: decimal.NewFromInt(200000), applyTo: "all", categoryIDs: []int64{},
		restriction: "all", perCustomer: 5,
	},
	{
		code: "CAKE15", name: "15% off cakes",
		description:  "15% off full-price cakes",
		discountType: "percent", value: decimal.NewFromInt(15),
		minOrder: decimal.Zero, applyTo: "category", categoryIDs: []int64{1},
		excludeSale: true, restriction: "all",
		totalLimit: 500, perCustomer: 2,
	},
	{
		code: "TET10K", name: "Flash 10k",
		description:  "10k off, first 3 orders only",
		discountType: "fixed", value: decimal.NewFromInt(10000),
		minOrder: decimal.Zero, applyTo: "all", categoryIDs: []int64{},
		restriction: "all", totalLimit: 3, perCustomer: 1,
	},
}

func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	now := time.Now()
	yearEnd := time.Date(now.Year(), 12, 31, 23, 59, 59, 0, time.Local)

	for _, c := range coupons {
		ids := c.categoryIDs
		if ids == nil {
			ids = []int64{}
		}
		_, err := pool.Exec(ctx, upsertCouponSQL,
			c.code, c.name, c.description, c.discountType, c.value, c.maxDiscount,
			c.minOrder, c.applyTo, ids, c.excludeSale,
			c.restriction, now, yearEnd, c.totalLimit, max(c.perCustomer, 1),
		)
		if err != nil {
			return errors.Wrapf(err, "upsert coupon %s", c.code)
		}
	}
	slog.Info("coupons seeded", slog.Int("count", len(coupons)))
	return nil
}
