// Command coupon-import bulk-loads single-use campaign codes from gzipped
// newline-delimited code lists into the coupons table.
//
// Marketing generates these lists externally (one unique code per
// recipient), so files can be large and may overlap between campaign waves.
// Files are scanned in parallel; a bloom filter keeps already-seen codes
// out of the insert set without holding every code in an exact set.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/sweetoven/coupon-engine/internal/domain/coupon"
	"github.com/sweetoven/coupon-engine/internal/repository"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.0001
	minCodeLen    = 6
	maxCodeLen    = 16
	progressEvery = 100_000
	insertBatch   = 1_000
)

const insertCampaignCouponSQL = `INSERT INTO coupons
	(code, name, description, discount_type, discount_value, min_order_amount,
	 end_date, usage_per_customer, status)
	VALUES ($1, $2, $3, $4, $5, $6, $7, 1, 'active')
	ON CONFLICT ((UPPER(code))) DO NOTHING`

func main() {
	var (
		databaseURL  string
		campaignName string
		discountType string
		value        float64
		minOrder     float64
		validDays    int
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&campaignName, "campaign", "", "campaign name recorded on every imported coupon")
	flag.StringVar(&discountType, "discount-type", "percent", "percent or fixed")
	flag.Float64Var(&value, "value", 10, "discount value (percent or amount)")
	flag.Float64Var(&minOrder, "min-order", 0, "minimum eligible subtotal")
	flag.IntVar(&validDays, "valid-days", 30, "days until the imported codes expire")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if campaignName == "" {
		slog.Error("campaign name is required: set --campaign")
		os.Exit(1)
	}
	files := flag.Args()
	if len(files) == 0 {
		slog.Error("at least one code list file is required")
		os.Exit(1)
	}

	dt := coupon.DiscountType(discountType)
	if dt != coupon.DiscountPercent && dt != coupon.DiscountFixed {
		slog.Error("discount-type must be percent or fixed", slog.String("got", discountType))
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	imp := &importer{
		campaign:     campaignName,
		discountType: dt,
		value:        decimal.NewFromFloat(value),
		minOrder:     decimal.NewFromFloat(minOrder),
		endDate:      time.Now().AddDate(0, 0, validDays),
		seen:         bloom.NewWithEstimates(bloomCapacity, bloomFPR),
	}

	if err := imp.run(ctx, databaseURL, files); err != nil {
		slog.Error("coupon import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("coupon import completed", slog.Uint64("imported", imp.imported))
}

type importer struct {
	campaign     string
	discountType coupon.DiscountType
	value        decimal.Decimal
	minOrder     decimal.Decimal
	endDate      time.Time

	mu       sync.Mutex
	seen     *bloom.BloomFilter
	batch    []string
	imported uint64
}

func (imp *importer) run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(imp.importFile(ctx, pool, i, f))
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Final partial batch.
	return imp.flush(ctx, pool, true)
}

func (imp *importer) importFile(ctx context.Context, pool *pgxpool.Pool, idx int, path string) func() error {
	return func() error {
		var scanned uint64
		err := streamGzFile(ctx, path, func(line string) error {
			code := coupon.NormalizeCode(line)
			if len(code) < minCodeLen || len(code) > maxCodeLen {
				return nil
			}
			scanned++
			if scanned%progressEvery == 0 {
				slog.Info("import progress",
					slog.Int("file", idx+1),
					slog.Uint64("scanned", scanned),
				)
			}
			return imp.add(ctx, pool, code)
		})
		if err != nil {
			return errors.Wrapf(err, "import file %s", path)
		}

		slog.Info("file complete", slog.Int("file", idx+1), slog.Uint64("scanned", scanned))
		return nil
	}
}

// add queues a code for insertion unless the bloom filter has seen it. The
// insert's ON CONFLICT clause catches duplicates already in the table from
// earlier runs.
func (imp *importer) add(ctx context.Context, pool *pgxpool.Pool, code string) error {
	imp.mu.Lock()
	if imp.seen.TestAndAddString(code) {
		imp.mu.Unlock()
		return nil
	}
	imp.batch = append(imp.batch, code)
	imp.mu.Unlock()

	return imp.flush(ctx, pool, false)
}

func (imp *importer) flush(ctx context.Context, pool *pgxpool.Pool, force bool) error {
	imp.mu.Lock()
	if !force && len(imp.batch) < insertBatch {
		imp.mu.Unlock()
		return nil
	}
	batch := imp.batch
	imp.batch = nil
	imp.mu.Unlock()

	for _, code := range batch {
		_, err := pool.Exec(ctx, insertCampaignCouponSQL,
			code,
			imp.campaign,
			fmt.Sprintf("Campaign %s single-use code", imp.campaign),
			string(imp.discountType),
			imp.value,
			imp.minOrder,
			imp.endDate,
		)
		if err != nil {
			return errors.Wrapf(err, "insert coupon %s", code)
		}
		imp.mu.Lock()
		imp.imported++
		imp.mu.Unlock()
	}
	return nil
}

// streamGzFile opens a gzip-compressed file and calls fn for each line.
func streamGzFile(ctx context.Context, path string, fn func(line string) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "open %s", path)
	}
	defer func() { _ = f.Close() }()

	gz, err := pgzip.NewReader(f)
	if err != nil {
		return errors.Wrapf(err, "create gzip reader for %s", path)
	}
	defer func() { _ = gz.Close() }()

	scanner := bufio.NewScanner(gz)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "scan %s", path)
	}

	return nil
}
