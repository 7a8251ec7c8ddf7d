// Command catalog-import loads product feeds into the catalog. Feeds are
// gzipped JSON Lines files, one product per line. Duplicate names inside and
// across feeds are suppressed with a bloom filter so arbitrarily large feeds
// import with bounded memory.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"golang.org/x/sync/errgroup"

	"github.com/storefront-go/storefront/internal/storage/postgres"
)

const (
	bloomCapacity = 10_000_000
	bloomFPR      = 0.001
	progressEvery = 100_000
	maxLineBytes  = 1 << 20
)

type feedProduct struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       int64  `json:"price"`
	Stock       int64  `json:"stock"`
	Category    string `json:"category"`
	ImageURL    string `json:"image_url"`
}

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
	if flag.NArg() == 0 {
		slog.Error("at least one feed file is required: catalog-import [flags] feed.jsonl.gz ...")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, flag.Args()); err != nil {
		slog.Error("catalog import failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("catalog import completed successfully")
}

func run(ctx context.Context, databaseURL string, files []string) error {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			return errors.Wrapf(err, "check file %s", f)
		}
	}

	slog.Info("parsing feeds", slog.Int("files", len(files)))

	products, err := parseFeeds(ctx, files)
	if err != nil {
		return errors.Wrap(err, "parse feeds")
	}

	slog.Info("products parsed", slog.Int("count", len(products)))

	if len(products) == 0 {
		slog.Info("nothing to import")
		return nil
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := importProducts(ctx, pool, products); err != nil {
		return errors.Wrap(err, "import products")
	}

	return nil
}

// parseFeeds reads all feed files concurrently, then merges the results in
// file order. The bloom filter keeps the first occurrence of each name; a
// false positive only drops a feed row, never corrupts the catalog.
func parseFeeds(ctx context.Context, files []string) ([]feedProduct, error) {
	perFile := make([][]feedProduct, len(files))

	g, ctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(parseFeedFile(ctx, i, f, perFile))
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := bloom.NewWithEstimates(bloomCapacity, bloomFPR)
	var merged []feedProduct
	for _, batch := range perFile {
		for _, p := range batch {
			if seen.TestOrAddString(p.Name) {
				continue
			}
			merged = append(merged, p)
		}
	}
	return merged, nil
}

func parseFeedFile(ctx context.Context, idx int, path string, results [][]feedProduct) func() error {
	return func() error {
		f, err := os.Open(path)
		if err != nil {
			return errors.Wrapf(err, "open %s", path)
		}
		defer f.Close()

		gz, err := pgzip.NewReader(f)
		if err != nil {
			return errors.Wrapf(err, "gzip reader for %s", path)
		}
		defer gz.Close()

		var (
			batch []feedProduct
			count int
		)

		scanner := bufio.NewScanner(gz)
		scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
		for scanner.Scan() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}

			var p feedProduct
			if err := json.Unmarshal(line, &p); err != nil {
				return errors.Wrapf(err, "parse line %d of %s", count+1, path)
			}
			if p.Name == "" || p.Price < 0 || p.Stock < 0 {
				continue
			}

			batch = append(batch, p)
			count++
			if count%progressEvery == 0 {
				slog.Info("parse progress", slog.Int("file", idx+1), slog.Int("rows", count))
			}
		}
		if err := scanner.Err(); err != nil {
			return errors.Wrapf(err, "scan %s", path)
		}

		slog.Info("parsed feed", slog.String("path", path), slog.Int("rows", count))

		results[idx] = batch
		return nil
	}
}

// importProducts inserts merged feed rows. Names already present in the
// catalog are left untouched.
func importProducts(ctx context.Context, pool *pgxpool.Pool, products []feedProduct) error {
	categoryIDs := make(map[string]int64)
	inserted := 0

	for _, p := range products {
		var categoryID *int64
		if p.Category != "" {
			id, err := resolveCategory(ctx, pool, categoryIDs, p.Category)
			if err != nil {
				return err
			}
			categoryID = &id
		}

		ct, err := pool.Exec(ctx, `
			INSERT INTO products (name, description, price, stock, category_id, image_url)
			SELECT $1, $2, $3, $4, $5, $6
			WHERE NOT EXISTS (SELECT 1 FROM products WHERE name = $1)`,
			p.Name, p.Description, p.Price, p.Stock, categoryID, p.ImageURL,
		)
		if err != nil {
			return errors.Wrapf(err, "insert product %q", p.Name)
		}
		inserted += int(ct.RowsAffected())
	}

	slog.Info("products imported", slog.Int("inserted", inserted), slog.Int("skipped", len(products)-inserted))
	return nil
}

func resolveCategory(ctx context.Context, pool *pgxpool.Pool, cache map[string]int64, name string) (int64, error) {
	if id, ok := cache[name]; ok {
		return id, nil
	}

	var id int64
	err := pool.QueryRow(ctx, `
		INSERT INTO categories (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`,
		name,
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "resolve category %q", name)
	}

	cache[name] = id
	return id, nil
}
