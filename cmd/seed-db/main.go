package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/storefront-go/storefront/internal/auth"
	"github.com/storefront-go/storefront/internal/storage/postgres"
)

type seedProduct struct {
	name        string
	description string
	price       int64
	stock       int64
	category    string
}

var seedCategories = []struct {
	name        string
	description string
}{
	{"Coffee", "Whole bean and ground coffee"},
	{"Tea", "Loose leaf and bagged tea"},
	{"Equipment", "Brewers, grinders, and accessories"},
}

var seedProducts = []seedProduct{
	{"House Blend 250g", "Medium roast, chocolate and hazelnut notes", 1250, 100, "Coffee"},
	{"Single Origin Ethiopia 250g", "Light roast, floral and citrus", 1650, 60, "Coffee"},
	{"Earl Grey 100g", "Black tea with bergamot", 850, 80, "Tea"},
	{"Sencha 100g", "Japanese green tea", 950, 45, "Tea"},
	{"Ceramic Pour-Over Dripper", "Single cup cone dripper", 2400, 25, "Equipment"},
	{"Burr Grinder", "Stepped conical burr hand grinder", 6900, 10, "Equipment"},
}

func main() {
	var (
		databaseURL   string
		adminEmail    string
		adminPassword string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&adminEmail, "admin-email", "admin@storefront.local", "email for the seeded admin account")
	flag.StringVar(&adminPassword, "admin-password", "", "password for the seeded admin account (or STOREFRONT_SEED_ADMIN_PASSWORD env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if adminPassword == "" {
		adminPassword = os.Getenv("STOREFRONT_SEED_ADMIN_PASSWORD")
	}
	if adminPassword == "" {
		slog.Error("admin password is required: set --admin-password or STOREFRONT_SEED_ADMIN_PASSWORD")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, adminEmail, adminPassword); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, adminEmail, adminPassword string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedAdmin(ctx, pool, adminEmail, adminPassword); err != nil {
		return errors.Wrap(err, "seed admin")
	}

	if err := seedCatalog(ctx, pool); err != nil {
		return errors.Wrap(err, "seed catalog")
	}

	return nil
}

func seedAdmin(ctx context.Context, pool *pgxpool.Pool, email, password string) error {
	slog.Info("seeding admin account", slog.String("email", email))

	hash, err := auth.HashPassword(password)
	if err != nil {
		return errors.Wrap(err, "hash admin password")
	}

	_, err = pool.Exec(ctx, `
		INSERT INTO users (full_name, email, hashed_password, is_admin)
		VALUES ('Administrator', $1, $2, TRUE)
		ON CONFLICT (email) DO UPDATE SET hashed_password = EXCLUDED.hashed_password, is_admin = TRUE`,
		email, hash,
	)
	return err
}

func seedCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	categoryIDs := make(map[string]int64, len(seedCategories))

	for _, c := range seedCategories {
		var id int64
		err := pool.QueryRow(ctx, `
			INSERT INTO categories (name, description)
			VALUES ($1, $2)
			ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
			RETURNING id`,
			c.name, c.description,
		).Scan(&id)
		if err != nil {
			return errors.Wrapf(err, "upsert category %s", c.name)
		}
		categoryIDs[c.name] = id

		slog.Info("upserted category", slog.String("name", c.name))
	}

	for _, p := range seedProducts {
		// Products have no natural key, so seeding is insert-if-absent by name.
		var exists bool
		if err := pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM products WHERE name = $1)`, p.name,
		).Scan(&exists); err != nil {
			return errors.Wrapf(err, "check product %s", p.name)
		}
		if exists {
			continue
		}

		_, err := pool.Exec(ctx, `
			INSERT INTO products (name, description, price, stock, category_id)
			VALUES ($1, $2, $3, $4, $5)`,
			p.name, p.description, p.price, p.stock, categoryIDs[p.category],
		)
		if err != nil {
			return errors.Wrapf(err, "insert product %s", p.name)
		}

		slog.Info("inserted product", slog.String("name", p.name), slog.Int64("price", p.price))
	}

	return nil
}
