//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/storefront-go/storefront/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "storefront",
			"POSTGRES_PASSWORD": "storefront",
			"POSTGRES_DB":       "storefront",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Printf("start postgres container: %v", err)
		return 1
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			log.Printf("terminate container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	if err != nil {
		log.Printf("container host: %v", err)
		return 1
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		log.Printf("container port: %v", err)
		return 1
	}

	dsn := fmt.Sprintf("postgres://storefront:storefront@%s:%s/storefront?sslmode=disable", host, port.Port())

	pool, err = postgres.NewPool(ctx, dsn)
	if err != nil {
		log.Printf("create pool: %v", err)
		return 1
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Printf("run migrations: %v", err)
		return 1
	}

	return m.Run()
}

// createUser inserts an account directly and returns its ID.
func createUser(t *testing.T, email string) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO users (full_name, email, hashed_password)
		VALUES ('Test User', $1, 'x') RETURNING id`,
		email,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	return id
}

// createProduct inserts a product directly and returns its ID.
func createProduct(t *testing.T, name string, price, stock int64) int64 {
	t.Helper()

	var id int64
	err := pool.QueryRow(context.Background(), `
		INSERT INTO products (name, price, stock)
		VALUES ($1, $2, $3) RETURNING id`,
		name, price, stock,
	).Scan(&id)
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return id
}

// productStock reads the current stock of a product.
func productStock(t *testing.T, id int64) int64 {
	t.Helper()

	var stock int64
	if err := pool.QueryRow(context.Background(),
		`SELECT stock FROM products WHERE id = $1`, id,
	).Scan(&stock); err != nil {
		t.Fatalf("read stock: %v", err)
	}
	return stock
}
