// Package db embeds the SQL schema applied at startup.
package db

import _ "embed"

// Schema holds the DDL for users, categories, products, orders and
// order_items. Statements are idempotent so the schema can be re-applied.
//
//go:embed migrations/001_schema.sql
var Schema string
