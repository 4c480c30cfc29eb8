// Package db provides the embedded database schema and catalog seed.
package db

import _ "embed"

// Schema contains the DDL statements for all application tables.
//
//go:embed migrations/001_schema.sql
var Schema string

// SeedProducts is the default menu as a JSON array of products.
//
//go:embed seed/products.json
var SeedProducts []byte
