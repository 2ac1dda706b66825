// Package db provides the embedded coupon and promotion schema.
package db

import _ "embed"

// Schema contains the DDL statements for the coupons and promotions tables.
//
//go:embed migrations/001_schema.sql
var Schema string
