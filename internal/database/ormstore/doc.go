// Package ormstore stores aggregates and reconciliation marks through GORM.
//
// It runs on an embedded pure-Go SQLite file for single-node deployments and
// tests, or on PostgreSQL through the GORM postgres driver.
package ormstore
