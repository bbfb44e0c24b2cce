// Package models contains GORM-specific persistence models that map to database tables.
// These models are separate from domain entities to keep the domain layer pure and free
// from ORM concerns.
//
// Key Principles:
// 1. Domain entities should be free of GORM tags and infrastructure concerns
// 2. Persistence models contain all GORM annotations and table mappings
// 3. Mappers convert between domain entities and persistence models
// 4. Repositories use persistence models for database operations
//
// Structure:
// - base.go: JSON column and rounding helpers shared by the mappers
// - receivable.go: receivables, allocations, anticipation requests and history, documents
// - settlement.go: payment settlements and their anticipation settlement entries
// - event.go: the hash-chained receivable event log
// - ledger.go: ledger transaction headers and entries
// - audit.go: audit log and mutation failure records
// - outbox.go: outbox rows for downstream delivery
//
// Column types are chosen so the same models migrate on PostgreSQL and on the
// SQLite databases used in tests. Amounts read back from SQLite arrive as
// floats, so every mapper rounds money and rates on the way out.
package models
