// Package questdb implements the QuestDB store backend over the PostgreSQL
// wire protocol (default port 8812) using pgx.
//
// The table is created with a designated timestamp column and daily
// partitions:
//
//	CREATE TABLE IF NOT EXISTS "olimex_data" (
//	    "ts" TIMESTAMP, "device_id" SYMBOL, ...
//	) TIMESTAMP("ts") PARTITION BY DAY
//
// Each reading becomes one INSERT naming exactly the columns present in the
// payload. A payload key with no matching column makes QuestDB reject the
// statement, which surfaces as store.ErrSchema.
package questdb
