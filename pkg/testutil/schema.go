package testutil

// Schema is the full stock schema, applied once per test database. Kept as a
// single DDL block so integration tests never drift from what the service
// expects at runtime.
const Schema = `
	CREATE TABLE IF NOT EXISTS items (
		id UUID PRIMARY KEY,
		code VARCHAR(64) NOT NULL,
		name VARCHAR(255) NOT NULL,
		category VARCHAR(100) NOT NULL,
		department VARCHAR(100) NOT NULL,
		unit VARCHAR(32) NOT NULL,
		min_stock NUMERIC(18,3) NOT NULL DEFAULT 0,
		supplier VARCHAR(255),
		catalog_number VARCHAR(100),
		notes TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT items_code_key UNIQUE (code)
	);

	CREATE TABLE IF NOT EXISTS lots (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		lot_number VARCHAR(100) NOT NULL,
		initial_quantity NUMERIC(18,3) NOT NULL,
		current_quantity NUMERIC(18,3) NOT NULL,
		expiry_date TIMESTAMPTZ,
		received_date TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT lots_item_lot_number_key UNIQUE (item_id, lot_number),
		CONSTRAINT quantity_non_negative CHECK (current_quantity >= 0),
		CONSTRAINT current_within_initial CHECK (current_quantity <= initial_quantity),
		CONSTRAINT initial_positive CHECK (initial_quantity > 0)
	);

	CREATE INDEX IF NOT EXISTS idx_lots_item_fefo
		ON lots (item_id, expiry_date ASC NULLS LAST, received_date ASC, created_at ASC);

	CREATE TABLE IF NOT EXISTS purchases (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		requested_qty NUMERIC(18,3) NOT NULL,
		urgency VARCHAR(20) NOT NULL DEFAULT 'normal',
		notes TEXT,
		status VARCHAR(32) NOT NULL,
		requested_by VARCHAR(64) NOT NULL,
		requested_by_name VARCHAR(255) NOT NULL,
		approved_by VARCHAR(64),
		approved_by_name VARCHAR(255),
		approved_at TIMESTAMPTZ,
		approval_note TEXT,
		rejected_by VARCHAR(64),
		rejected_at TIMESTAMPTZ,
		rejected_reason TEXT,
		ordered_by VARCHAR(64),
		ordered_at TIMESTAMPTZ,
		supplier VARCHAR(255),
		po_number VARCHAR(100),
		ordered_qty NUMERIC(18,3) NOT NULL DEFAULT 0,
		received_qty_total NUMERIC(18,3) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT status_valid CHECK (status IN (
			'REQUESTED', 'APPROVED', 'REJECTED',
			'ORDERED', 'PARTIALLY_RECEIVED', 'RECEIVED'
		))
	);

	CREATE TABLE IF NOT EXISTS purchase_receipts (
		id UUID PRIMARY KEY,
		purchase_id UUID NOT NULL REFERENCES purchases(id) ON DELETE CASCADE,
		item_id UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		lot_id UUID NOT NULL REFERENCES lots(id) ON DELETE CASCADE,
		lot_number VARCHAR(100) NOT NULL,
		quantity NUMERIC(18,3) NOT NULL CHECK (quantity > 0),
		expiry_date TIMESTAMPTZ,
		invoice_ref VARCHAR(100),
		attachment_url TEXT,
		received_by VARCHAR(64) NOT NULL,
		received_by_name VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS distributions (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		quantity NUMERIC(18,3) NOT NULL CHECK (quantity > 0),
		department VARCHAR(100) NOT NULL,
		requested_by VARCHAR(255) NOT NULL,
		purpose TEXT NOT NULL,
		issued_by VARCHAR(64) NOT NULL,
		issued_by_name VARCHAR(255) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		confirmed_by VARCHAR(64),
		confirmed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS waste_records (
		id UUID PRIMARY KEY,
		item_id UUID NOT NULL REFERENCES items(id) ON DELETE CASCADE,
		quantity NUMERIC(18,3) NOT NULL CHECK (quantity > 0),
		waste_type VARCHAR(32) NOT NULL,
		reason TEXT NOT NULL,
		disposal_method VARCHAR(255) NOT NULL,
		certificate_ref VARCHAR(100),
		recorded_by VARCHAR(64) NOT NULL,
		recorded_by_name VARCHAR(255) NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT waste_type_valid CHECK (waste_type IN (
			'EXPIRED', 'CONTAMINATED', 'DAMAGED', 'RECALLED'
		))
	);

	CREATE TABLE IF NOT EXISTS lot_allocations (
		id UUID PRIMARY KEY,
		source_type VARCHAR(20) NOT NULL CHECK (source_type IN ('distribution', 'waste')),
		source_id UUID NOT NULL,
		lot_id UUID NOT NULL REFERENCES lots(id) ON DELETE CASCADE,
		lot_number VARCHAR(100) NOT NULL,
		quantity NUMERIC(18,3) NOT NULL CHECK (quantity > 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_lot_allocations_source
		ON lot_allocations (source_type, source_id);
`

// Tables in dependency order for truncation between tests
var Tables = []string{
	"lot_allocations",
	"waste_records",
	"distributions",
	"purchase_receipts",
	"purchases",
	"lots",
	"items",
}
