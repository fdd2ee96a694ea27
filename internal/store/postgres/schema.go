package postgres

// Channels carry one empty NOTIFY per statement that touches the table.
const (
	setsChannel     = "ambient_sets"
	projectsChannel = "ambient_projects"
)

// Schema creates the tables and change triggers. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sets (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL DEFAULT '',
	customer_name      TEXT NOT NULL,
	address            TEXT NOT NULL,
	phone_number       TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	appointment_date   TEXT NOT NULL,
	appointment_time   TEXT NOT NULL,
	is_spanish_speaker BOOLEAN NOT NULL DEFAULT FALSE,
	status             TEXT NOT NULL,
	closer_id          TEXT NOT NULL DEFAULT '',
	closer_name        TEXT NOT NULL DEFAULT '',
	office             TEXT NOT NULL DEFAULT '',
	utility_bill       TEXT NOT NULL DEFAULT '',
	notes              TEXT NOT NULL DEFAULT '',
	version            BIGINT NOT NULL DEFAULT 1,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sets_user_id ON sets (user_id);
CREATE INDEX IF NOT EXISTS idx_sets_closer_id ON sets (closer_id);

CREATE TABLE IF NOT EXISTS projects (
	id                 TEXT PRIMARY KEY,
	user_id            TEXT NOT NULL,
	closed_by          TEXT NOT NULL DEFAULT '',
	customer_name      TEXT NOT NULL,
	address            TEXT NOT NULL,
	phone_number       TEXT NOT NULL,
	email              TEXT NOT NULL DEFAULT '',
	is_spanish_speaker BOOLEAN NOT NULL DEFAULT FALSE,
	office             TEXT NOT NULL DEFAULT '',
	closer_id          TEXT NOT NULL DEFAULT '',
	closer_name        TEXT NOT NULL DEFAULT '',
	system_size        TEXT NOT NULL,
	gross_ppw          TEXT NOT NULL,
	finance_type       TEXT NOT NULL,
	lender             TEXT NOT NULL,
	adders             TEXT[],
	panel_type         TEXT NOT NULL,
	battery_type       TEXT NOT NULL DEFAULT '',
	battery_quantity   INTEGER NOT NULL DEFAULT 0,
	site_survey_date   TEXT NOT NULL,
	site_survey_time   TEXT NOT NULL,
	permit_date        TEXT NOT NULL DEFAULT '',
	install_date       TEXT NOT NULL DEFAULT '',
	inspection_date    TEXT NOT NULL DEFAULT '',
	pto_date           TEXT NOT NULL DEFAULT '',
	payment_date       TEXT NOT NULL,
	payment_amount     DOUBLE PRECISION NOT NULL,
	commission_rate    DOUBLE PRECISION NOT NULL,
	deal_number        INTEGER NOT NULL,
	status             TEXT NOT NULL,
	version            BIGINT NOT NULL DEFAULT 1,
	created_at         TIMESTAMPTZ NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_projects_user_id ON projects (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_projects_user_deal ON projects (user_id, deal_number);

CREATE TABLE IF NOT EXISTS users (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	email            TEXT NOT NULL DEFAULT '',
	phone_number     TEXT NOT NULL DEFAULT '',
	role             TEXT NOT NULL,
	office           TEXT NOT NULL DEFAULT '',
	deal_count       INTEGER NOT NULL DEFAULT 0,
	total_commission DOUBLE PRECISION NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS commission_payments (
	id              TEXT NOT NULL,
	user_id         TEXT NOT NULL REFERENCES users (id),
	project_id      TEXT NOT NULL,
	amount          DOUBLE PRECISION NOT NULL,
	payment_date    TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	status          TEXT NOT NULL,
	customer_name   TEXT NOT NULL DEFAULT '',
	deal_number     INTEGER NOT NULL,
	system_size     TEXT NOT NULL,
	commission_rate DOUBLE PRECISION NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	paid_at         TIMESTAMPTZ,
	PRIMARY KEY (user_id, id)
);

CREATE OR REPLACE FUNCTION ambient_notify_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify(TG_ARGV[0], '');
	RETURN NULL;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS sets_notify ON sets;
CREATE TRIGGER sets_notify AFTER INSERT OR UPDATE OR DELETE ON sets
	FOR EACH STATEMENT EXECUTE FUNCTION ambient_notify_change('ambient_sets');

DROP TRIGGER IF EXISTS projects_notify ON projects;
CREATE TRIGGER projects_notify AFTER INSERT OR UPDATE OR DELETE ON projects
	FOR EACH STATEMENT EXECUTE FUNCTION ambient_notify_change('ambient_projects');
`
