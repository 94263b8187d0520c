package store

// schemaVersion is bumped whenever a migration is appended to migrations.
// Migrations run forward-only, transactionally, against the schema_version
// singleton row.
const schemaVersion = 1

// migrations holds the forward-only DDL for each schema revision. Index 0
// takes a fresh database from "no schema" to version 1; a future revision
// appends index 1 to reach version 2, and so on. None of these are ever
// edited once released.
var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		id                 TEXT PRIMARY KEY,
		name               TEXT NOT NULL,
		namespace          TEXT NOT NULL,
		endpoint           TEXT NOT NULL,
		status             TEXT NOT NULL,
		labels_json        TEXT NOT NULL DEFAULT '{}',
		annotations_json   TEXT NOT NULL DEFAULT '{}',
		created_at         TEXT NOT NULL,
		updated_at         TEXT NOT NULL,
		resource_version   TEXT NOT NULL,
		last_heartbeat     TEXT,
		health_interval    INTEGER NOT NULL DEFAULT 30,
		timeout_threshold  INTEGER NOT NULL DEFAULT 20,
		eviction_threshold INTEGER NOT NULL DEFAULT 60,
		config_json        TEXT NOT NULL DEFAULT '{}',
		security_context   TEXT NOT NULL DEFAULT '',
		dependencies_json  TEXT NOT NULL DEFAULT '[]',
		agent_type         TEXT NOT NULL DEFAULT '',
		UNIQUE(name, namespace)
	);
	CREATE INDEX IF NOT EXISTS idx_agents_namespace ON agents(namespace);
	CREATE INDEX IF NOT EXISTS idx_agents_status ON agents(status);
	CREATE INDEX IF NOT EXISTS idx_agents_updated_at ON agents(updated_at);
	CREATE INDEX IF NOT EXISTS idx_agents_last_heartbeat ON agents(last_heartbeat);

	CREATE TABLE IF NOT EXISTS capabilities (
		agent_id     TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		name         TEXT NOT NULL,
		version      TEXT NOT NULL,
		description  TEXT NOT NULL DEFAULT '',
		category     TEXT NOT NULL DEFAULT '',
		stability    TEXT NOT NULL DEFAULT '',
		tags_json    TEXT NOT NULL DEFAULT '[]',
		schema_json  TEXT NOT NULL DEFAULT '{}',
		security_json TEXT NOT NULL DEFAULT '[]',
		perf_json    TEXT NOT NULL DEFAULT '{}',
		resource_json TEXT NOT NULL DEFAULT '{}',
		function_name TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (agent_id, name)
	);
	CREATE INDEX IF NOT EXISTS idx_capabilities_name ON capabilities(name, agent_id);

	CREATE TABLE IF NOT EXISTS agent_health (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		agent_id   TEXT NOT NULL REFERENCES agents(id) ON DELETE CASCADE,
		status     TEXT NOT NULL,
		source     TEXT NOT NULL,
		recorded_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS registry_events (
		id               INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type       TEXT NOT NULL,
		agent_id         TEXT NOT NULL,
		resource_version TEXT NOT NULL,
		agent_json       TEXT NOT NULL,
		recorded_at      TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS service_contracts (
		agent_id            TEXT PRIMARY KEY REFERENCES agents(id) ON DELETE CASCADE,
		service_name        TEXT NOT NULL,
		service_version     TEXT NOT NULL,
		contract_version    TEXT NOT NULL,
		compatibility_level TEXT NOT NULL,
		methods_json        TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_contracts_service ON service_contracts(agent_id, service_name);
	`,
}
