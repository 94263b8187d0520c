// Package store implements the persistent catalog (C1): agents,
// capabilities, health history and the append-only event log, held in an
// embedded SQLite database via modernc.org/sqlite (a pure-Go driver, so the
// registry never needs cgo to run). Every write is a single transaction;
// callers (internal/registry) are responsible for invalidating the
// in-memory cache once a write commits.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/meshctl/meshcore/internal/eventlog"
	"github.com/meshctl/meshcore/internal/model"
	"github.com/meshctl/meshcore/pkg/logging"
)

// maxOpenConns bounds the pooled connection set per §5 ("a bounded maximum,
// approximately 10").
const maxOpenConns = 10

// Store is the durable catalog. All exported methods are safe for
// concurrent use; SQLite serializes writers internally, and the Go sql
// package serializes access to a single connection across goroutines when
// needed.
type Store struct {
	db *sql.DB
}

// Open creates (if necessary) and migrates the SQLite database at path.
// Pass ":memory:" for an ephemeral store suitable for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite at %s: %w", path, err)
	}
	db.SetMaxOpenConns(maxOpenConns)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	var current int
	row := s.db.QueryRow("SELECT version FROM schema_version LIMIT 1")
	err := row.Scan(&current)
	if err != nil && err != sql.ErrNoRows {
		// schema_version table may not exist yet; that's fine, we start at 0.
		current = 0
	}

	for v := current; v < len(migrations); v++ {
		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec(migrations[v]); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec("DELETE FROM schema_version"); err != nil {
			tx.Rollback()
			return fmt.Errorf("reset schema_version during migration %d: %w", v+1, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", v+1); err != nil {
			tx.Rollback()
			return fmt.Errorf("record schema_version %d: %w", v+1, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", v+1, err)
		}
		logging.Info("Store", "applied schema migration %d", v+1)
	}
	return nil
}

// Register upserts an agent by (name, namespace), assigning it the given
// resource_version (already computed by the caller's Versioner so that
// version assignment and persistence happen under the same write lock). It
// returns the event type that resulted (Added if this is a new name/
// namespace pair, Modified otherwise).
func (s *Store) Register(ctx context.Context, agent *model.AgentRegistration, resourceVersion string) (eventlog.EventType, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var existingID string
	evType := eventlog.Added
	err = tx.QueryRowContext(ctx, `SELECT id FROM agents WHERE name = ? AND namespace = ?`, agent.Name, agent.Namespace).Scan(&existingID)
	switch {
	case err == sql.ErrNoRows:
		// fresh registration
	case err != nil:
		return "", err
	default:
		evType = eventlog.Modified
		agent.ID = existingID
	}

	now := time.Now().UTC()
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = now
	}
	agent.UpdatedAt = now
	agent.ResourceVersion = resourceVersion

	labelsJSON, _ := json.Marshal(agent.Labels)
	annotationsJSON, _ := json.Marshal(agent.Annotations)
	configJSON, _ := json.Marshal(agent.Config)
	depsJSON, _ := json.Marshal(agent.Dependencies)

	var lastHeartbeat interface{}
	if agent.LastHeartbeat != nil {
		lastHeartbeat = agent.LastHeartbeat.UTC().Format(time.RFC3339Nano)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agents (
			id, name, namespace, endpoint, status, labels_json, annotations_json,
			created_at, updated_at, resource_version, last_heartbeat,
			health_interval, timeout_threshold, eviction_threshold,
			config_json, security_context, dependencies_json, agent_type
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, namespace=excluded.namespace, endpoint=excluded.endpoint,
			status=excluded.status, labels_json=excluded.labels_json,
			annotations_json=excluded.annotations_json, updated_at=excluded.updated_at,
			resource_version=excluded.resource_version, last_heartbeat=excluded.last_heartbeat,
			health_interval=excluded.health_interval, timeout_threshold=excluded.timeout_threshold,
			eviction_threshold=excluded.eviction_threshold, config_json=excluded.config_json,
			security_context=excluded.security_context, dependencies_json=excluded.dependencies_json,
			agent_type=excluded.agent_type
	`,
		agent.ID, agent.Name, agent.Namespace, agent.Endpoint, string(agent.Status),
		string(labelsJSON), string(annotationsJSON),
		agent.CreatedAt.Format(time.RFC3339Nano), agent.UpdatedAt.Format(time.RFC3339Nano),
		agent.ResourceVersion, lastHeartbeat,
		agent.HealthInterval, agent.TimeoutThreshold, agent.EvictionThreshold,
		string(configJSON), agent.SecurityContext, string(depsJSON), agent.AgentType,
	)
	if err != nil {
		return "", fmt.Errorf("upsert agent: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM capabilities WHERE agent_id = ?`, agent.ID); err != nil {
		return "", fmt.Errorf("clear capabilities: %w", err)
	}
	for _, cap := range agent.Capabilities {
		tagsJSON, _ := json.Marshal(cap.Tags)
		schemaJSON, _ := json.Marshal(cap.ParametersSchema)
		securityJSON, _ := json.Marshal(cap.SecurityRequirements)
		perfJSON, _ := json.Marshal(cap.PerformanceMetrics)
		resourceJSON, _ := json.Marshal(cap.ResourceRequirements)
		_, err := tx.ExecContext(ctx, `
			INSERT INTO capabilities (
				agent_id, name, version, description, category, stability,
				tags_json, schema_json, security_json, perf_json, resource_json, function_name
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)
		`, agent.ID, cap.Name, cap.Version, cap.Description, cap.Category, string(cap.Stability),
			string(tagsJSON), string(schemaJSON), string(securityJSON), string(perfJSON), string(resourceJSON), cap.FunctionName)
		if err != nil {
			return "", fmt.Errorf("insert capability %s: %w", cap.Name, err)
		}
	}

	agentJSON, _ := json.Marshal(agent)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registry_events (event_type, agent_id, resource_version, agent_json, recorded_at)
		VALUES (?,?,?,?,?)
	`, string(evType), agent.ID, agent.ResourceVersion, string(agentJSON), now.Format(time.RFC3339Nano)); err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit register: %w", err)
	}
	return evType, nil
}

// RegisterContract upserts the optional ServiceContract attached to an
// already-registered agent.
func (s *Store) RegisterContract(ctx context.Context, contract *model.ServiceContract) error {
	methodsJSON, err := json.Marshal(contract.Methods)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO service_contracts (agent_id, service_name, service_version, contract_version, compatibility_level, methods_json)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(agent_id) DO UPDATE SET
			service_name=excluded.service_name, service_version=excluded.service_version,
			contract_version=excluded.contract_version, compatibility_level=excluded.compatibility_level,
			methods_json=excluded.methods_json
	`, contract.AgentID, contract.ServiceName, contract.ServiceVersion, contract.ContractVersion,
		string(contract.CompatibilityLevel), string(methodsJSON))
	return err
}

// Unregister removes an agent and, via ON DELETE CASCADE, its capabilities,
// health history, and contract.
func (s *Store) Unregister(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Heartbeat bumps last_heartbeat, sets status to healthy, assigns the given
// resource_version, and records an agent_health row with source "heartbeat".
// Returns sql.ErrNoRows if id is unknown.
func (s *Store) Heartbeat(ctx context.Context, id, resourceVersion string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE agents SET status = ?, last_heartbeat = ?, updated_at = ?, resource_version = ?
		WHERE id = ?
	`, string(model.StatusHealthy), at.UTC().Format(time.RFC3339Nano), at.UTC().Format(time.RFC3339Nano), resourceVersion, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_health (agent_id, status, source, recorded_at) VALUES (?,?,?,?)
	`, id, string(model.StatusHealthy), "heartbeat", at.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	agent, err := scanAgentByIDTx(ctx, tx, id)
	if err != nil {
		return err
	}
	agentJSON, _ := json.Marshal(agent)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registry_events (event_type, agent_id, resource_version, agent_json, recorded_at)
		VALUES (?,?,?,?,?)
	`, string(eventlog.Modified), id, resourceVersion, string(agentJSON), at.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return tx.Commit()
}

// ApplyTransition persists a status change driven by the health monitor:
// a new resource_version, an agent_health row with source "timeout", and a
// MODIFIED event.
func (s *Store) ApplyTransition(ctx context.Context, id string, newStatus model.AgentStatus, resourceVersion string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE agents SET status = ?, updated_at = ?, resource_version = ? WHERE id = ?
	`, string(newStatus), at.UTC().Format(time.RFC3339Nano), resourceVersion, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return sql.ErrNoRows
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO agent_health (agent_id, status, source, recorded_at) VALUES (?,?,?,?)
	`, id, string(newStatus), "timeout", at.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	agent, err := scanAgentByIDTx(ctx, tx, id)
	if err != nil {
		return err
	}
	agentJSON, _ := json.Marshal(agent)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registry_events (event_type, agent_id, resource_version, agent_json, recorded_at)
		VALUES (?,?,?,?,?)
	`, string(eventlog.Modified), id, resourceVersion, string(agentJSON), at.UTC().Format(time.RFC3339Nano)); err != nil {
		return err
	}

	return tx.Commit()
}

// Get returns a single agent by id, including its capabilities.
func (s *Store) Get(ctx context.Context, id string) (*model.AgentRegistration, error) {
	return scanAgentByIDTx(ctx, s.db, id)
}

// List returns every agent in the store (capabilities included). Used to
// rebuild the in-memory index at startup; online reads go through that
// index instead of hitting the store directly.
func (s *Store) List(ctx context.Context) ([]*model.AgentRegistration, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM agents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	agents := make([]*model.AgentRegistration, 0, len(ids))
	for _, id := range ids {
		a, err := scanAgentByIDTx(ctx, s.db, id)
		if err != nil {
			return nil, err
		}
		agents = append(agents, a)
	}
	return agents, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func scanAgentByIDTx(ctx context.Context, q querier, id string) (*model.AgentRegistration, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, namespace, endpoint, status, labels_json, annotations_json,
			created_at, updated_at, resource_version, last_heartbeat,
			health_interval, timeout_threshold, eviction_threshold,
			config_json, security_context, dependencies_json, agent_type
		FROM agents WHERE id = ?
	`, id)

	a := &model.AgentRegistration{}
	var labelsJSON, annotationsJSON, configJSON, depsJSON string
	var createdAt, updatedAt string
	var lastHeartbeat sql.NullString
	var status string

	if err := row.Scan(&a.ID, &a.Name, &a.Namespace, &a.Endpoint, &status, &labelsJSON, &annotationsJSON,
		&createdAt, &updatedAt, &a.ResourceVersion, &lastHeartbeat,
		&a.HealthInterval, &a.TimeoutThreshold, &a.EvictionThreshold,
		&configJSON, &a.SecurityContext, &depsJSON, &a.AgentType); err != nil {
		return nil, err
	}
	a.Status = model.AgentStatus(status)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	if lastHeartbeat.Valid {
		t, err := time.Parse(time.RFC3339Nano, lastHeartbeat.String)
		if err == nil {
			a.LastHeartbeat = &t
		}
	}
	json.Unmarshal([]byte(labelsJSON), &a.Labels)
	json.Unmarshal([]byte(annotationsJSON), &a.Annotations)
	json.Unmarshal([]byte(configJSON), &a.Config)
	json.Unmarshal([]byte(depsJSON), &a.Dependencies)

	caps, err := scanCapabilities(ctx, q, id)
	if err != nil {
		return nil, err
	}
	a.Capabilities = caps
	return a, nil
}

func scanCapabilities(ctx context.Context, q querier, agentID string) ([]model.Capability, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT name, version, description, category, stability, tags_json,
			schema_json, security_json, perf_json, resource_json, function_name
		FROM capabilities WHERE agent_id = ?
	`, agentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var caps []model.Capability
	for rows.Next() {
		var c model.Capability
		var stability string
		var tagsJSON, schemaJSON, securityJSON, perfJSON, resourceJSON string
		if err := rows.Scan(&c.Name, &c.Version, &c.Description, &c.Category, &stability, &tagsJSON,
			&schemaJSON, &securityJSON, &perfJSON, &resourceJSON, &c.FunctionName); err != nil {
			return nil, err
		}
		c.AgentID = agentID
		c.Stability = model.Stability(stability)
		json.Unmarshal([]byte(tagsJSON), &c.Tags)
		json.Unmarshal([]byte(schemaJSON), &c.ParametersSchema)
		json.Unmarshal([]byte(securityJSON), &c.SecurityRequirements)
		json.Unmarshal([]byte(perfJSON), &c.PerformanceMetrics)
		json.Unmarshal([]byte(resourceJSON), &c.ResourceRequirements)
		caps = append(caps, c)
	}
	return caps, rows.Err()
}
