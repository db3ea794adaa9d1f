// Package graphdb mirrors a netsim topology into a Neo4j database, with
// devices as (:Device {id, kind}) nodes and links as undirected
// [:LINK {latencyMs, lossProbability}] relationships.
package graphdb

import (
	"context"
	"fmt"

	"github.com/iti/netsim"
	"github.com/iti/netsim/logging"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultDatabase is the database used when Config.Database is empty
const DefaultDatabase = "neo4j"

// Config locates the database.  Without a user the connection is made with no authentication.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// statement is one parameterized cypher query
type statement struct {
	cypher string
	params map[string]any
}

// runFunc executes a statement
type runFunc func(ctx context.Context, st statement) error

// Mirror keeps a Neo4j database in step with exported topologies
type Mirror struct {
	driver neo4j.DriverWithContext
	run    runFunc
	logger logging.Logger
}

// Open connects to the database and checks that it answers
func Open(ctx context.Context, cfg Config, logger logging.Logger) (*Mirror, error) {
	if cfg.URI == "" {
		return nil, fmt.Errorf("%w: empty neo4j uri", netsim.ErrInvalidInput)
	}
	auth := neo4j.NoAuth()
	if cfg.User != "" {
		auth = neo4j.BasicAuth(cfg.User, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, err
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	database := cfg.Database
	if database == "" {
		database = DefaultDatabase
	}
	mr := newMirror(func(ctx context.Context, st statement) error {
		_, err := neo4j.ExecuteQuery(ctx, driver, st.cypher, st.params,
			neo4j.EagerResultTransformer,
			neo4j.ExecuteQueryWithDatabase(database))
		return err
	}, logger)
	mr.driver = driver
	return mr, nil
}

func newMirror(run runFunc, logger logging.Logger) *Mirror {
	if logger == nil {
		logger = logging.Noop()
	}
	return &Mirror{run: run, logger: logger}
}

// Close releases the driver
func (mr *Mirror) Close(ctx context.Context) error {
	if mr.driver == nil {
		return nil
	}
	return mr.driver.Close(ctx)
}

// Sync replaces the database contents by the topology the document describes.
// Links whose endpoints are not among the document's devices match nothing
// and are dropped, as an import would drop them.
func (mr *Mirror) Sync(ctx context.Context, doc netsim.TopoDoc) error {
	stmts := syncStatements(doc)
	for idx, st := range stmts {
		if err := mr.run(ctx, st); err != nil {
			return fmt.Errorf("neo4j sync step %d of %d: %w", idx+1, len(stmts), err)
		}
	}
	mr.logger.Info(ctx, "topology mirrored to neo4j",
		logging.Int("devices", len(doc.Devices)),
		logging.Int("links", len(doc.Links)))
	return nil
}

// syncStatements lists the queries that rebuild the mirror from doc
func syncStatements(doc netsim.TopoDoc) []statement {
	devices := make([]map[string]any, 0, len(doc.Devices))
	for _, dd := range doc.Devices {
		kind := dd.Kind
		if kind == "" {
			kind = netsim.Router.String()
		}
		devices = append(devices, map[string]any{"id": dd.ID, "kind": kind})
	}
	links := make([]map[string]any, 0, len(doc.Links))
	for _, ld := range doc.Links {
		links = append(links, map[string]any{
			"a":               ld.A,
			"b":               ld.B,
			"latencyMs":       ld.LatencyMs,
			"lossProbability": ld.LossProbability,
		})
	}

	return []statement{
		{cypher: `MATCH (d:Device) DETACH DELETE d`, params: map[string]any{}},
		{cypher: `CREATE CONSTRAINT uniq_device_id IF NOT EXISTS
		FOR (d:Device)
		REQUIRE d.id IS UNIQUE`, params: map[string]any{}},
		{cypher: `UNWIND $devices AS dev
		MERGE (d:Device {id: dev.id})
		SET d.kind = dev.kind`, params: map[string]any{"devices": devices}},
		{cypher: `UNWIND $links AS lnk
		MATCH (a:Device {id: lnk.a})
		MATCH (b:Device {id: lnk.b})
		MERGE (a)-[l:LINK]-(b)
		SET l.latencyMs = lnk.latencyMs, l.lossProbability = lnk.lossProbability`,
			params: map[string]any{"links": links}},
	}
}

// AddDevice mirrors a single new device
func (mr *Mirror) AddDevice(ctx context.Context, dev netsim.Device) error {
	return mr.run(ctx, statement{
		cypher: `MERGE (d:Device {id: $id}) SET d.kind = $kind`,
		params: map[string]any{"id": dev.ID, "kind": dev.Kind.String()},
	})
}

// RemoveDevice drops a device and every link touching it
func (mr *Mirror) RemoveDevice(ctx context.Context, id string) error {
	return mr.run(ctx, statement{
		cypher: `MATCH (d:Device {id: $id}) DETACH DELETE d`,
		params: map[string]any{"id": id},
	})
}

// SetLink creates or updates the link between two mirrored devices
func (mr *Mirror) SetLink(ctx context.Context, lnk netsim.Link) error {
	return mr.run(ctx, statement{
		cypher: `MATCH (a:Device {id: $a})
		MATCH (b:Device {id: $b})
		MERGE (a)-[l:LINK]-(b)
		SET l.latencyMs = $latencyMs, l.lossProbability = $lossProbability`,
		params: map[string]any{
			"a":               lnk.A,
			"b":               lnk.B,
			"latencyMs":       lnk.LatencyMs,
			"lossProbability": lnk.LossProbability,
		},
	})
}

// RemoveLink drops the link between two devices
func (mr *Mirror) RemoveLink(ctx context.Context, a, b string) error {
	return mr.run(ctx, statement{
		cypher: `MATCH (:Device {id: $a})-[l:LINK]-(:Device {id: $b}) DELETE l`,
		params: map[string]any{"a": a, "b": b},
	})
}
