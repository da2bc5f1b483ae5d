// Package graph records the crawl's link graph in Neo4j as
// (:Page)-[:LINKS_TO]->(:Page) relationships.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/JakeFAU/nexus-search/internal/crawler"
)

// Config holds the connection settings.
type Config struct {
	URI      string
	Username string
	Password string
	Database string
}

// SessionRunner is the subset of neo4j.SessionWithContext used here.
type SessionRunner interface {
	ExecuteWrite(ctx context.Context, work neo4j.ManagedTransactionWork, configurers ...func(*neo4j.TransactionConfig)) (any, error)
	Close(ctx context.Context) error
}

// DriverSessioner is the subset of neo4j.DriverWithContext used here.
type DriverSessioner interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner
	Close(ctx context.Context) error
}

type driverAdapter struct {
	driver neo4j.DriverWithContext
}

func (d *driverAdapter) NewSession(ctx context.Context, config neo4j.SessionConfig) SessionRunner {
	return d.driver.NewSession(ctx, config)
}

func (d *driverAdapter) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

// Graph is a crawler.LinkGraph.
type Graph struct {
	driver   DriverSessioner
	database string
	logger   *zap.Logger
}

// Open connects with basic auth and verifies connectivity.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Graph, error) {
	if cfg.URI == "" {
		return nil, errors.New("neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}
	return New(&driverAdapter{driver: driver}, cfg.Database, logger), nil
}

// New wraps an existing driver.
func New(driver DriverSessioner, database string, logger *zap.Logger) *Graph {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Graph{driver: driver, database: database, logger: logger.Named("graph")}
}

const linksQuery = "MERGE (from:Page {url: $from}) " +
	"WITH from UNWIND $links AS link " +
	"MERGE (to:Page {url: link}) " +
	"MERGE (from)-[:LINKS_TO]->(to)"

const pageQuery = "MERGE (:Page {url: $from})"

func buildLinksQuery(from string, to []string) (string, map[string]any) {
	if len(to) == 0 {
		return pageQuery, map[string]any{"from": from}
	}
	links := make([]any, 0, len(to))
	for _, link := range to {
		links = append(links, link)
	}
	return linksQuery, map[string]any{"from": from, "links": links}
}

// RecordLinks merges the page node and one edge per outbound link.
func (g *Graph) RecordLinks(ctx context.Context, from string, to []string) error {
	if from == "" {
		return errors.New("source url is required")
	}
	query, params := buildLinksQuery(from, to)

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: g.database,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			g.logger.Warn("neo4j session close failed", zap.Error(err))
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, params)
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("record links for %s: %w", from, err)
	}
	return nil
}

// Close shuts the driver down.
func (g *Graph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

var _ crawler.LinkGraph = (*Graph)(nil)
