package neo4j

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/zap"

	"github.com/wikitopics/backend/internal/storage/models"
	"github.com/wikitopics/backend/pkg/circuitbreaker"
	"github.com/wikitopics/backend/pkg/logger"
	"github.com/wikitopics/backend/pkg/retry"
)

// Client mirrors the filtered link graph into Neo4j. MERGE semantics
// keep the export idempotent across runs.
type Client struct {
	driver      neo4j.DriverWithContext
	database    string
	cb          *circuitbreaker.CircuitBreaker
	retryConfig retry.Config
}

func NewClient(uri, username, password, database string) (*Client, error) {
	driver, err := neo4j.NewDriverWithContext(
		uri,
		neo4j.BasicAuth(username, password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}

	ctx := context.Background()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		return nil, fmt.Errorf("failed to verify connectivity: %w", err)
	}

	cb := circuitbreaker.New("neo4j", circuitbreaker.Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      20 * time.Second,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   200 * time.Millisecond,
		MaxDelay:       3 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	logger.Info("Neo4j client initialized", zap.String("uri", uri))

	return &Client{
		driver:      driver,
		database:    database,
		cb:          cb,
		retryConfig: retryConfig,
	}, nil
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

func (c *Client) executeWithRetry(ctx context.Context, operation func(neo4j.SessionWithContext) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	return c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			session := c.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: c.database})
			defer session.Close(ctx)
			return operation(session)
		})
	})
}

// MergePage upserts a Page node keyed by page id.
func (c *Client) MergePage(ctx context.Context, id int64, name, langCode string, simScore float64) error {
	query := `
		MERGE (p:Page {id: $id})
		SET p.name = $name,
		    p.lang_code = $lang_code,
		    p.sim_score = $sim_score,
		    p.updated_at = timestamp()
	`

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]interface{}{
			"id":        id,
			"name":      name,
			"lang_code": langCode,
			"sim_score": simScore,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to merge page node: %w", err)
	}

	logger.Debug("Page node merged", zap.Int64("page_id", id), zap.String("name", name))
	return nil
}

// MergeLink upserts a LINKS_TO relationship between two Page nodes.
func (c *Client) MergeLink(ctx context.Context, sourceID, targetID int64) error {
	query := `
		MATCH (s:Page {id: $source_id})
		MATCH (t:Page {id: $target_id})
		MERGE (s)-[r:LINKS_TO]->(t)
		SET r.updated_at = timestamp()
	`

	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		_, err := session.Run(ctx, query, map[string]interface{}{
			"source_id": sourceID,
			"target_id": targetID,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to merge link: %w", err)
	}
	return nil
}

// ExportEdges pushes a filtered edge list: both endpoint nodes first,
// then the relationships.
func (c *Client) ExportEdges(ctx context.Context, edges []models.LinkEdge) error {
	merged := make(map[int64]struct{})
	for _, edge := range edges {
		if _, ok := merged[edge.SourcePageID]; !ok {
			if err := c.MergePage(ctx, edge.SourcePageID, edge.SourceName, "", edge.SourceScore); err != nil {
				return err
			}
			merged[edge.SourcePageID] = struct{}{}
		}
		if _, ok := merged[edge.TargetPageID]; !ok {
			if err := c.MergePage(ctx, edge.TargetPageID, edge.TargetName, "", edge.TargetScore); err != nil {
				return err
			}
			merged[edge.TargetPageID] = struct{}{}
		}
		if err := c.MergeLink(ctx, edge.SourcePageID, edge.TargetPageID); err != nil {
			return err
		}
	}

	logger.Info("Link graph exported",
		zap.Int("nodes", len(merged)),
		zap.Int("edges", len(edges)),
	)
	return nil
}

// TopTargets returns the most referenced Page nodes by in-degree.
func (c *Client) TopTargets(ctx context.Context, limit int) ([]string, error) {
	query := `
		MATCH (:Page)-[r:LINKS_TO]->(t:Page)
		RETURN t.name AS name, count(r) AS in_degree
		ORDER BY in_degree DESC, name
		LIMIT $limit
	`

	var names []string
	err := c.executeWithRetry(ctx, func(session neo4j.SessionWithContext) error {
		result, err := session.Run(ctx, query, map[string]interface{}{"limit": limit})
		if err != nil {
			return fmt.Errorf("failed to query top targets: %w", err)
		}

		for result.Next(ctx) {
			name, _ := result.Record().Get("name")
			if s, ok := name.(string); ok {
				names = append(names, s)
			}
		}
		return result.Err()
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}
