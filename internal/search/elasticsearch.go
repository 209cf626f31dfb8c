package search

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"example.com/snapevent/config"
	"example.com/snapevent/internal/models"
)

// Index names, combined with the configured prefix
const (
	deletionIndex = "media-deletions"
	auditIndex    = "event-audits"
)

// ElasticClient pushes deletion-log entries and audit snapshots into
// Elasticsearch for offline analytics.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	esConfig := elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	}

	client, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// IndexDeletionEntry indexes one deletion-log entry
func (c *ElasticClient) IndexDeletionEntry(ctx context.Context, entry models.MediaDeletionEntry) error {
	doc := map[string]interface{}{
		"event_id":   entry.EventID,
		"media_id":   entry.MediaID,
		"deleted_at": entry.DeletedAt,
	}
	return c.index(ctx, config.FormatIndex(c.config, deletionIndex), "", doc)
}

// IndexEventAudit indexes the audit snapshot written on event deletion
func (c *ElasticClient) IndexEventAudit(ctx context.Context, audit *models.EventAudit) error {
	log.Info().Uint("event_id", audit.EventID).Msg("indexing event audit")

	doc := map[string]interface{}{
		"event_id":                  audit.EventID,
		"owner_id":                  audit.OwnerID,
		"name":                      audit.Name,
		"event_created_at":          audit.EventCreatedAt,
		"deleted_at":                audit.DeletedAt,
		"total_photos_at_delete":    audit.TotalPhotosAtDelete,
		"deleted_photos_cumulative": audit.DeletedPhotosCumulative,
	}
	return c.index(ctx, config.FormatIndex(c.config, auditIndex), "", doc)
}

func (c *ElasticClient) index(ctx context.Context, indexName, docID string, doc map[string]interface{}) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrap(err, "failed to marshal document")
	}

	req := esapi.IndexRequest{
		Index:      indexName,
		DocumentID: docID,
		Body:       bytes.NewReader(docJSON),
		Refresh:    "true",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		var e map[string]interface{}
		if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch error response")
		}
		return errors.Errorf("Elasticsearch index error: %v", e)
	}
	return nil
}
