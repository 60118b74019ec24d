package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"uptime/internal/config"
	"uptime/internal/logger"
	"uptime/internal/models"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"go.uber.org/zap"
)

// CheckDocument 单次检查在 ES 中的文档结构
type CheckDocument struct {
	MonitorID      uint32    `json:"monitor_id"`
	MonitorName    string    `json:"monitor_name"`
	URL            string    `json:"url"`
	Method         string    `json:"method"`
	Status         string    `json:"status"`        // up, down
	ResponseTime   int64     `json:"response_time"` // milliseconds
	StatusCode     int       `json:"status_code,omitempty"`
	ExpectedStatus int       `json:"expected_status"`
	Error          string    `json:"error,omitempty"`
	OwnerID        uint32    `json:"owner_id"`
	Timestamp      time.Time `json:"@timestamp"`
}

type Client struct {
	es          *elasticsearch.Client
	indexPrefix string
}

// NewClient 创建客户端并测试连接，未启用时返回 nil
func NewClient(cfg config.ElasticsearchConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return newClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	}, cfg.IndexPrefix)
}

func newClient(esConfig elasticsearch.Config, prefix string) (*Client, error) {
	es, err := elasticsearch.NewClient(esConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	res, err := es.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	if prefix == "" {
		prefix = "uptime-checks"
	}
	logger.Info("Elasticsearch client initialized", zap.Strings("addresses", esConfig.Addresses))
	return &Client{es: es, indexPrefix: prefix}, nil
}

// IndexFor 按日期滚动的索引名
func (c *Client) IndexFor(t time.Time) string {
	return fmt.Sprintf("%s-%s", c.indexPrefix, t.UTC().Format("2006.01.02"))
}

// Archive 写入一次检查结果
func (c *Client) Archive(ctx context.Context, m *models.Monitor, entry *models.StatusHistory) error {
	if c == nil || c.es == nil {
		return nil
	}

	doc := CheckDocument{
		MonitorID:      m.ID,
		MonitorName:    m.Name,
		URL:            m.URL,
		Method:         m.Method,
		Status:         entry.Status,
		ResponseTime:   entry.ResponseTime,
		StatusCode:     entry.StatusCode,
		ExpectedStatus: m.ExpectedStatus,
		OwnerID:        m.CreatedBy,
		Timestamp:      entry.Timestamp.UTC(),
	}
	if entry.Error != nil {
		doc.Error = *entry.Error
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal check document: %w", err)
	}

	req := esapi.IndexRequest{
		Index: c.IndexFor(doc.Timestamp),
		Body:  bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to index check: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch indexing error: %s", res.String())
	}
	return nil
}

// SearchQuery 检查记录搜索条件
type SearchQuery struct {
	MonitorID *uint32    `json:"monitor_id,omitempty"`
	Status    string     `json:"status,omitempty"`
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Text      string     `json:"text,omitempty"`
	Size      int        `json:"size,omitempty"`
	From      int        `json:"from,omitempty"`
}

type SearchResult struct {
	Total int64           `json:"total"`
	Hits  []CheckDocument `json:"hits"`
}

// Search 按条件搜索检查记录，按时间倒序
func (c *Client) Search(ctx context.Context, query SearchQuery) (*SearchResult, error) {
	if c == nil || c.es == nil {
		return &SearchResult{Hits: []CheckDocument{}}, nil
	}

	must := []map[string]interface{}{}
	if query.MonitorID != nil {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"monitor_id": *query.MonitorID},
		})
	}
	if query.Status != "" {
		must = append(must, map[string]interface{}{
			"term": map[string]interface{}{"status": query.Status},
		})
	}
	if query.StartTime != nil || query.EndTime != nil {
		rng := map[string]interface{}{}
		if query.StartTime != nil {
			rng["gte"] = query.StartTime.UTC().Format(time.RFC3339)
		}
		if query.EndTime != nil {
			rng["lte"] = query.EndTime.UTC().Format(time.RFC3339)
		}
		must = append(must, map[string]interface{}{
			"range": map[string]interface{}{"@timestamp": rng},
		})
	}
	if query.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query.Text,
				"fields": []string{"monitor_name", "url", "error"},
			},
		})
	}

	size := query.Size
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	searchBody := map[string]interface{}{
		"query": map[string]interface{}{"bool": map[string]interface{}{"must": must}},
		"size":  size,
		"from":  query.From,
		"sort": []map[string]interface{}{
			{"@timestamp": map[string]interface{}{"order": "desc"}},
		},
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source CheckDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := c.search(ctx, searchBody, &response); err != nil {
		return nil, err
	}

	result := &SearchResult{
		Total: response.Hits.Total.Value,
		Hits:  make([]CheckDocument, 0, len(response.Hits.Hits)),
	}
	for _, hit := range response.Hits.Hits {
		result.Hits = append(result.Hits, hit.Source)
	}
	return result, nil
}

// CheckStats 时间范围内的状态分布和平均响应时间
type CheckStats struct {
	Total           int64            `json:"total"`
	StatusCounts    map[string]int64 `json:"status_counts"`
	AvgResponseTime float64          `json:"avg_response_time"`
}

func (c *Client) Stats(ctx context.Context, monitorID uint32, start, end time.Time) (*CheckStats, error) {
	if c == nil || c.es == nil {
		return &CheckStats{StatusCounts: map[string]int64{}}, nil
	}

	query := map[string]interface{}{
		"size": 0,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": []map[string]interface{}{
					{"term": map[string]interface{}{"monitor_id": monitorID}},
					{"range": map[string]interface{}{
						"@timestamp": map[string]interface{}{
							"gte": start.UTC().Format(time.RFC3339),
							"lte": end.UTC().Format(time.RFC3339),
						},
					}},
				},
			},
		},
		"aggs": map[string]interface{}{
			"status_count":      map[string]interface{}{"terms": map[string]interface{}{"field": "status"}},
			"avg_response_time": map[string]interface{}{"avg": map[string]interface{}{"field": "response_time"}},
		},
	}

	var response struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
		} `json:"hits"`
		Aggregations struct {
			StatusCount struct {
				Buckets []struct {
					Key      string `json:"key"`
					DocCount int64  `json:"doc_count"`
				} `json:"buckets"`
			} `json:"status_count"`
			AvgResponseTime struct {
				Value *float64 `json:"value"`
			} `json:"avg_response_time"`
		} `json:"aggregations"`
	}
	if err := c.search(ctx, query, &response); err != nil {
		return nil, err
	}

	stats := &CheckStats{
		Total:        response.Hits.Total.Value,
		StatusCounts: make(map[string]int64),
	}
	for _, b := range response.Aggregations.StatusCount.Buckets {
		stats.StatusCounts[b.Key] = b.DocCount
	}
	if v := response.Aggregations.AvgResponseTime.Value; v != nil {
		stats.AvgResponseTime = *v
	}
	return stats, nil
}

func (c *Client) search(ctx context.Context, body interface{}, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal search query: %w", err)
	}
	req := esapi.SearchRequest{
		Index: []string{c.indexPrefix + "-*"},
		Body:  bytes.NewReader(data),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to search checks: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch search error: %s", res.String())
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to parse search response: %w", err)
	}
	return nil
}

// CreateIndexTemplate 创建（或覆盖）检查记录的索引模板
func (c *Client) CreateIndexTemplate(ctx context.Context) error {
	if c == nil || c.es == nil {
		return nil
	}

	templateName := c.indexPrefix + "-template"
	template := map[string]interface{}{
		"index_patterns": []string{c.indexPrefix + "-*"},
		"template": map[string]interface{}{
			"settings": map[string]interface{}{
				"number_of_shards":   1,
				"number_of_replicas": 1,
				"refresh_interval":   "5s",
			},
			"mappings": map[string]interface{}{
				"properties": map[string]interface{}{
					"monitor_id":      map[string]string{"type": "integer"},
					"monitor_name":    map[string]string{"type": "keyword"},
					"url":             map[string]string{"type": "keyword"},
					"method":          map[string]string{"type": "keyword"},
					"status":          map[string]string{"type": "keyword"},
					"response_time":   map[string]string{"type": "long"},
					"status_code":     map[string]string{"type": "integer"},
					"expected_status": map[string]string{"type": "integer"},
					"error":           map[string]string{"type": "text"},
					"owner_id":        map[string]string{"type": "integer"},
					"@timestamp":      map[string]string{"type": "date"},
				},
			},
		},
	}

	body, err := json.Marshal(template)
	if err != nil {
		return fmt.Errorf("failed to marshal index template: %w", err)
	}

	req := esapi.IndicesPutIndexTemplateRequest{
		Name: templateName,
		Body: bytes.NewReader(body),
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("failed to create index template: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch template error: %s", res.String())
	}
	logger.Info("Index template created", zap.String("template", templateName))
	return nil
}
