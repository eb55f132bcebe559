package search

import (
	"fmt"
	"strings"

	"github.com/meilisearch/meilisearch-go"
)

// Document is the indexed form of a product's current version
type Document struct {
	ID              uint              `json:"id"`
	SK              int               `json:"sk"`
	ProductName     string            `json:"product_name"`
	Price           float64           `json:"price"`
	DiscountedPrice *float64          `json:"discounted_price,omitempty"`
	DiscountPercent *float64          `json:"discount_percent,omitempty"`
	ThumbImage      string            `json:"thumb_image,omitempty"`
	Images          []string          `json:"images,omitempty"`
	Specifications  map[string]string `json:"specifications,omitempty"`
	UpdatedOn       string            `json:"updated_on"`
}

type SearchClient struct {
	client *meilisearch.Client
	index  string
}

func NewSearchClient(host, apiKey, index string) *SearchClient {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})
	if index == "" {
		index = "products"
	}
	return &SearchClient{
		client: client,
		index:  index,
	}
}

// InitIndex creates the index and its attribute settings
func (s *SearchClient) InitIndex() error {
	_, err := s.client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        s.index,
		PrimaryKey: "id",
	})
	if err != nil && !strings.Contains(err.Error(), "index_already_exists") {
		return err
	}

	idx := s.client.Index(s.index)
	if _, err := idx.UpdateSearchableAttributes(&[]string{"product_name", "specifications"}); err != nil {
		return err
	}
	if _, err := idx.UpdateFilterableAttributes(&[]string{"id", "price", "discount_percent", "updated_on"}); err != nil {
		return err
	}
	if _, err := idx.UpdateSortableAttributes(&[]string{"price", "discount_percent", "updated_on"}); err != nil {
		return err
	}
	return nil
}

// IndexProducts adds or replaces documents by product id
func (s *SearchClient) IndexProducts(docs []Document) error {
	if len(docs) == 0 {
		return nil
	}
	if _, err := s.client.Index(s.index).AddDocuments(docs, "id"); err != nil {
		return fmt.Errorf("index %d products: %w", len(docs), err)
	}
	return nil
}

// SearchResult is one page of hits
type SearchResult struct {
	Hits           []Document
	TotalHits      int64
	ProcessingTime int64
}

// Search runs a query with optional filters
func (s *SearchClient) Search(params FilterParams) (*SearchResult, error) {
	req := &meilisearch.SearchRequest{
		Limit: params.limit(),
	}
	if filter := BuildFilter(params); filter != "" {
		req.Filter = filter
	}
	if sort := BuildSort(params.SortBy); sort != nil {
		req.Sort = sort
	}

	res, err := s.client.Index(s.index).Search(params.Query, req)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		if m, ok := hit.(map[string]interface{}); ok {
			docs = append(docs, parseHit(m))
		}
	}
	return &SearchResult{
		Hits:           docs,
		TotalHits:      res.EstimatedTotalHits,
		ProcessingTime: res.ProcessingTimeMs,
	}, nil
}

func parseHit(hit map[string]interface{}) Document {
	doc := Document{
		ProductName: getString(hit, "product_name"),
		ThumbImage:  getString(hit, "thumb_image"),
		UpdatedOn:   getString(hit, "updated_on"),
	}
	if id, ok := hit["id"].(float64); ok {
		doc.ID = uint(id)
	}
	if sk, ok := hit["sk"].(float64); ok {
		doc.SK = int(sk)
	}
	if price, ok := hit["price"].(float64); ok {
		doc.Price = price
	}
	if v, ok := hit["discounted_price"].(float64); ok {
		doc.DiscountedPrice = &v
	}
	if v, ok := hit["discount_percent"].(float64); ok {
		doc.DiscountPercent = &v
	}
	if images, ok := hit["images"].([]interface{}); ok {
		for _, img := range images {
			if s, ok := img.(string); ok {
				doc.Images = append(doc.Images, s)
			}
		}
	}
	if specs, ok := hit["specifications"].(map[string]interface{}); ok {
		doc.Specifications = make(map[string]string, len(specs))
		for k, v := range specs {
			if s, ok := v.(string); ok {
				doc.Specifications[k] = s
			}
		}
	}
	return doc
}

func getString(m map[string]interface{}, key string) string {
	if val, ok := m[key].(string); ok {
		return val
	}
	return ""
}
