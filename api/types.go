package api

import (
	"github.com/hupe1980/hnswfield"
	"github.com/hupe1980/hnswfield/metadata"
	"github.com/hupe1980/hnswfield/model"
	"github.com/hupe1980/hnswfield/registry"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string   `json:"status"`
	Fields []string `json:"fields"`
}

// InsertRequest adds one vector. Exactly one of Vector and Text is set.
type InsertRequest struct {
	Vector     []float32         `json:"vector,omitempty"`
	Text       string            `json:"text,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	Attributes metadata.Document `json:"attributes,omitempty"`
}

// InsertResponse returns the ID of an inserted vector.
type InsertResponse struct {
	ID model.ID `json:"id"`
}

// VectorResponse is returned by GET /fields/{field}/vectors/{id}.
type VectorResponse struct {
	ID         model.ID          `json:"id"`
	Vector     []float32         `json:"vector"`
	Fields     map[string]string `json:"fields,omitempty"`
	Attributes metadata.Document `json:"attributes,omitempty"`
}

// SearchRequest queries one field. Exactly one of Vector and Text is set.
type SearchRequest struct {
	Vector         []float32         `json:"vector,omitempty"`
	Text           string            `json:"text,omitempty"`
	K              int               `json:"k"`
	EF             int               `json:"ef,omitempty"`
	Mode           string            `json:"mode,omitempty"`
	Filters        []metadata.Filter `json:"filters,omitempty"`
	WithoutRecords bool              `json:"without_records,omitempty"`
}

// Hit is one search result.
type Hit struct {
	ID         model.ID          `json:"id"`
	Distance   float32           `json:"distance"`
	Fields     map[string]string `json:"fields,omitempty"`
	Attributes metadata.Document `json:"attributes,omitempty"`
}

// SearchResponse lists the hits closest first.
type SearchResponse struct {
	Hits   []Hit  `json:"hits"`
	Status string `json:"status"`
	Path   string `json:"path"`
	Rounds int    `json:"rounds"`
}

// NewSearchResponse converts a database search response.
func NewSearchResponse(resp *hnswfield.SearchResponse) SearchResponse {
	out := SearchResponse{
		Hits:   make([]Hit, len(resp.Hits)),
		Status: resp.Status.String(),
		Path:   resp.Path.String(),
		Rounds: resp.Rounds,
	}
	for i, h := range resp.Hits {
		out.Hits[i] = Hit{ID: h.ID, Distance: h.Distance}
		if h.Record != nil {
			out.Hits[i].Fields = h.Record.Fields
			out.Hits[i].Attributes = h.Record.Attributes
		}
	}
	return out
}

// FieldResponse describes one field.
type FieldResponse struct {
	Name       string               `json:"name"`
	Config     registry.FieldConfig `json:"config"`
	Dimension  int                  `json:"dimension"`
	Vectors    int                  `json:"vectors"`
	MaxLevel   int                  `json:"max_level"`
	Attributes int                  `json:"attribute_keys"`
}

// NewFieldResponse converts database field statistics.
func NewFieldResponse(st hnswfield.FieldStats) FieldResponse {
	return FieldResponse{
		Name:       st.Field,
		Config:     st.Config,
		Dimension:  st.Dimension,
		Vectors:    st.Vectors,
		MaxLevel:   st.Graph.MaxLevel,
		Attributes: st.Attributes.Keys,
	}
}

// SaveResponse is returned by POST /save.
type SaveResponse struct {
	Manifest uint64 `json:"manifest"`
	Fields   int    `json:"fields"`
}

// ErrorResponse carries an error message.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
