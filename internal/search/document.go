package search

import (
	pb "github.com/qdrant/go-client/qdrant"
)

// Document is the denormalized projection of a catalog entry held in the
// index. It is never the source of truth: query results carry only enough to
// recover product identifiers and relevance order, and every hit must be
// resolved back to the catalog before it reaches a caller.
type Document struct {
	ProductID    string   `json:"product_id"`
	StoreID      string   `json:"store_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Keywords     []string `json:"keywords"`
	CategoryID   string   `json:"category_id"`
	CategoryName string   `json:"category_name"`
	Price        float64  `json:"price"`
	Popularity   int64    `json:"popularity"`
	Featured     bool     `json:"featured"`
	CreatedAt    int64    `json:"created_at"`
}

// Hit is one ranked search result from the index.
type Hit struct {
	ProductID string
	Score     float32
}

func (d *Document) payload() map[string]*pb.Value {
	return map[string]*pb.Value{
		"product_id":    {Kind: &pb.Value_StringValue{StringValue: d.ProductID}},
		"store_id":      {Kind: &pb.Value_StringValue{StringValue: d.StoreID}},
		"name":          {Kind: &pb.Value_StringValue{StringValue: d.Name}},
		"description":   {Kind: &pb.Value_StringValue{StringValue: d.Description}},
		"keywords":      keywordsToValue(d.Keywords),
		"category_id":   {Kind: &pb.Value_StringValue{StringValue: d.CategoryID}},
		"category_name": {Kind: &pb.Value_StringValue{StringValue: d.CategoryName}},
		"price":         {Kind: &pb.Value_DoubleValue{DoubleValue: d.Price}},
		"popularity":    {Kind: &pb.Value_IntegerValue{IntegerValue: d.Popularity}},
		"featured":      {Kind: &pb.Value_BoolValue{BoolValue: d.Featured}},
		"created_at":    {Kind: &pb.Value_IntegerValue{IntegerValue: d.CreatedAt}},
	}
}

func keywordsToValue(keywords []string) *pb.Value {
	values := make([]*pb.Value, len(keywords))
	for i, k := range keywords {
		values[i] = &pb.Value{Kind: &pb.Value_StringValue{StringValue: k}}
	}
	return &pb.Value{
		Kind: &pb.Value_ListValue{
			ListValue: &pb.ListValue{Values: values},
		},
	}
}

func parsePayload(payload map[string]*pb.Value) *Document {
	if payload == nil {
		return nil
	}

	d := &Document{}
	if v, ok := payload["product_id"]; ok {
		d.ProductID = v.GetStringValue()
	}
	if v, ok := payload["store_id"]; ok {
		d.StoreID = v.GetStringValue()
	}
	if v, ok := payload["name"]; ok {
		d.Name = v.GetStringValue()
	}
	if v, ok := payload["description"]; ok {
		d.Description = v.GetStringValue()
	}
	if v, ok := payload["keywords"]; ok {
		if list := v.GetListValue(); list != nil {
			for _, item := range list.Values {
				d.Keywords = append(d.Keywords, item.GetStringValue())
			}
		}
	}
	if v, ok := payload["category_id"]; ok {
		d.CategoryID = v.GetStringValue()
	}
	if v, ok := payload["category_name"]; ok {
		d.CategoryName = v.GetStringValue()
	}
	if v, ok := payload["price"]; ok {
		d.Price = v.GetDoubleValue()
	}
	if v, ok := payload["popularity"]; ok {
		d.Popularity = v.GetIntegerValue()
	}
	if v, ok := payload["featured"]; ok {
		d.Featured = v.GetBoolValue()
	}
	if v, ok := payload["created_at"]; ok {
		d.CreatedAt = v.GetIntegerValue()
	}
	return d
}
