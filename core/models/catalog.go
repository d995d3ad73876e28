package models

// CatalogItem is a pre-built product asset listed by the catalog endpoint.
// Path fields hold either public object URLs or bare object keys; the API
// replaces them with presigned URLs before returning them.
type CatalogItem struct {
	ID             string  `dynamodbav:"id" json:"id"`
	Name           string  `dynamodbav:"name" json:"name"`
	Description    string  `dynamodbav:"description" json:"description"`
	Price          float64 `dynamodbav:"price" json:"price"`
	Category       string  `dynamodbav:"category" json:"category"`
	ModelPath      string  `dynamodbav:"modelPath" json:"modelPath"`
	IOSModelPath   string  `dynamodbav:"iosModelPath" json:"iosModelPath"`
	PosterPath     string  `dynamodbav:"posterPath" json:"posterPath"`
	Dimensions     string  `dynamodbav:"dimensions" json:"dimensions"`
	Material       string  `dynamodbav:"material" json:"material"`
	Color          string  `dynamodbav:"color" json:"color"`
	IsNew          bool    `dynamodbav:"isNew" json:"isNew,omitempty"`
	IsCustomizable bool    `dynamodbav:"isCustomizable" json:"isCustomizable,omitempty"`
}

// CatalogPage is one page of a catalog scan.
type CatalogPage struct {
	Items   []CatalogItem
	LastKey string // Opaque cursor, empty on the last page
}
