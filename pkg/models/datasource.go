package models

// Datasource is one configured catalog. The Config field carries the adapter's
// connection settings (host, credentials, ...) and is never serialized.
type Datasource struct {
	Name           string         `json:"name"`
	DatasourceType string         `json:"datasource_type"` // "postgres", "mssql"
	Config         map[string]any `json:"-"`
	Tags           []string       `json:"tags,omitempty"`
}
