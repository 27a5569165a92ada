package catalog

import (
	"context"
	"errors"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"earthgazer/internal/services"
)

// Row is one catalog result keyed by column name. Values carry BigQuery's
// native Go types: string, int64, float64, bool, time.Time or nil.
type Row map[string]any

// Client executes a rendered catalog statement.
type Client interface {
	Query(ctx context.Context, stmt Statement) ([]Row, error)
}

// BigQuery runs catalog statements as BigQuery jobs.
type BigQuery struct {
	client   *bigquery.Client
	location string
}

// NewBigQuery creates a BigQuery client billed to project. An empty
// credentials file falls back to application default credentials.
func NewBigQuery(ctx context.Context, project, location, credentialsFile string) (*BigQuery, error) {
	if project == "" {
		project = bigquery.DetectProjectID
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := bigquery.NewClient(ctx, project, opts...)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "catalog", "bigquery client", "create client", err)
	}
	return &BigQuery{client: client, location: location}, nil
}

// Close releases the underlying client.
func (b *BigQuery) Close() error {
	return b.client.Close()
}

func (b *BigQuery) Query(ctx context.Context, stmt Statement) ([]Row, error) {
	q := b.client.Query(stmt.Text)
	for _, p := range stmt.Params {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Name: p.Name, Value: p.Value})
	}
	if b.location != "" {
		q.Location = b.location
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, services.Wrap(services.ErrCatalogQuery, "catalog", "run query", "bigquery job failed", err)
	}
	var rows []Row
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, services.Wrap(services.ErrCatalogQuery, "catalog", "read rows", "bigquery iteration failed", err)
		}
		row := make(Row, len(values))
		for key, value := range values {
			row[key] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}
