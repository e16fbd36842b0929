package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
	sqlpkg "github.com/ekaya-inc/ekaya-discover/pkg/sql"
)

const testCatalog = "warehouse"

func col(table, name, dataType string, pos int) models.ColumnInfo {
	return models.ColumnInfo{
		Catalog: testCatalog, Database: "public", Table: table,
		Name: name, DataType: dataType, OrdinalPosition: pos, IsNullable: true,
	}
}

func tableInfo(name string, cols ...models.ColumnInfo) models.TableInfo {
	return models.TableInfo{Catalog: testCatalog, Database: "public", Table: name, Columns: cols}
}

// fakeExecutor answers queries by finding the quoted table name in the SQL text.
// samples are returned for local evaluation, scanRows for pushdown queries.
type fakeExecutor struct {
	mu       sync.Mutex
	samples  map[string][]map[string]any
	scanRows map[string][]map[string]any
	fail     map[string]error
	block    map[string]bool
	queries  []string
	closed   int
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		samples:  map[string][]map[string]any{},
		scanRows: map[string][]map[string]any{},
		fail:     map[string]error{},
		block:    map[string]bool{},
	}
}

func (f *fakeExecutor) tableOf(query string) string {
	names := make([]string, 0)
	for _, m := range []map[string][]map[string]any{f.samples, f.scanRows} {
		for name := range m {
			names = append(names, name)
		}
	}
	for name := range f.fail {
		names = append(names, name)
	}
	for name := range f.block {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if strings.Contains(query, `."`+name+`"`) {
			return name
		}
	}
	return ""
}

func (f *fakeExecutor) Query(ctx context.Context, query string, limit int) (*datasource.QueryExecutionResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	table := f.tableOf(query)
	block := f.block[table]
	failErr := f.fail[table]
	var rows []map[string]any
	if strings.HasPrefix(query, "WITH ") {
		rows = f.scanRows[table]
	} else {
		rows = f.samples[table]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if failErr != nil {
		return nil, failErr
	}
	return &datasource.QueryExecutionResult{Rows: rows, RowCount: len(rows)}, nil
}

func (f *fakeExecutor) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeExecutor) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// fakeCatalogReader serves a fixed catalog.
type fakeCatalogReader struct {
	tables    []datasource.TableEntry
	columns   map[string][]datasource.ColumnEntry // key: schema.table
	columnErr map[string]error
	tagged    map[datasource.TagLevel][]datasource.TaggedObject
	listErr   error
}

func (r *fakeCatalogReader) ListTables(ctx context.Context) ([]datasource.TableEntry, error) {
	return r.tables, r.listErr
}

func (r *fakeCatalogReader) ListColumns(ctx context.Context, schemaName, tableName string) ([]datasource.ColumnEntry, error) {
	key := schemaName + "." + tableName
	if err := r.columnErr[key]; err != nil {
		return nil, err
	}
	return r.columns[key], nil
}

func (r *fakeCatalogReader) ListTagged(ctx context.Context, level datasource.TagLevel, tags []string) ([]datasource.TaggedObject, error) {
	var out []datasource.TaggedObject
	for _, o := range r.tagged[level] {
		if datasource.HasAnyTag(o.Tags, tags) {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r *fakeCatalogReader) DatabaseExists(ctx context.Context, schemaName string) (bool, error) {
	for _, t := range r.tables {
		if t.SchemaName == schemaName {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeCatalogReader) Close() error { return nil }

// fakeDatasources is a DatasourceService over in-memory readers and one shared executor.
type fakeDatasources struct {
	list    []*models.Datasource
	readers map[string]*fakeCatalogReader
	exec    *fakeExecutor
	openErr error
}

func newFakeDatasources(exec *fakeExecutor, names ...string) *fakeDatasources {
	f := &fakeDatasources{readers: map[string]*fakeCatalogReader{}, exec: exec}
	for _, n := range names {
		f.list = append(f.list, &models.Datasource{Name: n, DatasourceType: "postgres"})
		f.readers[n] = &fakeCatalogReader{columns: map[string][]datasource.ColumnEntry{}}
	}
	return f
}

func (f *fakeDatasources) List() []*models.Datasource { return f.list }

func (f *fakeDatasources) Get(name string) (*models.Datasource, error) {
	for _, ds := range f.list {
		if strings.EqualFold(ds.Name, name) {
			return ds, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatasource, name)
}

func (f *fakeDatasources) Dialect(name string) (sqlpkg.Dialect, error) {
	if _, err := f.Get(name); err != nil {
		return nil, err
	}
	return sqlpkg.DialectFor(sqlpkg.DialectPostgres)
}

func (f *fakeDatasources) CatalogReader(ctx context.Context, name string) (datasource.CatalogReader, error) {
	r, ok := f.readers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnknownDatasource, name)
	}
	return r, nil
}

func (f *fakeDatasources) QueryExecutor(ctx context.Context, name string) (datasource.QueryExecutor, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	if _, err := f.Get(name); err != nil {
		return nil, err
	}
	return f.exec, nil
}

func (f *fakeDatasources) TestConnection(ctx context.Context, name string) error {
	_, err := f.QueryExecutor(ctx, name)
	return err
}

var _ DatasourceService = (*fakeDatasources)(nil)
