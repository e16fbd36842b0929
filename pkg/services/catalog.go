package services

import (
	"context"
	"errors"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-discover/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-discover/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-discover/pkg/filter"
	"github.com/ekaya-inc/ekaya-discover/pkg/logging"
	"github.com/ekaya-inc/ekaya-discover/pkg/models"
)

// TagFilter restricts enumeration to objects at Level carrying one of Tags.
type TagFilter struct {
	Level datasource.TagLevel
	Tags  []string
}

// TableQuery selects the tables to scan.
type TableQuery struct {
	Catalogs  filter.Filter
	Databases filter.Filter
	Tables    filter.Filter
	Tags      *TagFilter
}

// CatalogService enumerates tables across every configured datasource.
type CatalogService interface {
	// ListTables returns the matching readable tables sorted by catalog, database and table,
	// with columns in ordinal order. Objects that cannot be read are logged and skipped.
	ListTables(ctx context.Context, q TableQuery) ([]models.TableInfo, error)

	// DatabaseExists reports whether database exists in catalog.
	DatabaseExists(ctx context.Context, catalog, database string) (bool, error)
}

type catalogService struct {
	datasources DatasourceService
	logger      *zap.Logger
}

// NewCatalogService creates a CatalogService over datasources.
func NewCatalogService(datasources DatasourceService, logger *zap.Logger) CatalogService {
	return &catalogService{
		datasources: datasources,
		logger:      logger.Named("catalog"),
	}
}

var _ CatalogService = (*catalogService)(nil)

type tableKey struct{ schema, table string }

// tagSelection is the result of resolving a TagFilter against one catalog.
type tagSelection struct {
	schemas map[string]bool
	tables  map[tableKey]bool
	columns map[tableKey]map[string]bool
}

func (s *catalogService) ListTables(ctx context.Context, q TableQuery) ([]models.TableInfo, error) {
	var tables []models.TableInfo

	for _, ds := range s.datasources.List() {
		if !q.Catalogs.Match(ds.Name) {
			continue
		}
		found, err := s.listCatalog(ctx, ds, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("Skipping catalog",
				zap.String("catalog", ds.Name),
				zap.String("error", logging.SanitizeError(err)))
			continue
		}
		tables = append(tables, found...)
	}

	sort.SliceStable(tables, func(i, j int) bool {
		a, b := tables[i], tables[j]
		if a.Catalog != b.Catalog {
			return a.Catalog < b.Catalog
		}
		if a.Database != b.Database {
			return a.Database < b.Database
		}
		return a.Table < b.Table
	})

	s.logger.Debug("Enumerated tables", zap.Int("count", len(tables)))
	return tables, nil
}

func (s *catalogService) listCatalog(ctx context.Context, ds *models.Datasource, q TableQuery) ([]models.TableInfo, error) {
	reader, err := s.datasources.CatalogReader(ctx, ds.Name)
	if err != nil {
		return nil, &apperrors.CatalogAccessError{Object: ds.Name, Err: err}
	}
	defer reader.Close()

	var sel *tagSelection
	if q.Tags != nil && len(q.Tags.Tags) > 0 {
		sel, err = s.resolveTags(ctx, reader, ds, q.Tags)
		if err != nil {
			return nil, &apperrors.CatalogAccessError{Object: ds.Name, Err: err}
		}
		if sel == nil {
			return nil, nil
		}
	}

	entries, err := reader.ListTables(ctx)
	if err != nil {
		return nil, &apperrors.CatalogAccessError{Object: ds.Name, Err: err}
	}

	var out []models.TableInfo
	for _, e := range entries {
		if !q.Databases.Match(e.SchemaName) || !q.Tables.Match(e.TableName) {
			continue
		}
		ref := models.TableRef{Catalog: ds.Name, Database: e.SchemaName, Table: e.TableName}
		key := tableKey{e.SchemaName, e.TableName}

		if sel != nil {
			if sel.schemas != nil && !sel.schemas[e.SchemaName] {
				continue
			}
			if sel.tables != nil && !sel.tables[key] {
				continue
			}
			if sel.columns != nil && sel.columns[key] == nil {
				continue
			}
		}

		if !e.Readable {
			s.logger.Info("Skipping table without SELECT permission", zap.String("table", ref.String()))
			continue
		}

		cols, err := reader.ListColumns(ctx, e.SchemaName, e.TableName)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			accessErr := &apperrors.CatalogAccessError{Object: ref.String(), Err: err}
			s.logger.Warn("Skipping table", zap.String("error", logging.SanitizeError(accessErr)))
			continue
		}

		info := models.TableInfo{
			Catalog:  ds.Name,
			Database: e.SchemaName,
			Table:    e.TableName,
			Tags:     e.Tags,
		}
		for _, c := range cols {
			if sel != nil && sel.columns != nil && !sel.columns[key][c.ColumnName] {
				continue
			}
			info.Columns = append(info.Columns, models.ColumnInfo{
				Catalog:         ds.Name,
				Database:        e.SchemaName,
				Table:           e.TableName,
				Name:            c.ColumnName,
				DataType:        c.DataType,
				OrdinalPosition: c.OrdinalPosition,
				IsNullable:      c.IsNullable,
				Tags:            c.Tags,
			})
		}
		sort.SliceStable(info.Columns, func(i, j int) bool {
			return info.Columns[i].OrdinalPosition < info.Columns[j].OrdinalPosition
		})
		if len(info.Columns) == 0 {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// resolveTags returns nil (and no error) when the whole catalog is excluded.
func (s *catalogService) resolveTags(ctx context.Context, reader datasource.CatalogReader, ds *models.Datasource, tf *TagFilter) (*tagSelection, error) {
	if tf.Level == datasource.TagLevelCatalog && datasource.HasAnyTag(normalizeTags(ds.Tags), tf.Tags) {
		return &tagSelection{}, nil
	}

	objects, err := reader.ListTagged(ctx, tf.Level, tf.Tags)
	if err != nil {
		return nil, err
	}

	sel := &tagSelection{}
	switch tf.Level {
	case datasource.TagLevelCatalog:
		if len(objects) == 0 {
			return nil, nil
		}
	case datasource.TagLevelDatabase:
		sel.schemas = make(map[string]bool, len(objects))
		for _, o := range objects {
			sel.schemas[o.SchemaName] = true
		}
	case datasource.TagLevelTable:
		sel.tables = make(map[tableKey]bool, len(objects))
		for _, o := range objects {
			sel.tables[tableKey{o.SchemaName, o.TableName}] = true
		}
	case datasource.TagLevelColumn:
		sel.columns = make(map[tableKey]map[string]bool)
		for _, o := range objects {
			key := tableKey{o.SchemaName, o.TableName}
			if sel.columns[key] == nil {
				sel.columns[key] = make(map[string]bool)
			}
			sel.columns[key][o.ColumnName] = true
		}
	default:
		return nil, errors.New("unsupported tag level " + string(tf.Level))
	}
	return sel, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		out = append(out, strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "#")))
	}
	return out
}

func (s *catalogService) DatabaseExists(ctx context.Context, catalog, database string) (bool, error) {
	reader, err := s.datasources.CatalogReader(ctx, catalog)
	if err != nil {
		return false, err
	}
	defer reader.Close()
	return reader.DatabaseExists(ctx, database)
}
