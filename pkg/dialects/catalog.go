// Package dialects holds the static per-platform catalog: descriptions,
// dialect notes and canned example queries.
package dialects

import (
	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/models"
)

type entry struct {
	info     models.PlatformInfo
	examples []models.ExampleQuery
}

// Catalog is a read-only lookup table keyed by canonical PlatformKind.
type Catalog struct {
	entries map[models.PlatformKind]entry
}

// NewCatalog returns the built-in catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: builtin()}
}

// Describe returns the PlatformInfo for kind. DATAWORKS resolves to MAXCOMPUTE.
func (c *Catalog) Describe(kind models.PlatformKind) (models.PlatformInfo, error) {
	e, ok := c.entries[kind.Canonical()]
	if !ok {
		return models.PlatformInfo{}, errors.UnknownPlatform(string(kind))
	}
	info := e.info
	info.UseCases = cloneStrings(e.info.UseCases)
	info.Features = cloneStrings(e.info.Features)
	info.CommonFunctions = cloneStrings(e.info.CommonFunctions)
	info.BestPractices = cloneStrings(e.info.BestPractices)
	return info, nil
}

// Examples returns the example queries for kind.
func (c *Catalog) Examples(kind models.PlatformKind) ([]models.ExampleQuery, error) {
	e, ok := c.entries[kind.Canonical()]
	if !ok {
		return nil, errors.UnknownPlatform(string(kind))
	}
	return append([]models.ExampleQuery(nil), e.examples...), nil
}

// Lookup accepts a kind name or alias in any case.
func (c *Catalog) Lookup(name string) (models.PlatformInfo, error) {
	kind, err := models.ParsePlatformKind(name)
	if err != nil {
		return models.PlatformInfo{}, err
	}
	return c.Describe(kind)
}

// Kinds lists the kinds the catalog knows about.
func (c *Catalog) Kinds() []models.PlatformKind {
	out := make([]models.PlatformKind, 0, len(models.AllKinds))
	for _, k := range models.AllKinds {
		if _, ok := c.entries[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

func cloneStrings(in []string) []string {
	return append([]string(nil), in...)
}

func builtin() map[models.PlatformKind]entry {
	return map[models.PlatformKind]entry{
		models.KindMaxCompute: {
			info: models.PlatformInfo{
				Kind:        models.KindMaxCompute,
				Name:        "MaxCompute",
				Type:        "Offline Data Warehouse",
				Description: "Alibaba Cloud MaxCompute for offline DW tables and batch processing",
				Dialect:     "MaxCompute SQL (similar to Hive)",
				UseCases:    []string{"Offline analytics", "Batch processing", "Data warehouse"},
				Features:    []string{"Partitioned tables", "Distributed processing", "UDF support", "Cost-based optimization"},
				CommonFunctions: []string{
					"WCOUNT() - Word count",
					"GET_JSON_OBJECT() - Parse JSON",
					"CONCAT_WS() - Concatenate with separator",
					"TO_DATE() - Date conversion",
				},
				BestPractices: []string{
					"Always filter on the partition column (for example ds) to avoid full scans",
					"Queries are billed by bytes scanned; select only the columns you need",
					"Jobs are batch scheduled, so expect seconds of latency even for small results",
				},
			},
			examples: []models.ExampleQuery{
				{Description: "List all tables in a project", Query: "SHOW TABLES;"},
				{Description: "Describe table structure", Query: "DESC table_name;"},
				{Description: "Query with partition", Query: "SELECT * FROM table_name WHERE ds='20240101' LIMIT 10;"},
				{Description: "Count rows in table", Query: "SELECT COUNT(*) as row_count FROM table_name;"},
			},
		},
		models.KindHologres: {
			info: models.PlatformInfo{
				Kind:            models.KindHologres,
				Name:            "Hologres",
				Type:            "Real-time Analytics",
				Description:     "Alibaba Cloud Hologres for real-time analytics and OLAP",
				Dialect:         "PostgreSQL-compatible",
				UseCases:        []string{"Real-time analytics", "OLAP", "Interactive queries"},
				Features:        []string{"PostgreSQL compatible", "Real-time data serving", "High-performance queries", "Row and column storage"},
				CommonFunctions: []string{"Standard PostgreSQL functions", "Window functions", "JSON functions", "Array functions"},
				BestPractices: []string{
					"Use information_schema and pg_tables for metadata instead of SHOW",
					"Prefer column-store tables for aggregations and row-store for point lookups",
					"Filter on the segment or clustering key to benefit from pruning",
				},
			},
			examples: []models.ExampleQuery{
				{Description: "List all tables in schema", Query: "SELECT tablename FROM pg_tables WHERE schemaname='public';"},
				{Description: "Describe table columns", Query: "SELECT column_name, data_type FROM information_schema.columns WHERE table_name='table_name';"},
				{Description: "Sample data from table", Query: "SELECT * FROM table_name LIMIT 10;"},
				{Description: "Aggregate query", Query: "SELECT category, COUNT(*) as cnt FROM table_name GROUP BY category LIMIT 100;"},
			},
		},
		models.KindMySQL: {
			info: models.PlatformInfo{
				Kind:        models.KindMySQL,
				Name:        "MySQL",
				Type:        "Source System",
				Description: "MySQL database for source systems and transactional data",
				Dialect:     "MySQL",
				UseCases:    []string{"OLTP", "Application databases", "Source data"},
				Features:    []string{"ACID transactions", "Stored procedures", "Triggers", "Full-text search"},
				CommonFunctions: []string{
					"NOW() - Current timestamp",
					"CONCAT() - String concatenation",
					"DATE_FORMAT() - Format dates",
					"IFNULL() - Null handling",
				},
				BestPractices: []string{
					"This is a production source system; keep queries small and indexed",
					"Use EXPLAIN before running joins over large tables",
				},
			},
			examples: []models.ExampleQuery{
				{Description: "Show all tables", Query: "SHOW TABLES;"},
				{Description: "Describe table structure", Query: "DESCRIBE table_name;"},
				{Description: "Sample recent data", Query: "SELECT * FROM table_name ORDER BY created_at DESC LIMIT 10;"},
				{Description: "Count by category", Query: "SELECT category, COUNT(*) as count FROM table_name GROUP BY category;"},
			},
		},
		models.KindPolarDB: {
			info: models.PlatformInfo{
				Kind:            models.KindPolarDB,
				Name:            "PolarDB",
				Type:            "Source System",
				Description:     "Alibaba Cloud PolarDB for MySQL-compatible source systems",
				Dialect:         "MySQL-compatible",
				UseCases:        []string{"OLTP", "High-performance databases", "Source data"},
				Features:        []string{"MySQL compatible", "High performance", "Distributed storage", "Read replicas"},
				CommonFunctions: []string{"MySQL-compatible functions", "JSON functions", "Full-text search", "GIS functions"},
				BestPractices: []string{
					"Point analytical reads at a read-only endpoint when one is available",
					"Keep queries small and indexed; this is a source system",
				},
			},
			examples: []models.ExampleQuery{
				{Description: "Show databases", Query: "SHOW DATABASES;"},
				{Description: "Show tables", Query: "SHOW TABLES;"},
				{Description: "Table structure", Query: "SHOW CREATE TABLE table_name;"},
				{Description: "Recent records", Query: "SELECT * FROM table_name ORDER BY id DESC LIMIT 10;"},
			},
		},
		models.KindRedshift: {
			info: models.PlatformInfo{
				Kind:        models.KindRedshift,
				Name:        "Redshift",
				Type:        "Regional Data Warehouse",
				Description: "AWS Redshift for EU data and regional analytics",
				Dialect:     "PostgreSQL-based",
				UseCases:    []string{"Data warehouse", "Regional analytics", "EU data"},
				Features:    []string{"Columnar storage", "Massively parallel processing", "Distribution keys", "Sort keys"},
				CommonFunctions: []string{
					"LISTAGG() - String aggregation",
					"MEDIAN() - Median calculation",
					"PERCENTILE_CONT() - Percentiles",
					"JSON_EXTRACT_PATH_TEXT() - JSON parsing",
				},
				BestPractices: []string{
					"Filter on sort keys and join on distribution keys",
					"Use pg_table_def to inspect distribution and sort keys",
				},
			},
			examples: []models.ExampleQuery{
				{Description: "List tables in schema", Query: "SELECT tablename FROM pg_tables WHERE schemaname='public';"},
				{Description: "Table column details", Query: "SELECT * FROM information_schema.columns WHERE table_name='table_name' LIMIT 100;"},
				{Description: "Distribution and sort keys", Query: "SELECT * FROM pg_table_def WHERE tablename='table_name';"},
				{Description: "Sample data", Query: "SELECT * FROM table_name LIMIT 10;"},
			},
		},
	}
}
