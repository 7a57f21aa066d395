package services

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/TFMV/dwgate/pkg/dialects"
	"github.com/TFMV/dwgate/pkg/errors"
	"github.com/TFMV/dwgate/pkg/infrastructure/metrics"
	"github.com/TFMV/dwgate/pkg/infrastructure/pool"
	"github.com/TFMV/dwgate/pkg/models"
)

// NoPlatformsMessage is returned by ListPlatforms when nothing is configured.
const NoPlatformsMessage = "No platforms configured. Set environment variables for connections."

// ConfigurationEnvVars names the variable forms that configure instances.
var ConfigurationEnvVars = []string{
	"MAXCOMPUTE_CONNECTION",
	"HOLOGRES_CONNECTION",
	"MYSQL_CONNECTION",
	"POLARDB_CONNECTION",
	"REDSHIFT_CONNECTION",
	"{KIND}_{REGION}_{PROJECT}_{PARAM}",
}

// PlatformDetail describes one configured instance.
type PlatformDetail struct {
	Platform    string              `json:"platform"`
	Kind        models.PlatformKind `json:"kind"`
	Name        string              `json:"name"`
	Type        string              `json:"type"`
	Description string              `json:"description"`
	Target      string              `json:"target"`
}

// PlatformListing is the list_platforms document.
type PlatformListing struct {
	AvailablePlatforms []string            `json:"available_platforms"`
	ByKind             map[string][]string `json:"by_kind,omitempty"`
	Details            []PlatformDetail    `json:"details,omitempty"`
	Message            string              `json:"message,omitempty"`
	EnvVars            []string            `json:"env_vars,omitempty"`
}

// ExampleListing is the get_example_queries document.
type ExampleListing struct {
	Platform string                `json:"platform"`
	Examples []models.ExampleQuery `json:"examples"`
}

// SchemaCache stores introspection results per instance and schema.
type SchemaCache interface {
	Get(key pool.CatalogKey) ([]models.Schema, bool)
	Put(key pool.CatalogKey, schemas []models.Schema)
}

// ToolServiceConfig tunes the tool service.
type ToolServiceConfig struct {
	// SchemaTimeout bounds one schema introspection.
	SchemaTimeout time.Duration
	// DefaultLimit is the LIMIT validate_query appends to unbounded reads.
	DefaultLimit int
}

// toolService implements ToolService.
type toolService struct {
	resolver   InstanceResolver
	executor   QueryExecutor
	catalog    *dialects.Catalog
	cache      SchemaCache
	classifier *StatementClassifier
	gate       *SafetyGate
	rewriter   *QueryRewriter
	logger     Logger
	metrics    MetricsCollector
	cfg        ToolServiceConfig
}

// NewToolService creates the tool service. cache may be nil to disable
// schema caching.
func NewToolService(
	resolver InstanceResolver,
	executor QueryExecutor,
	catalog *dialects.Catalog,
	cache SchemaCache,
	logger Logger,
	collector MetricsCollector,
	cfg ToolServiceConfig,
) ToolService {
	if cfg.SchemaTimeout <= 0 {
		cfg.SchemaTimeout = DefaultQueryTimeout
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = models.DefaultRowCap
	}
	return &toolService{
		resolver:   resolver,
		executor:   executor,
		catalog:    catalog,
		cache:      cache,
		classifier: NewStatementClassifier(),
		gate:       NewSafetyGate(),
		rewriter:   NewQueryRewriter(),
		logger:     logger,
		metrics:    collector,
		cfg:        cfg,
	}
}

// ListPlatforms lists the configured instances with their catalog entries.
func (s *toolService) ListPlatforms(ctx context.Context) (*PlatformListing, error) {
	ids := s.resolver.ListInstances(nil)
	if len(ids) == 0 {
		return &PlatformListing{
			AvailablePlatforms: []string{},
			Message:            NoPlatformsMessage,
			EnvVars:            append([]string(nil), ConfigurationEnvVars...),
		}, nil
	}

	listing := &PlatformListing{
		AvailablePlatforms: ids,
		ByKind:             make(map[string][]string),
	}
	for _, id := range ids {
		cfg, ok := s.resolver.Instance(id)
		if !ok {
			continue
		}
		kind := cfg.Kind.Canonical().String()
		listing.ByKind[kind] = append(listing.ByKind[kind], id)

		detail := PlatformDetail{Platform: id, Kind: cfg.Kind, Target: cfg.Target()}
		if info, err := s.catalog.Describe(cfg.Kind); err == nil {
			detail.Name = info.Name
			detail.Type = info.Type
			detail.Description = info.Description
		}
		listing.Details = append(listing.Details, detail)
	}
	return listing, nil
}

// GetPlatformInfo accepts a configured instance id or a kind name.
func (s *toolService) GetPlatformInfo(ctx context.Context, platform string) (*models.PlatformInfo, error) {
	kind, err := s.kindOf(platform)
	if err != nil {
		return nil, err
	}
	info, err := s.catalog.Describe(kind)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// ExecuteQuery delegates to the executor.
func (s *toolService) ExecuteQuery(ctx context.Context, req *models.QueryRequest) (*models.QueryResult, error) {
	return s.executor.Execute(ctx, req)
}

// ValidateQuery runs the classifier, gate and rewriter without touching any
// instance.
func (s *toolService) ValidateQuery(ctx context.Context, query string, allowDestructive bool) (*models.ValidationResult, error) {
	verdict := s.classifier.Classify(query)
	result := &models.ValidationResult{
		Category:       verdict.Category.String(),
		HasBoundClause: verdict.HasBoundClause,
		OriginalQuery:  query,
	}

	if strings.TrimSpace(query) == "" {
		result.Message = "Empty query"
		return result, nil
	}
	if err := s.gate.Authorize(verdict, allowDestructive); err != nil {
		result.Message = errors.GetMessage(err)
		return result, nil
	}

	processed, err := s.rewriter.Rewrite(query, verdict, s.cfg.DefaultLimit)
	if err != nil {
		result.Message = errors.GetMessage(err)
		return result, nil
	}

	result.Valid = true
	result.Message = "Query validated successfully"
	result.ProcessedQuery = processed
	return result, nil
}

// GetSchemaInfo introspects an instance, serving repeated lookups from the
// cache until they expire.
func (s *toolService) GetSchemaInfo(ctx context.Context, platform, schema string) (*models.SchemaInfo, error) {
	cfg, ok := s.resolver.Instance(platform)
	if !ok {
		return nil, errors.UnknownPlatform(platform)
	}

	key := pool.CatalogKey{Instance: platform, Schema: schema}
	if s.cache != nil {
		if schemas, hit := s.cache.Get(key); hit {
			s.metrics.IncrementCounter(metrics.SchemaCacheLookups, "result", "hit")
			return &models.SchemaInfo{Instance: platform, Kind: cfg.Kind, Schemas: schemas}, nil
		}
		s.metrics.IncrementCounter(metrics.SchemaCacheLookups, "result", "miss")
	}

	backend, err := s.resolver.Resolve(ctx, platform)
	if err != nil {
		return nil, err
	}

	schemaCtx, cancel := context.WithTimeout(ctx, s.cfg.SchemaTimeout)
	defer cancel()

	start := time.Now()
	schemas, err := backend.Schema(schemaCtx, schema)
	if err != nil {
		s.logger.Error("Schema introspection failed", "instance", platform, "schema", schema, "error", err)
		return nil, err
	}
	if schemas == nil {
		schemas = []models.Schema{}
	}
	s.logger.Debug("Schema introspected",
		"instance", platform,
		"schema", schema,
		"schemas", len(schemas),
		"duration", time.Since(start))

	if s.cache != nil {
		s.cache.Put(key, schemas)
	}
	return &models.SchemaInfo{Instance: platform, Kind: cfg.Kind, Schemas: schemas}, nil
}

// GetExampleQueries accepts a configured instance id or a kind name.
func (s *toolService) GetExampleQueries(ctx context.Context, platform string) (*ExampleListing, error) {
	kind, err := s.kindOf(platform)
	if err != nil {
		return nil, err
	}
	examples, err := s.catalog.Examples(kind)
	if err != nil {
		return nil, err
	}
	return &ExampleListing{Platform: platform, Examples: examples}, nil
}

// kindOf resolves a configured instance id first, then a kind name.
func (s *toolService) kindOf(platform string) (models.PlatformKind, error) {
	if cfg, ok := s.resolver.Instance(platform); ok {
		return cfg.Kind, nil
	}
	kind, err := models.ParsePlatformKind(platform)
	if err != nil {
		return "", errors.UnknownPlatform(platform)
	}
	return kind, nil
}

// SortedKinds returns the keys of a ByKind map in order.
func SortedKinds(byKind map[string][]string) []string {
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
