package dremio

import (
	"strings"

	qlerrors "github.com/querylens/querylens/pkg/errors"
)

// Dialect identifies one of the two incompatible API shapes exposed by
// the engine's deployment modes.
type Dialect string

const (
	// DialectLegacy is the on-prem REST dialect with direct listing
	// endpoints under /api/v3.
	DialectLegacy Dialect = "legacy"
	// DialectCloud is the hosted dialect with project-scoped paths and
	// SQL-over-HTTP job submission.
	DialectCloud Dialect = "cloud"
)

// Operation names one logical gateway operation. Each maps to at most
// one endpoint per dialect.
type Operation string

const (
	OpSubmitSQL      Operation = "submit_sql"
	OpJobStatus      Operation = "job_status"
	OpJobResults     Operation = "job_results"
	OpQueryHistory   Operation = "query_history"
	OpQueryProfile   Operation = "query_profile"
	OpReflections    Operation = "reflections"
	OpReflectionByID Operation = "reflection_by_id"
	OpCatalogRoot    Operation = "catalog_root"
	OpCatalogByID    Operation = "catalog_by_id"
	OpDatasetByPath  Operation = "dataset_by_path"
	OpSearchDatasets Operation = "search_datasets"
	OpJobStats       Operation = "job_stats"
	OpSystemInfo     Operation = "system_info"
)

// Params carries the path parameters an operation may need.
type Params struct {
	// ID is a job, reflection, or catalog entity id
	ID string
	// Path is a slash-joined dataset path
	Path string
}

// endpointTable is the strategy table mapping (operation, dialect) to a
// path template. Templates use {project}, {id}, and {path}
// placeholders. A missing entry means the dialect has no direct
// endpoint for that operation.
//
// Notably absent: query_history on cloud (reconstructed via a system
// query driven through the job poller), submit_sql and job polling on
// legacy, and system_info on cloud (substituted by a catalog probe).
var endpointTable = map[Operation]map[Dialect]string{
	OpSubmitSQL: {
		DialectCloud: "/v0/projects/{project}/sql",
	},
	OpJobStatus: {
		DialectCloud: "/v0/projects/{project}/job/{id}",
	},
	OpJobResults: {
		DialectCloud: "/v0/projects/{project}/job/{id}/results",
	},
	OpQueryHistory: {
		DialectLegacy: "/api/v3/job",
	},
	OpQueryProfile: {
		DialectLegacy: "/api/v3/job/{id}",
		DialectCloud:  "/v0/projects/{project}/job/{id}",
	},
	OpReflections: {
		DialectLegacy: "/api/v3/reflection",
		DialectCloud:  "/v0/projects/{project}/reflection",
	},
	OpReflectionByID: {
		DialectLegacy: "/api/v3/reflection/{id}",
		DialectCloud:  "/v0/projects/{project}/reflection/{id}",
	},
	OpCatalogRoot: {
		DialectLegacy: "/api/v3/catalog",
		DialectCloud:  "/v0/projects/{project}/catalog",
	},
	OpCatalogByID: {
		DialectLegacy: "/api/v3/catalog/{id}",
		DialectCloud:  "/v0/projects/{project}/catalog/{id}",
	},
	OpDatasetByPath: {
		DialectLegacy: "/api/v3/catalog/by-path/{path}",
		DialectCloud:  "/v0/projects/{project}/catalog/by-path/{path}",
	},
	OpSearchDatasets: {
		DialectLegacy: "/api/v3/catalog/search",
		DialectCloud:  "/v0/projects/{project}/catalog/search",
	},
	OpJobStats: {
		DialectLegacy: "/api/v3/job/stats",
		DialectCloud:  "/v0/projects/{project}/job/stats",
	},
	OpSystemInfo: {
		DialectLegacy: "/apiv2/server_status",
	},
}

// Router resolves logical operations to concrete URLs and renders the
// dialect's Authorization header shape. The dialect is selected once at
// construction and never re-evaluated.
type Router struct {
	baseURL   string
	projectID string
	dialect   Dialect
}

// NewRouter selects the dialect from configuration: cloud iff the base
// URL matches the hosted pattern and a project id is present.
func NewRouter(baseURL, projectID string) *Router {
	dialect := DialectLegacy
	if strings.Contains(baseURL, "dremio.cloud") && projectID != "" {
		dialect = DialectCloud
	}
	return &Router{
		baseURL:   strings.TrimRight(baseURL, "/"),
		projectID: projectID,
		dialect:   dialect,
	}
}

// Dialect returns the active dialect.
func (r *Router) Dialect() Dialect {
	return r.dialect
}

// BaseURL returns the configured engine base URL without a trailing
// slash.
func (r *Router) BaseURL() string {
	return r.baseURL
}

// Resolve maps a logical operation to a full URL for the active
// dialect. Fails with a capability error when the dialect has no
// endpoint for the operation.
func (r *Router) Resolve(op Operation, params Params) (string, error) {
	byDialect, ok := endpointTable[op]
	if !ok {
		return "", qlerrors.Newf(qlerrors.ErrorTypeCapability, "unknown operation %q", op)
	}
	template, ok := byDialect[r.dialect]
	if !ok {
		return "", qlerrors.Newf(qlerrors.ErrorTypeCapability, "operation %q is not supported by the %s dialect", op, r.dialect).
			WithDetail("operation", string(op)).
			WithDetail("dialect", string(r.dialect))
	}

	path := template
	path = strings.ReplaceAll(path, "{project}", r.projectID)
	if strings.Contains(path, "{id}") {
		if params.ID == "" {
			return "", qlerrors.Newf(qlerrors.ErrorTypeValidation, "operation %q requires an id", op)
		}
		path = strings.ReplaceAll(path, "{id}", params.ID)
	}
	if strings.Contains(path, "{path}") {
		if params.Path == "" {
			return "", qlerrors.Newf(qlerrors.ErrorTypeValidation, "operation %q requires a dataset path", op)
		}
		path = strings.ReplaceAll(path, "{path}", params.Path)
	}

	return r.baseURL + path, nil
}

// AuthHeader renders the token into the dialect's Authorization header
// shape: bearer-style for cloud, provider-prefixed for legacy. Kept
// here so TokenManager stays dialect-agnostic.
func (r *Router) AuthHeader(token string) string {
	if r.dialect == DialectCloud {
		return "Bearer " + token
	}
	return "_dremio" + token
}
