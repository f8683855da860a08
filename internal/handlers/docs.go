package handlers

import (
	"encoding/json"
	"net/http"
)

type schema = map[string]interface{}

func queryParam(name, description string, s schema) schema {
	return schema{"name": name, "in": "query", "description": description, "required": false, "schema": s}
}

func pathParam(name, description string, s schema) schema {
	return schema{"name": name, "in": "path", "description": description, "required": true, "schema": s}
}

var (
	stringSchema   = schema{"type": "string"}
	dateSchema     = schema{"type": "string", "format": "date"}
	dateTimeSchema = schema{"type": "string", "format": "date-time"}
	intSchema      = schema{"type": "integer"}
	numberNullable = schema{"type": "number", "nullable": true}
	boolSchema     = schema{"type": "boolean"}
)

var pageParams = []schema{
	queryParam("page", "Page number (default: 1)", schema{"type": "integer", "default": 1}),
	queryParam("limit", "Records per page (default: 100, max: 1000)", schema{"type": "integer", "default": 100}),
}

var runFilterParams = []schema{
	queryParam("run_id", "Pipeline run ID (default: latest succeeded run)", stringSchema),
	queryParam("turbine_id", "Filter by turbine ID", stringSchema),
	queryParam("start_date", "Filter by start date (YYYY-MM-DD)", dateSchema),
	queryParam("end_date", "Filter by end date (YYYY-MM-DD)", dateSchema),
}

var (
	statsObject = schema{
		"type": "object",
		"properties": schema{
			"turbine_id":        stringSchema,
			"event_date":        dateTimeSchema,
			"min_power":         numberNullable,
			"max_power":         numberNullable,
			"avg_power":         numberNullable,
			"stddev_power":      numberNullable,
			"observation_count": intSchema,
			"unresolved_count":  intSchema,
		},
	}

	readingObject = schema{
		"type": "object",
		"properties": schema{
			"event_date":           dateTimeSchema,
			"turbine_id":           stringSchema,
			"wind_speed":           numberNullable,
			"wind_direction":       numberNullable,
			"imputed_power_output": numberNullable,
			"was_imputed":          boolSchema,
			"avg_power":            numberNullable,
			"stddev_power":         numberNullable,
		},
	}

	malformedObject = schema{
		"type": "object",
		"properties": schema{
			"turbine_id":     schema{"type": "string", "nullable": true},
			"timestamp":      schema{"type": "string", "nullable": true},
			"power_output":   numberNullable,
			"wind_speed":     numberNullable,
			"wind_direction": numberNullable,
			"reason":         schema{"type": "string", "enum": []string{"missing_turbine_id", "missing_timestamp", "unparseable_timestamp"}},
		},
	}

	runObject = schema{
		"type": "object",
		"properties": schema{
			"id":                 stringSchema,
			"started_at":         dateTimeSchema,
			"finished_at":        dateTimeSchema,
			"source_files":       schema{"type": "array", "items": stringSchema},
			"raw_records":        intSchema,
			"duplicate_records":  intSchema,
			"valid_records":      intSchema,
			"malformed_records":  intSchema,
			"imputed_records":    intSchema,
			"filled_records":     intSchema,
			"unresolved_records": intSchema,
			"statistics_groups":  intSchema,
			"normal_records":     intSchema,
			"anomalous_records":  intSchema,
			"status":             schema{"type": "string", "enum": []string{"pending", "succeeded", "failed"}},
		},
	}

	errorObject = schema{
		"type": "object",
		"properties": schema{
			"error":   stringSchema,
			"message": stringSchema,
			"code":    intSchema,
		},
	}
)

func jsonContent(s schema) schema {
	return schema{"application/json": schema{"schema": s}}
}

func paginated(item schema) schema {
	return jsonContent(schema{
		"type": "object",
		"properties": schema{
			"data":        schema{"type": "array", "items": item},
			"total":       intSchema,
			"page":        intSchema,
			"limit":       intSchema,
			"total_pages": intSchema,
		},
	})
}

func getOperation(summary, description string, params []schema, responses schema) schema {
	op := schema{
		"summary":     summary,
		"description": description,
		"responses":   responses,
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	return schema{"get": op}
}

func withParams(groups ...[]schema) []schema {
	var out []schema
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var (
	badRequest = schema{"description": "Invalid parameters", "content": jsonContent(errorObject)}
	notFound   = schema{"description": "Not found", "content": jsonContent(errorObject)}
)

// OpenAPISpec returns the OpenAPI 3.0 specification for the Turbine Platform API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := schema{
		"openapi": "3.0.0",
		"info": schema{
			"title":       "Turbine Platform API",
			"description": "Wind turbine data quality pipeline: imputed readings, daily power statistics and anomaly classification",
			"version":     "1.0.0",
			"contact": map[string]string{
				"name": "Turbine Platform Team",
			},
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths": schema{
			routeStats: getOperation(
				"Get daily turbine statistics",
				"Min, max, mean and standard deviation of power output per turbine and day",
				withParams(runFilterParams, pageParams),
				schema{
					"200": schema{"description": "Successful response", "content": paginated(statsObject)},
					"400": badRequest,
				},
			),
			routeTurbineDay: getOperation(
				"Get statistics of one turbine-day",
				"Daily statistics of the latest succeeded run, served from cache when available",
				[]schema{
					pathParam("turbine_id", "Turbine ID", stringSchema),
					pathParam("date", "Event date (YYYY-MM-DD)", dateSchema),
				},
				schema{
					"200": schema{"description": "Successful response", "content": jsonContent(statsObject)},
					"400": badRequest,
					"404": notFound,
				},
			),
			routeReadings: getOperation(
				"Get classified readings",
				"Imputed readings joined with their daily statistics",
				withParams([]schema{
					pathParam("classification", "Reading classification", schema{"type": "string", "enum": []string{"normal", "anomalous", "unresolved"}}),
				}, runFilterParams, pageParams),
				schema{
					"200": schema{"description": "Successful response", "content": paginated(readingObject)},
					"400": badRequest,
				},
			),
			routeMalformed: getOperation(
				"Get malformed rows",
				"Raw rows held back for upstream reprocessing, values unchanged",
				withParams([]schema{
					queryParam("run_id", "Pipeline run ID (default: latest succeeded run)", stringSchema),
					queryParam("reason", "Filter by malformed reason", stringSchema),
				}, pageParams),
				schema{
					"200": schema{"description": "Successful response", "content": paginated(malformedObject)},
					"400": badRequest,
				},
			),
			routeRuns: getOperation(
				"List pipeline runs",
				"Pipeline runs with stage counts, most recent first",
				pageParams,
				schema{
					"200": schema{"description": "Successful response", "content": paginated(runObject)},
				},
			),
			routeRun: getOperation(
				"Get a pipeline run",
				"One pipeline run with stage counts",
				[]schema{pathParam("run_id", "Pipeline run ID", stringSchema)},
				schema{
					"200": schema{"description": "Successful response", "content": jsonContent(runObject)},
					"404": notFound,
				},
			),
			routeHealthCheck: getOperation(
				"Health check",
				"Check if the API and its database are reachable",
				nil,
				schema{
					"200": schema{"description": "API is healthy", "content": jsonContent(schema{
						"type":       "object",
						"properties": schema{"status": stringSchema, "timestamp": dateTimeSchema},
					})},
					"503": schema{"description": "Database unreachable"},
				},
			),
			"/metrics": schema{
				"get": schema{
					"summary":     "Prometheus metrics",
					"description": "Prometheus metrics endpoint for monitoring",
					"responses": schema{
						"200": schema{
							"description": "Prometheus metrics in text format",
							"content":     schema{"text/plain": schema{"schema": stringSchema}},
						},
					},
				},
			},
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
