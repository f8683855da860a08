package handlers

import (
	"html/template"
	"net/http"

	"github.com/gorilla/mux"
)

const swaggerPage = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>{{.Title}}</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui.css">
    <style>
        html { box-sizing: border-box; overflow-y: scroll; }
        body { margin:0; padding:0; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5.10.0/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            window.ui = SwaggerUIBundle({
                url: "{{.SpecURL}}",
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis]
            });
        };
    </script>
</body>
</html>`

var swaggerTemplate = template.Must(template.New("swagger").Parse(swaggerPage))

// DocsSpecPath is where OpenAPISpec is mounted
const DocsSpecPath = "/api/docs/openapi.json"

// SwaggerUI serves the Swagger UI HTML page for the OpenAPI document at specURL
func SwaggerUI(specURL string) http.HandlerFunc {
	data := struct {
		Title   string
		SpecURL string
	}{
		Title:   "Turbine Platform API Documentation",
		SpecURL: specURL,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		swaggerTemplate.Execute(w, data)
	}
}

// RegisterDocs mounts the OpenAPI document and its UI
func RegisterDocs(router *mux.Router) {
	router.HandleFunc(DocsSpecPath, OpenAPISpec).Methods("GET")
	router.HandleFunc("/api/docs", SwaggerUI(DocsSpecPath)).Methods("GET")
}
