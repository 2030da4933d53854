package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HandleDocs serves the interactive Swagger UI page over /openapi.json.
func HandleDocs(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(docsPage))
}

// HandleOpenAPI serves the OpenAPI document.
func HandleOpenAPI(c *gin.Context) {
	c.Data(http.StatusOK, "application/json", []byte(openAPIDocument))
}

const docsPage = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Swedish Nameday API - Swagger UI</title>
<link rel="stylesheet" href="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui.css">
</head>
<body>
<div id="swagger-ui"></div>
<script src="https://cdn.jsdelivr.net/npm/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
<script>
window.ui = SwaggerUIBundle({
  url: "/openapi.json",
  dom_id: "#swagger-ui",
  presets: [SwaggerUIBundle.presets.apis, SwaggerUIBundle.SwaggerUIStandalonePreset],
  layout: "BaseLayout",
  deepLinking: true
});
</script>
</body>
</html>
`

const openAPIDocument = `{
  "openapi": "3.1.0",
  "info": {
    "title": "Swedish Nameday API",
    "description": "API for Swedish namedays (namnsdagar)",
    "version": "1.0.0"
  },
  "paths": {
    "/": {
      "get": {"summary": "API information", "responses": {"200": {"description": "Endpoint index"}}}
    },
    "/api/today": {
      "get": {
        "summary": "Today's namedays",
        "responses": {"200": {"description": "Names for today", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/DateNames"}}}}}
      }
    },
    "/api/date/{month}/{day}": {
      "get": {
        "summary": "Namedays for a date",
        "parameters": [
          {"name": "month", "in": "path", "required": true, "schema": {"type": "integer", "minimum": 1, "maximum": 12}},
          {"name": "day", "in": "path", "required": true, "schema": {"type": "integer", "minimum": 1, "maximum": 31}}
        ],
        "responses": {
          "200": {"description": "Names for the date", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/DateNames"}}}},
          "400": {"description": "Invalid month, day or date", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}},
          "422": {"description": "Non-integer parameter", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}}
        }
      }
    },
    "/api/name/{name}": {
      "get": {
        "summary": "Dates for a name",
        "parameters": [{"name": "name", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {
          "200": {"description": "Dates the name is celebrated"},
          "404": {"description": "Name not in the calendar", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}}
        }
      }
    },
    "/api/month/{month}": {
      "get": {
        "summary": "Namedays for a month",
        "parameters": [{"name": "month", "in": "path", "required": true, "schema": {"type": "integer", "minimum": 1, "maximum": 12}}],
        "responses": {
          "200": {"description": "Entries of the month"},
          "400": {"description": "Invalid month", "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Error"}}}}
        }
      }
    },
    "/api/all": {
      "get": {"summary": "All namedays", "responses": {"200": {"description": "Whole calendar with totals"}}}
    },
    "/api/refresh": {
      "post": {
        "summary": "Refresh namedays from Wikipedia",
        "parameters": [{"name": "X-API-Key", "in": "header", "required": true, "schema": {"type": "string"}}],
        "responses": {
          "200": {"description": "Calendar refreshed"},
          "401": {"description": "Invalid API key"},
          "500": {"description": "API key not configured or fetch failed"}
        }
      }
    }
  },
  "components": {
    "schemas": {
      "DateNames": {
        "type": "object",
        "properties": {
          "date": {"type": "string", "example": "07-22"},
          "names": {"type": "array", "items": {"type": "string"}},
          "count": {"type": "integer"}
        }
      },
      "Error": {
        "type": "object",
        "properties": {"detail": {"type": "string"}}
      }
    }
  }
}
`
