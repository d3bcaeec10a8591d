// Package docs registers the OpenAPI definition served at /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/reports": {
            "post": {
                "tags": ["reports"],
                "summary": "Submit a free-text incident report",
                "responses": {"200": {"description": "OK"}, "422": {"description": "Unprocessable"}}
            }
        },
        "/api/recovery/reprocess": {
            "post": {
                "tags": ["recovery"],
                "summary": "Reprocess failed workflows",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/tickets": {
            "get": {
                "tags": ["tickets"],
                "summary": "List tickets",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/api/tickets/{id}": {
            "get": {
                "tags": ["tickets"],
                "summary": "Ticket details",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/organizations": {
            "get": {
                "tags": ["dashboard"],
                "summary": "List organizations",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/dashboard/{orgID}": {
            "get": {
                "tags": ["dashboard"],
                "summary": "Organization dashboard",
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not found"}}
            }
        },
        "/healthz": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "responses": {"200": {"description": "OK"}}
            }
        }
    }
}`

var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CivicSense Backend API",
	Description:      "Incident report intake, deduplication and merge pipeline",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
