package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Early Warning API",
        "description": "Student risk detection, alert lifecycle and risk insight endpoints",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Warning Rules", "description": "Rule definitions evaluated by detection"},
        {"name": "Warning Detection", "description": "Detection runs and run log"},
        {"name": "Warning Alerts", "description": "Alert records and lifecycle"},
        {"name": "Warning Insights", "description": "Statistics and student risk profiles"}
    ],
    "paths": {
        "/warnings/rules": {
            "get": {
                "tags": ["Warning Rules"],
                "summary": "List warning rules",
                "parameters": [
                    {"name": "is_active", "in": "query", "type": "boolean"},
                    {"name": "is_system", "in": "query", "type": "boolean"},
                    {"name": "severity", "in": "query", "type": "array", "items": {"type": "string", "enum": ["low", "medium", "high", "critical"]}, "collectionFormat": "csv"},
                    {"name": "created_by", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Warning Rules"],
                "summary": "Create warning rule",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RuleRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/rules/{id}": {
            "get": {
                "tags": ["Warning Rules"],
                "summary": "Get warning rule",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "put": {
                "tags": ["Warning Rules"],
                "summary": "Update warning rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RuleRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Invalid rule or system rule rename", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "delete": {
                "tags": ["Warning Rules"],
                "summary": "Delete warning rule",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "204": {"description": "Deleted"},
                    "403": {"description": "System rule", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/rules/{id}/active": {
            "patch": {
                "tags": ["Warning Rules"],
                "summary": "Enable or disable a warning rule",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"type": "object", "properties": {"is_active": {"type": "boolean"}}}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings/detect": {
            "post": {
                "tags": ["Warning Detection"],
                "summary": "Run risk detection",
                "parameters": [
                    {"name": "async", "in": "query", "type": "boolean"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DetectRequest"}}
                ],
                "responses": {
                    "200": {"description": "Run finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Run queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "No active rules", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/runs": {
            "get": {
                "tags": ["Warning Detection"],
                "summary": "List detection runs",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "enum": ["running", "completed", "failed", "cancelled"]},
                    {"name": "trigger", "in": "query", "type": "string", "enum": ["manual", "scheduled", "api"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings/system": {
            "get": {
                "tags": ["Warning Detection"],
                "summary": "Warning engine runtime metrics",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings/alerts": {
            "get": {
                "tags": ["Warning Alerts"],
                "summary": "List alert records",
                "parameters": [
                    {"name": "student_id", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "csv"},
                    {"name": "class_id", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "csv"},
                    {"name": "rule_id", "in": "query", "type": "string"},
                    {"name": "severity", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "csv"},
                    {"name": "status", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "csv"},
                    {"name": "created_from", "in": "query", "type": "string"},
                    {"name": "created_to", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string", "enum": ["asc", "desc"]}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings/alerts/batch": {
            "post": {
                "tags": ["Warning Alerts"],
                "summary": "Apply one action to many alerts",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/BatchAlertRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings/alerts/{id}": {
            "get": {
                "tags": ["Warning Alerts"],
                "summary": "Get alert record",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings/alerts/{id}/acknowledge": {
            "post": {
                "tags": ["Warning Alerts"],
                "summary": "Acknowledge an alert",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/AlertActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Alert already closed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/alerts/{id}/resolve": {
            "post": {
                "tags": ["Warning Alerts"],
                "summary": "Resolve an alert",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/AlertActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Notes missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Alert already closed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/alerts/{id}/dismiss": {
            "post": {
                "tags": ["Warning Alerts"],
                "summary": "Dismiss an alert",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/AlertActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Alert already closed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/warnings/statistics": {
            "get": {
                "tags": ["Warning Insights"],
                "summary": "Alert statistics",
                "parameters": [
                    {"name": "from", "in": "query", "type": "string"},
                    {"name": "to", "in": "query", "type": "string"},
                    {"name": "class_id", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "csv"},
                    {"name": "student_id", "in": "query", "type": "array", "items": {"type": "string"}, "collectionFormat": "csv"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/warnings/students/{id}/profile": {
            "get": {
                "tags": ["Warning Insights"],
                "summary": "Student risk profile",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        }
    },
    "definitions": {
        "Condition": {
            "type": "object",
            "required": ["metric", "operator", "value"],
            "properties": {
                "metric": {"type": "string", "example": "average_score"},
                "operator": {"type": "string", "example": "<"},
                "value": {"type": "number", "example": 60},
                "timeframe": {"type": "integer", "example": 30}
            }
        },
        "RuleRequest": {
            "type": "object",
            "required": ["name", "conditions", "severity"],
            "properties": {
                "name": {"type": "string"},
                "description": {"type": "string"},
                "conditions": {"type": "array", "items": {"$ref": "#/definitions/Condition"}},
                "severity": {"type": "string", "enum": ["low", "medium", "high", "critical"]},
                "is_active": {"type": "boolean"}
            }
        },
        "DetectRequest": {
            "type": "object",
            "required": ["scope"],
            "properties": {
                "scope": {"type": "string", "enum": ["student", "class", "all"]},
                "ids": {"type": "array", "items": {"type": "string"}},
                "async": {"type": "boolean"}
            }
        },
        "AlertActionRequest": {
            "type": "object",
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "BatchAlertRequest": {
            "type": "object",
            "required": ["ids", "action"],
            "properties": {
                "ids": {"type": "array", "items": {"type": "string"}},
                "action": {"type": "string", "enum": ["acknowledge", "resolve", "dismiss"]},
                "notes": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "FieldDetail": {
            "type": "object",
            "properties": {
                "field": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"},
                "details": {"type": "array", "items": {"$ref": "#/definitions/FieldDetail"}}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
