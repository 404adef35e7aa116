// Package docs registers the OpenAPI description served under /swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/auth/login": {
            "post": {
                "description": "Authenticate an account and issue an access/refresh token pair",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Login",
                "parameters": [
                    {"description": "Login credentials", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authentication.CredentialsRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authentication.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/auth/register": {
            "post": {
                "description": "Create an account and issue an access/refresh token pair",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Register",
                "parameters": [
                    {"description": "Account credentials", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authentication.CredentialsRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/authentication.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "description": "Exchange a stored refresh token for a new access token",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Refresh Token",
                "parameters": [
                    {"description": "Refresh token payload", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authentication.RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authentication.AccessTokenResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "description": "Revoke a refresh token. Revoking an unknown token succeeds.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["auth"],
                "summary": "Logout",
                "parameters": [
                    {"description": "Logout payload", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/authentication.RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authentication.MessageResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/run/cmd": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Execute a shell command on the host unless it is denylisted",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["run"],
                "summary": "Run a command",
                "parameters": [
                    {"description": "Command", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/gateway.CommandRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/gateway.CommandResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/run/query": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Same as POST /run/query with the SQL in the query string",
                "produces": ["application/json"],
                "tags": ["run"],
                "summary": "Run a query",
                "parameters": [
                    {"type": "string", "description": "SQL text", "name": "query", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "object"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Execute literal SQL unless it is denylisted. Row-producing statements return an array of rows.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["run"],
                "summary": "Run a query",
                "parameters": [
                    {"description": "Query", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/gateway.QueryRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"type": "object"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/admin/addDeniedCommand": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Add a command to the denylist. Matching is case-insensitive.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Deny a command",
                "parameters": [
                    {"description": "Command to deny", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/denylist.AddCommandRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/denylist.EntryCreatedResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/admin/addDeniedQuery": {
            "post": {
                "security": [{"BearerAuth": []}],
                "description": "Add a query to the denylist. Matching is exact.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Deny a query",
                "parameters": [
                    {"description": "Query to deny", "name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/denylist.AddQueryRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/denylist.EntryCreatedResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Liveness probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object", "additionalProperties": {"type": "string"}}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}}
        },
        "authentication.CredentialsRequest": {
            "type": "object",
            "required": ["identifier", "password"],
            "properties": {"identifier": {"type": "string"}, "password": {"type": "string"}}
        },
        "authentication.RefreshRequest": {
            "type": "object",
            "properties": {"refreshToken": {"type": "string"}}
        },
        "authentication.UserResponse": {
            "type": "object",
            "properties": {"id": {"type": "integer"}, "identifier": {"type": "string"}}
        },
        "authentication.SessionResponse": {
            "type": "object",
            "properties": {
                "accessToken": {"type": "string"},
                "refreshToken": {"type": "string"},
                "user": {"$ref": "#/definitions/authentication.UserResponse"}
            }
        },
        "authentication.AccessTokenResponse": {
            "type": "object",
            "properties": {"accessToken": {"type": "string"}}
        },
        "authentication.MessageResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "gateway.CommandRequest": {
            "type": "object",
            "properties": {"cmd": {"type": "string"}}
        },
        "gateway.CommandResponse": {
            "type": "object",
            "properties": {"output": {"type": "string"}}
        },
        "gateway.QueryRequest": {
            "type": "object",
            "properties": {"query": {"type": "string"}}
        },
        "denylist.AddCommandRequest": {
            "type": "object",
            "required": ["command"],
            "properties": {"command": {"type": "string"}}
        },
        "denylist.AddQueryRequest": {
            "type": "object",
            "required": ["query"],
            "properties": {"query": {"type": "string"}}
        },
        "denylist.EntryCreatedResponse": {
            "type": "object",
            "properties": {"id": {"type": "integer"}, "message": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:3007",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "ZeroDrop Gateway API",
	Description:      "Token-gated remote command and SQL execution with a denylist filter.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
