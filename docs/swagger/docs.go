// Package swagger holds the OpenAPI document for the creditmeter HTTP API.
// Regenerate it with go generate ./cmd/creditmeter after changing handler annotations.
package swagger

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
        "/healthz": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Health"
                ],
                "summary": "Liveness check",
                "responses": {
                    "200": {
                        "description": "status, time",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "type": "string"
                            }
                        }
                    }
                }
            }
        },
        "/v1/catalog/info": {
            "get": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Catalog"
                ],
                "summary": "Catalog cache state",
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "type": "object",
                            "additionalProperties": {
                                "$ref": "#/definitions/app.CacheInfo"
                            }
                        }
                    }
                }
            }
        },
        "/v1/catalog/refresh": {
            "post": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Catalog"
                ],
                "summary": "Refresh catalogs",
                "responses": {
                    "200": {
                        "description": "refreshed, catalogs",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    }
                }
            }
        },
        "/v1/events": {
            "get": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Catalog"
                ],
                "summary": "List event types",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Event category",
                        "name": "category",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "events, total",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    }
                }
            }
        },
        "/v1/organizations/{orgID}/usage/breakdown": {
            "get": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Usage"
                ],
                "summary": "Monthly breakdown",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Organization ID",
                        "name": "orgID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Month as YYYY-MM, defaults to the current month",
                        "name": "month",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/usage.Breakdown"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    }
                }
            }
        },
        "/v1/organizations/{orgID}/usage/dashboard": {
            "get": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Usage"
                ],
                "summary": "Usage dashboard",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Organization ID",
                        "name": "orgID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Month as YYYY-MM",
                        "name": "month",
                        "in": "query"
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/app.Dashboard"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    }
                }
            }
        },
        "/v1/organizations/{orgID}/usage/history": {
            "get": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Usage"
                ],
                "summary": "Usage history",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Organization ID",
                        "name": "orgID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "string",
                        "description": "Event category",
                        "name": "category",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "Event type",
                        "name": "eventType",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "User ID",
                        "name": "userId",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Session ID",
                        "name": "sessionId",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Minimum credits",
                        "name": "minCredits",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Maximum credits",
                        "name": "maxCredits",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "YYYY-MM-DD or RFC 3339",
                        "name": "startDate",
                        "in": "query"
                    },
                    {
                        "type": "string",
                        "description": "YYYY-MM-DD or RFC 3339",
                        "name": "endDate",
                        "in": "query"
                    },
                    {
                        "type": "integer",
                        "description": "Page number",
                        "name": "page",
                        "in": "query",
                        "default": 1
                    },
                    {
                        "type": "integer",
                        "description": "Page size",
                        "name": "limit",
                        "in": "query",
                        "default": 50
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/app.HistoryPage"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    }
                }
            }
        },
        "/v1/organizations/{orgID}/usage/track": {
            "post": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "description": "Prices one action, checks it against the organization's plan limits and records it",
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Usage"
                ],
                "summary": "Track usage",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Organization ID",
                        "name": "orgID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "description": "Action to charge",
                        "name": "body",
                        "in": "body",
                        "schema": {
                            "$ref": "#/definitions/http.TrackRequest"
                        },
                        "required": true
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/app.TrackResult"
                        }
                    },
                    "400": {
                        "description": "Malformed body or unknown event type",
                        "schema": {
                            "$ref": "#/definitions/app.TrackResult"
                        }
                    },
                    "402": {
                        "description": "Credit limit reached",
                        "schema": {
                            "$ref": "#/definitions/app.TrackResult"
                        }
                    },
                    "404": {
                        "description": "Unknown organization",
                        "schema": {
                            "$ref": "#/definitions/app.TrackResult"
                        }
                    },
                    "422": {
                        "description": "Event data rejected",
                        "schema": {
                            "$ref": "#/definitions/app.TrackResult"
                        }
                    },
                    "500": {
                        "description": "Internal tracking error",
                        "schema": {
                            "$ref": "#/definitions/app.TrackResult"
                        }
                    }
                }
            }
        },
        "/v1/organizations/{orgID}/usage/trends": {
            "get": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Usage"
                ],
                "summary": "Usage trends",
                "parameters": [
                    {
                        "type": "string",
                        "description": "Organization ID",
                        "name": "orgID",
                        "in": "path",
                        "required": true
                    },
                    {
                        "type": "integer",
                        "description": "Window in months (1-24)",
                        "name": "months",
                        "in": "query",
                        "default": 6
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/usage.Trends"
                        }
                    },
                    "400": {
                        "description": "Bad Request",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    },
                    "500": {
                        "description": "Internal Server Error",
                        "schema": {
                            "$ref": "#/definitions/http.ErrorBody"
                        }
                    }
                }
            }
        },
        "/v1/plans": {
            "get": {
                "security": [
                    {
                        "ServiceKey": []
                    }
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Catalog"
                ],
                "summary": "List plans",
                "responses": {
                    "200": {
                        "description": "plans, total",
                        "schema": {
                            "type": "object",
                            "additionalProperties": true
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "app.CacheInfo": {
            "type": "object",
            "properties": {
                "isRefreshing": {
                    "type": "boolean"
                },
                "isStale": {
                    "type": "boolean"
                },
                "lastUpdate": {
                    "type": "string"
                },
                "size": {
                    "type": "integer"
                }
            }
        },
        "app.Dashboard": {
            "type": "object",
            "properties": {
                "analytics": {
                    "$ref": "#/definitions/app.DashboardAnalytics"
                },
                "events": {
                    "$ref": "#/definitions/app.DashboardEvents"
                },
                "limits": {
                    "$ref": "#/definitions/app.DashboardLimits"
                },
                "meta": {
                    "$ref": "#/definitions/app.DashboardMeta"
                },
                "overview": {
                    "$ref": "#/definitions/app.DashboardOverview"
                },
                "recommendation": {
                    "$ref": "#/definitions/plan.Recommendation"
                },
                "users": {
                    "$ref": "#/definitions/app.DashboardUsers"
                }
            }
        },
        "app.DashboardAnalytics": {
            "type": "object",
            "properties": {
                "avgCreditsPerEvent": {
                    "type": "number"
                },
                "dailyAverage": {
                    "type": "number"
                },
                "dailyUsage": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/usage.DailyUsage"
                    }
                },
                "forecast": {
                    "$ref": "#/definitions/usage.Forecast"
                },
                "monthlyTrends": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/usage.MonthlyTrend"
                    }
                }
            }
        },
        "app.DashboardEvents": {
            "type": "object",
            "properties": {
                "breakdown": {
                    "type": "object",
                    "additionalProperties": {
                        "$ref": "#/definitions/usage.Tally"
                    }
                },
                "topEvents": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/usage.TopEvent"
                    }
                },
                "totalEvents": {
                    "type": "integer"
                }
            }
        },
        "app.DashboardLimits": {
            "type": "object",
            "properties": {
                "daysInMonth": {
                    "type": "integer"
                },
                "isUnlimited": {
                    "type": "boolean"
                },
                "planType": {
                    "type": "string"
                }
            }
        },
        "app.DashboardMeta": {
            "type": "object",
            "properties": {
                "generatedAt": {
                    "type": "string"
                },
                "organizationId": {
                    "type": "string"
                },
                "reportMonth": {
                    "type": "string"
                }
            }
        },
        "app.DashboardOverview": {
            "type": "object",
            "properties": {
                "isNearLimit": {
                    "type": "boolean"
                },
                "isOverLimit": {
                    "type": "boolean"
                },
                "percentageUsed": {
                    "type": "number"
                },
                "remainingCredits": {
                    "type": "integer"
                },
                "totalCredits": {
                    "type": "integer"
                },
                "usedCredits": {
                    "type": "integer"
                },
                "warningThreshold": {
                    "type": "number"
                }
            }
        },
        "app.DashboardUsers": {
            "type": "object",
            "properties": {
                "breakdown": {
                    "type": "object",
                    "additionalProperties": {
                        "$ref": "#/definitions/usage.Tally"
                    }
                },
                "topUsers": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/app.TopUser"
                    }
                },
                "totalUsers": {
                    "type": "integer"
                }
            }
        },
        "app.HistoryEntry": {
            "type": "object",
            "properties": {
                "category": {
                    "type": "string"
                },
                "createdAt": {
                    "type": "string"
                },
                "creditsConsumed": {
                    "type": "integer"
                },
                "eventData": {
                    "type": "object",
                    "additionalProperties": true
                },
                "eventName": {
                    "type": "string"
                },
                "eventType": {
                    "type": "string"
                },
                "id": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "integer"
                },
                "user": {
                    "$ref": "#/definitions/app.HistoryUser"
                }
            }
        },
        "app.HistoryPage": {
            "type": "object",
            "properties": {
                "events": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/app.HistoryEntry"
                    }
                },
                "pagination": {
                    "$ref": "#/definitions/app.Pagination"
                },
                "summary": {
                    "$ref": "#/definitions/usage.Summary"
                }
            }
        },
        "app.HistoryUser": {
            "type": "object",
            "properties": {
                "email": {
                    "type": "string"
                },
                "id": {
                    "type": "string"
                },
                "name": {
                    "type": "string"
                }
            }
        },
        "app.Pagination": {
            "type": "object",
            "properties": {
                "hasNext": {
                    "type": "boolean"
                },
                "hasPrev": {
                    "type": "boolean"
                },
                "limit": {
                    "type": "integer"
                },
                "page": {
                    "type": "integer"
                },
                "total": {
                    "type": "integer"
                },
                "totalPages": {
                    "type": "integer"
                }
            }
        },
        "app.TopUser": {
            "type": "object",
            "properties": {
                "count": {
                    "type": "integer"
                },
                "credits": {
                    "type": "integer"
                },
                "name": {
                    "type": "string"
                },
                "percentage": {
                    "type": "number"
                }
            }
        },
        "app.TrackResult": {
            "type": "object",
            "properties": {
                "creditsConsumed": {
                    "type": "integer"
                },
                "error": {
                    "type": "string"
                },
                "limitWarning": {
                    "$ref": "#/definitions/quota.Warning"
                },
                "remainingCredits": {
                    "type": "integer"
                },
                "success": {
                    "type": "boolean"
                },
                "usageEventId": {
                    "type": "string"
                }
            }
        },
        "http.ErrorBody": {
            "type": "object",
            "properties": {
                "error": {
                    "$ref": "#/definitions/http.ErrorDetail"
                },
                "success": {
                    "type": "boolean"
                }
            }
        },
        "http.ErrorDetail": {
            "type": "object",
            "properties": {
                "code": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        },
        "http.TrackRequest": {
            "type": "object",
            "properties": {
                "creditsOverride": {
                    "type": "integer"
                },
                "eventData": {
                    "type": "object",
                    "additionalProperties": true
                },
                "eventType": {
                    "type": "string"
                },
                "sessionId": {
                    "type": "integer"
                },
                "skipLimitCheck": {
                    "type": "boolean"
                },
                "userId": {
                    "type": "string"
                }
            }
        },
        "plan.Recommendation": {
            "type": "object",
            "properties": {
                "reason": {
                    "type": "string"
                },
                "recommendedPlan": {
                    "type": "string"
                },
                "shouldUpgrade": {
                    "type": "boolean"
                }
            }
        },
        "quota.Warning": {
            "type": "object",
            "properties": {
                "isNearLimit": {
                    "type": "boolean"
                },
                "isOverLimit": {
                    "type": "boolean"
                },
                "level": {
                    "type": "integer"
                },
                "percentageUsed": {
                    "type": "number"
                },
                "recommendedAction": {
                    "type": "string"
                }
            }
        },
        "usage.Breakdown": {
            "type": "object",
            "properties": {
                "dailyUsage": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/usage.DailyUsage"
                    }
                },
                "eventBreakdown": {
                    "type": "object",
                    "additionalProperties": {
                        "$ref": "#/definitions/usage.Tally"
                    }
                },
                "month": {
                    "type": "string"
                },
                "percentageUsed": {
                    "type": "number"
                },
                "remainingCredits": {
                    "type": "integer"
                },
                "topEvents": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/usage.TopEvent"
                    }
                },
                "totalCredits": {
                    "type": "integer"
                },
                "usedCredits": {
                    "type": "integer"
                },
                "userBreakdown": {
                    "type": "object",
                    "additionalProperties": {
                        "$ref": "#/definitions/usage.Tally"
                    }
                }
            }
        },
        "usage.DailyUsage": {
            "type": "object",
            "properties": {
                "credits": {
                    "type": "integer"
                },
                "date": {
                    "type": "string"
                }
            }
        },
        "usage.Forecast": {
            "type": "object",
            "properties": {
                "confidence": {
                    "type": "integer"
                },
                "nextMonthEstimate": {
                    "type": "integer"
                }
            }
        },
        "usage.MonthlyTrend": {
            "type": "object",
            "properties": {
                "credits": {
                    "type": "integer"
                },
                "growth": {
                    "type": "number"
                },
                "month": {
                    "type": "string"
                }
            }
        },
        "usage.Summary": {
            "type": "object",
            "properties": {
                "totalCredits": {
                    "type": "integer"
                },
                "totalEvents": {
                    "type": "integer"
                },
                "uniqueUsers": {
                    "type": "integer"
                }
            }
        },
        "usage.Tally": {
            "type": "object",
            "properties": {
                "count": {
                    "type": "integer"
                },
                "credits": {
                    "type": "integer"
                }
            }
        },
        "usage.TopEvent": {
            "type": "object",
            "properties": {
                "credits": {
                    "type": "integer"
                },
                "eventType": {
                    "type": "string"
                },
                "percentage": {
                    "type": "number"
                }
            }
        },
        "usage.Trends": {
            "type": "object",
            "properties": {
                "forecast": {
                    "$ref": "#/definitions/usage.Forecast"
                },
                "monthlyTrends": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/usage.MonthlyTrend"
                    }
                }
            }
        }
    },
    "securityDefinitions": {
        "ServiceKey": {
            "description": "Service key checked against auth.service_key_hash",
            "type": "apiKey",
            "name": "X-Service-Key",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Creditmeter API",
	Description:      "Usage and credit metering for NEXA Studio organizations.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
