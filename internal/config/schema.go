package config

// testConfigSchema is the JSON schema used for structural validation of
// the YAML test configuration. Semantic rules (executor-specific field
// requirements, duration formats) live in validator.go.
const testConfigSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["name", "scenarios"],
  "properties": {
    "name": { "type": "string", "minLength": 1 },
    "description": { "type": "string" },
    "settings": {
      "type": "object",
      "properties": {
        "baseUrl": { "type": "string" },
        "timeout": { "type": "string" },
        "maxConnectionsPerHost": { "type": "integer", "minimum": 0 },
        "maxIdleConnsPerHost": { "type": "integer", "minimum": 0 },
        "insecureSkipVerify": { "type": "boolean" },
        "userAgent": { "type": "string" },
        "headers": { "type": "object", "additionalProperties": { "type": "string" } }
      },
      "additionalProperties": false
    },
    "variables": { "type": "object", "additionalProperties": { "type": "string" } },
    "scenarios": {
      "type": "object",
      "minProperties": 1,
      "additionalProperties": { "$ref": "#/$defs/scenario" }
    },
    "thresholds": {
      "type": "object",
      "properties": {
        "http_req_duration": { "$ref": "#/$defs/stringList" },
        "http_req_failed": { "$ref": "#/$defs/stringList" },
        "http_reqs": { "$ref": "#/$defs/stringList" },
        "checks": { "$ref": "#/$defs/stringList" }
      },
      "additionalProperties": false
    },
    "report": {
      "type": "object",
      "properties": {
        "title": { "type": "string" },
        "logo": { "type": "string" }
      },
      "additionalProperties": false
    },
    "options": {
      "type": "object",
      "properties": {
        "sequential": { "type": "boolean" },
        "gracefulStop": { "type": "string" }
      },
      "additionalProperties": false
    }
  },
  "additionalProperties": false,
  "$defs": {
    "stringList": { "type": "array", "items": { "type": "string" } },
    "scenario": {
      "type": "object",
      "required": ["executor", "requests"],
      "properties": {
        "executor": {
          "enum": [
            "constant-vus",
            "ramping-vus",
            "constant-arrival-rate",
            "ramping-arrival-rate",
            "per-vu-iterations",
            "shared-iterations"
          ]
        },
        "vus": { "type": "integer", "minimum": 0 },
        "duration": { "type": "string" },
        "iterations": { "type": "integer", "minimum": 0 },
        "maxDuration": { "type": "string" },
        "rate": { "type": "number", "minimum": 0 },
        "preAllocatedVUs": { "type": "integer", "minimum": 0 },
        "maxVUs": { "type": "integer", "minimum": 0 },
        "stages": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["duration", "target"],
            "properties": {
              "duration": { "type": "string" },
              "target": { "type": "integer", "minimum": 0 },
              "name": { "type": "string" }
            },
            "additionalProperties": false
          }
        },
        "startTime": { "type": "string" },
        "sleep": {
          "type": "object",
          "properties": {
            "duration": { "type": "string" },
            "min": { "type": "string" },
            "max": { "type": "string" }
          },
          "additionalProperties": false
        },
        "session": {
          "type": "object",
          "required": ["login", "cookie"],
          "properties": {
            "login": { "$ref": "#/$defs/request" },
            "cookie": { "type": "string", "minLength": 1 },
            "fallbackValue": { "type": "string" },
            "expectStatus": { "type": "integer", "minimum": 100, "maximum": 599 }
          },
          "additionalProperties": false
        },
        "requests": {
          "type": "array",
          "minItems": 1,
          "items": { "$ref": "#/$defs/request" }
        },
        "gracefulStop": { "type": "string" },
        "tags": { "type": "object", "additionalProperties": { "type": "string" } }
      },
      "additionalProperties": false
    },
    "request": {
      "type": "object",
      "required": ["method", "url"],
      "properties": {
        "name": { "type": "string" },
        "method": { "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"] },
        "url": { "type": "string", "minLength": 1 },
        "headers": { "type": "object", "additionalProperties": { "type": "string" } },
        "body": { "type": "string" },
        "timeout": { "type": "string" },
        "thinkTime": { "type": "string" },
        "extract": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "source"],
            "properties": {
              "name": { "type": "string", "minLength": 1 },
              "source": { "enum": ["body", "header", "status"] },
              "path": { "type": "string" },
              "regex": { "type": "string" }
            },
            "additionalProperties": false
          }
        },
        "checks": {
          "type": "array",
          "items": {
            "type": "object",
            "required": ["name", "type"],
            "properties": {
              "name": { "type": "string", "minLength": 1 },
              "type": { "enum": ["status", "body-contains", "json"] },
              "equals": { "type": "string" },
              "contains": { "type": "string" },
              "path": { "type": "string" }
            },
            "additionalProperties": false
          }
        }
      },
      "additionalProperties": false
    }
  }
}`
