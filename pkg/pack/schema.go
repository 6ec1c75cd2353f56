package pack

// packSchema is the structural layer of pack validation. It rejects shape
// errors with precise field paths before the semantic pass runs.
const packSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["workspaceId", "metadata", "scope", "rules"],
  "properties": {
    "id": {"type": "string"},
    "workspaceId": {"type": "string", "minLength": 1},
    "metadata": {
      "type": "object",
      "required": ["id", "name", "version", "packMode"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "version": {"type": "string", "minLength": 1},
        "status": {"type": "string"},
        "owners": {"type": "array", "items": {"type": "string"}},
        "labels": {"type": "array", "items": {"type": "string"}},
        "packMode": {"type": "string"}
      }
    },
    "scope": {
      "type": "object",
      "required": ["type"],
      "properties": {
        "type": {"type": "string"},
        "ref": {"type": "string"},
        "branches": {"$ref": "#/$defs/includeExclude"},
        "repos": {"$ref": "#/$defs/includeExclude"},
        "prEvents": {"type": "array", "items": {"type": "string"}}
      }
    },
    "priority": {"type": "integer"},
    "mergeStrategy": {"type": "string"},
    "defaults": {"type": "object"},
    "rules": {
      "type": "array",
      "items": {"$ref": "#/$defs/rule"}
    },
    "contentHash": {"type": "string"},
    "createdBy": {"type": "string"},
    "createdAt": {"type": "string"},
    "updatedAt": {"type": "string"}
  },
  "$defs": {
    "includeExclude": {
      "type": "object",
      "properties": {
        "include": {"type": "array", "items": {"type": "string"}},
        "exclude": {"type": "array", "items": {"type": "string"}}
      }
    },
    "rule": {
      "type": "object",
      "required": ["id", "name", "trigger", "obligations"],
      "properties": {
        "id": {"type": "string", "minLength": 1},
        "name": {"type": "string", "minLength": 1},
        "enabled": {"type": "boolean"},
        "trigger": {
          "type": "object",
          "properties": {
            "always": {"type": "boolean"},
            "paths": {"type": "array", "items": {"type": "string"}},
            "labels": {"type": "array", "items": {"type": "string"}},
            "changeSurface": {"type": "array", "items": {"type": "string"}}
          }
        },
        "when": {"type": "string"},
        "skipIf": {"$ref": "#/$defs/condition"},
        "excludePaths": {"type": "array", "items": {"type": "string"}},
        "obligations": {
          "type": "array",
          "items": {"$ref": "#/$defs/obligation"}
        }
      }
    },
    "obligation": {
      "type": "object",
      "required": ["decisionOnFail"],
      "properties": {
        "comparator": {
          "type": "object",
          "required": ["comparatorId"],
          "properties": {
            "comparatorId": {"type": "string", "minLength": 1},
            "params": {"type": "object"}
          }
        },
        "condition": {"$ref": "#/$defs/condition"},
        "decisionOnFail": {"type": "string"},
        "decisionOnUnknown": {"type": "string"},
        "severity": {"type": "string"}
      }
    },
    "condition": {
      "type": "object",
      "required": ["operator"],
      "properties": {
        "fact": {"type": "string"},
        "operator": {"type": "string"},
        "value": {},
        "conditions": {
          "type": "array",
          "items": {"$ref": "#/$defs/condition"}
        }
      }
    }
  }
}`
