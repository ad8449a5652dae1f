package relay

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaURL = "https://pakt.app/schemas/verifier-webhook.schema.json"

const requestSchema = `{
	"type": "object",
	"required": ["action", "authCode"],
	"properties": {
		"action": {"enum": ["LINK_SOURCE_ID", "VERIFY_COMMITMENT", "VERIFY_PAKT"]},
		"authCode": {"type": "string", "minLength": 1},
		"walletAddress": {"$ref": "#/$defs/address"},
		"paktOwner": {"$ref": "#/$defs/address"},
		"commitmentIndex": {"$ref": "#/$defs/index"},
		"paktIndex": {"$ref": "#/$defs/index"}
	},
	"anyOf": [
		{"required": ["walletAddress"]},
		{"required": ["paktOwner"]}
	],
	"if": {"properties": {"action": {"enum": ["VERIFY_COMMITMENT", "VERIFY_PAKT"]}}},
	"then": {
		"anyOf": [
			{"required": ["commitmentIndex"]},
			{"required": ["paktIndex"]}
		]
	},
	"$defs": {
		"address": {"type": "string", "pattern": "^0x[0-9a-fA-F]{40}$"},
		"index": {"type": "integer", "minimum": 0}
	}
}`

func compileSchema() (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(requestSchema)); err != nil {
		return nil, fmt.Errorf("relay schema load failed: %w", err)
	}
	compiled, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("relay schema compile failed: %w", err)
	}
	return compiled, nil
}
