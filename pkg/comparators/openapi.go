package comparators

import (
	"context"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/fault"
)

// OpenAPISchemaValid fetches the OpenAPI document at the PR head and
// validates it structurally. Params: "path" (required). A document that
// fails to parse or validate is a fail; fetch problems are unknown.
func OpenAPISchemaValid(ctx context.Context, env *Env, params map[string]interface{}) contracts.ComparatorResult {
	path, ok := paramString(params, "path")
	if !ok {
		return unknown(contracts.ReasonBadParams, "openapiSchemaValid requires a path param")
	}
	if env.Fetcher == nil {
		return unknown(contracts.ReasonNotFound, "no repository access configured")
	}
	content, err := env.Fetcher.FetchFile(ctx, env.PR.HeadSHA, path)
	if err != nil {
		switch fault.KindOf(err) {
		case fault.KindNotFound:
			return fail("OPENAPI_MISSING", "OpenAPI document %s not found", path)
		case fault.KindBudgetExceeded:
			return unknown(contracts.ReasonBudget, "budget exhausted fetching %s", path)
		default:
			return unknown(contracts.ReasonTimeout, "fetch %s: %v", path, err)
		}
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	doc, err := loader.LoadFromData([]byte(content.Content))
	if err != nil {
		return contracts.ComparatorResult{
			Status:     contracts.StatusFail,
			ReasonCode: "OPENAPI_PARSE_ERROR",
			Message:    "OpenAPI document does not parse: " + firstLine(err.Error()),
			Evidence:   []contracts.Evidence{{Kind: "file", Ref: path}},
		}
	}
	if err := doc.Validate(ctx); err != nil {
		return contracts.ComparatorResult{
			Status:     contracts.StatusFail,
			ReasonCode: "OPENAPI_INVALID",
			Message:    "OpenAPI document invalid: " + firstLine(err.Error()),
			Evidence:   []contracts.Evidence{{Kind: "file", Ref: path}},
		}
	}
	return pass("OpenAPI document %s is valid", path)
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
