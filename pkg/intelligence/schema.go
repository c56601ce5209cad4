package intelligence

import (
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
)

var schemaReflector = jsonschema.Reflector{
	Anonymous:                 true,
	AllowAdditionalProperties: true,
	DoNotReference:            true,
	ExpandedStruct:            true,
}

// schemaJSON renders the JSON schema of v for inclusion in a prompt.
func schemaJSON(v any) string {
	schema := schemaReflector.Reflect(v)
	b, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(b)
}

var (
	analysisSchema = sync.OnceValue(func() string { return schemaJSON(&AnalysisResult{}) })
	companySchema  = sync.OnceValue(func() string { return schemaJSON(&CompanyDetails{}) })
)
