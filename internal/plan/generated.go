package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/soochol/flowdeck/internal/flowdeck"
)

const generatedSchemaURL = "https://flowdeck.dev/schemas/generated-plan.json"

// generatedPlanSchema describes the reply of the plan generation service.
const generatedPlanSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "$id": "https://flowdeck.dev/schemas/generated-plan.json",
  "type": "object",
  "required": ["plan"],
  "properties": {
    "goalSummary": { "type": "string" },
    "metadata": { "type": "object" },
    "plan": {
      "type": "array",
      "items": { "$ref": "#/$defs/step" }
    }
  },
  "$defs": {
    "step": {
      "type": "object",
      "required": ["id", "tool"],
      "properties": {
        "id": { "type": "integer", "minimum": 1 },
        "description": { "type": "string" },
        "tool": { "type": "string", "minLength": 1 },
        "args": { "type": "object" },
        "dependencies": {
          "type": "array",
          "items": { "type": "integer", "minimum": 1 }
        }
      }
    }
  }
}`

var (
	schemaOnce sync.Once
	schemaVal  *jsonschema.Schema
	schemaErr  error
)

func generatedSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(generatedPlanSchema))
		if err != nil {
			schemaErr = fmt.Errorf("unmarshal generated plan schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(generatedSchemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add generated plan schema: %w", err)
			return
		}
		schemaVal, schemaErr = c.Compile(generatedSchemaURL)
	})
	return schemaVal, schemaErr
}

// DecodeGenerated checks a plan generation reply against the expected
// shape, decodes it and validates the step invariants. A plan that fails
// any check is rejected as a whole.
func DecodeGenerated(raw []byte, catalog []flowdeck.ToolInfo) (*flowdeck.GeneratedPlan, error) {
	sch, err := generatedSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(string(raw)))
	if err != nil {
		return nil, flowdeck.Violationf("generated plan", "", "invalid JSON: %v", err)
	}
	if err := sch.Validate(doc); err != nil {
		return nil, schemaViolations(err)
	}

	var gp flowdeck.GeneratedPlan
	if err := json.Unmarshal(raw, &gp); err != nil {
		return nil, fmt.Errorf("decode generated plan: %w", err)
	}
	if err := ValidateSteps(gp.Plan, catalog); err != nil {
		return nil, err
	}
	return &gp, nil
}

func schemaViolations(err error) error {
	var verr *jsonschema.ValidationError
	if !errors.As(err, &verr) {
		return flowdeck.Violationf("generated plan", "", "%v", err)
	}
	printer := message.NewPrinter(language.English)
	var errs []error
	var walk func(*jsonschema.ValidationError)
	walk = func(v *jsonschema.ValidationError) {
		if len(v.Causes) == 0 {
			errs = append(errs, flowdeck.Violationf("generated plan", "/"+strings.Join(v.InstanceLocation, "/"), "%s", v.ErrorKind.LocalizedString(printer)))
			return
		}
		for _, c := range v.Causes {
			walk(c)
		}
	}
	walk(verr)
	return errors.Join(errs...)
}
