package validate

import (
	"sync"

	"github.com/invopop/jsonschema"
)

// Reply is the structured reply the model is asked to produce
type Reply struct {
	Signals []ReplySignal `json:"signals" jsonschema:"required,minItems=1"`
}

// ReplySignal is one assessment in a Reply
type ReplySignal struct {
	SignalType  string  `json:"signal_type" jsonschema:"required,enum=delivery_risk,enum=cost_risk,enum=ai_efficiency"`
	SignalValue string  `json:"signal_value" jsonschema:"required,enum=LOW,enum=MEDIUM,enum=HIGH,enum=NORMAL,enum=ANOMALOUS,enum=MODERATE"`
	Confidence  float64 `json:"confidence" jsonschema:"required,minimum=0,maximum=1"`
	Explanation string  `json:"explanation" jsonschema:"required"`
}

var (
	replySchemaOnce sync.Once
	replySchema     *jsonschema.Schema
)

// ReplySchema is the JSON schema of Reply, sent as the response_format when
// the endpoint supports structured output
func ReplySchema() *jsonschema.Schema {
	replySchemaOnce.Do(func() {
		reflector := jsonschema.Reflector{
			AllowAdditionalProperties:  false,
			DoNotReference:             true,
			RequiredFromJSONSchemaTags: true,
		}
		replySchema = reflector.Reflect(&Reply{})
	})
	return replySchema
}
