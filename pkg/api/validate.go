package api

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const createCheckoutSchema = `{
	"type": "object",
	"required": ["shipping", "lines"],
	"properties": {
		"shipping": {
			"type": "object",
			"required": ["full_name", "email", "phone", "address", "city", "state", "zip_code", "country"],
			"properties": {
				"full_name": {"type": "string", "minLength": 1},
				"email": {"type": "string", "minLength": 3},
				"phone": {"type": "string", "minLength": 1},
				"address": {"type": "string", "minLength": 1},
				"city": {"type": "string", "minLength": 1},
				"state": {"type": "string", "minLength": 1},
				"zip_code": {"type": "string", "minLength": 1},
				"country": {"type": "string", "minLength": 1}
			}
		},
		"lines": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["product_id", "quantity"],
				"properties": {
					"product_id": {"type": "string", "minLength": 1},
					"quantity": {"type": "integer", "minimum": 1}
				}
			}
		}
	}
}`

const verifyPaymentSchema = `{
	"type": "object",
	"required": ["order_id", "proof"],
	"properties": {
		"order_id": {"type": "string", "minLength": 1},
		"proof": {
			"type": "object",
			"required": ["kind"],
			"properties": {
				"kind": {"enum": ["hosted_signature", "onchain_transfer"]},
				"gateway_order_id": {"type": "string"},
				"gateway_payment_id": {"type": "string"},
				"signature": {"type": "string"},
				"tx_hash": {"type": "string"},
				"wallet_address": {"type": "string"},
				"network": {"type": "string"}
			}
		}
	}
}`

var (
	createCheckoutValidator = jsonschema.MustCompileString("create-checkout.json", createCheckoutSchema)
	verifyPaymentValidator  = jsonschema.MustCompileString("verify-payment.json", verifyPaymentSchema)
)

// decodeValid unmarshals the request body into dst after validating it
// against the given schema.
func decodeValid(body []byte, schema *jsonschema.Schema, dst any) error {
	var generic any
	if err := json.Unmarshal(body, &generic); err != nil {
		return fmt.Errorf("malformed JSON: %w", err)
	}
	if err := schema.Validate(generic); err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}
