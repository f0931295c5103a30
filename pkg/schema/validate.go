package schema

import "sort"

// Schema maps field names to their expected types.
type Schema map[string]Type

// Validate checks data against every field of schema. Missing fields are
// reported as required. Errors are ordered by field name.
func Validate(schema Schema, data map[string]any) error {
	if len(schema) == 0 {
		return nil
	}
	keys := make([]string, 0, len(schema))
	for k := range schema {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var errs []error
	for _, key := range keys {
		value, ok := data[key]
		if !ok {
			errs = append(errs, &ValidationError{Key: key, Reason: "required"})
			continue
		}
		if err := schema[key].Validate(value); err != nil {
			errs = append(errs, &ValidationError{Key: key, Reason: err.Error(), Value: value})
		}
	}
	if len(errs) > 0 {
		return &AggregateError{Errors: errs}
	}
	return nil
}
