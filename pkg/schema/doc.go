// Package schema checks values published by variable assignments.
//
// An assignment may declare a type string:
//
//	string  int  float  bool  object  any  [string]  [int]  [[float]]
//
// Values come from decoded JSON, so whole float64 numbers satisfy int.
//
//	sch, err := schema.ParseTypeMap(map[string]string{"count": "int", "tags": "[string]"})
//	if err := schema.Validate(sch, values); err != nil {
//	    for _, e := range schema.ValidationErrors(err) { ... }
//	}
package schema
