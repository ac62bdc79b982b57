// Package validation provides input validation for pipekit configuration,
// YAML pipeline definitions and API requests.
//
// It supports both struct tag validation (using the validator library) and
// programmatic validation with error collection. Both return INVALID_INPUT
// AppErrors whose "fields" detail lists each failing field.
//
// # Struct Tag Validation
//
//	type TaskSpec struct {
//	    Name      string `yaml:"name" validate:"required,portname"`
//	    Component string `yaml:"component" validate:"required"`
//	}
//	err := validation.Validate(spec)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Required("pipeline", name).Min("max_parallel", n, 0)
//	if err := v.Validate(); err != nil { ... }
package validation
