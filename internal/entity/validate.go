package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks an [Entity] for required fields and valid kinds.
//
// Rules:
//   - Classname must be non-empty and contain no whitespace.
//   - Kind must be a recognised [Kind].
//   - Every helper must have a recognised [HelperKind].
//   - Every definition must have a recognised [ValueKind]; choices are only
//     allowed on choices keyvalues and flags only on flags keyvalues.
func Validate(e *Entity) error {
	var errs []error

	if e.Classname == "" {
		errs = append(errs, errors.New("classname must not be empty"))
	} else if strings.ContainsAny(e.Classname, " \t\r\n") {
		errs = append(errs, fmt.Errorf("classname %q must not contain whitespace", e.Classname))
	}

	if !e.Kind.IsValid() {
		errs = append(errs, fmt.Errorf("kind %q is not a recognised entity kind", e.Kind))
	}

	for i, h := range e.Helpers {
		if !h.Kind.IsValid() {
			errs = append(errs, fmt.Errorf("helpers[%d]: kind %q is not a recognised helper", i, h.Kind))
		}
	}

	for ci, cat := range e.Categories() {
		for _, name := range cat.Names() {
			alts, _ := cat.Get(name)
			if len(alts) == 0 {
				errs = append(errs, fmt.Errorf("%s.%s: no definitions", CategoryNames[ci], name))
			}
			for _, alt := range alts.Sorted() {
				if err := validateDefinition(alt.Def); err != nil {
					errs = append(errs, fmt.Errorf("%s.%s%s: %w", CategoryNames[ci], name, alt.Tags, err))
				}
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

func validateDefinition(d Definition) error {
	if !d.Kind.IsValid() {
		return fmt.Errorf("type %q is not a recognised value type", d.Kind)
	}
	if len(d.Choices) > 0 && d.Kind != ValueChoices {
		return fmt.Errorf("choices given for %s value", d.Kind)
	}
	if len(d.Flags) > 0 && d.Kind != ValueFlags {
		return fmt.Errorf("flags given for %s value", d.Kind)
	}
	return nil
}
