// Package router maps institution names to their extractors.
package router

import (
	"errors"
	"fmt"
	"slices"

	"github.com/JakeFAU/professor-crawler/internal/extract"
	"github.com/JakeFAU/professor-crawler/internal/extract/carleton"
	"github.com/JakeFAU/professor-crawler/internal/extract/uottawa"
	"github.com/JakeFAU/professor-crawler/internal/extract/waterloo"
	"github.com/JakeFAU/professor-crawler/internal/professor"
)

// ErrUnsupportedUniversity is returned for names with no extractor.
var ErrUnsupportedUniversity = errors.New("unsupported university")

var constructors = map[string]func(extract.Deps) professor.Extractor{
	uottawa.Name:  func(d extract.Deps) professor.Extractor { return uottawa.New(d) },
	carleton.Name: func(d extract.Deps) professor.Extractor { return carleton.New(d) },
	waterloo.Name: func(d extract.Deps) professor.Extractor { return waterloo.New(d) },
}

// Route returns the extractor registered for name.
func Route(name string, deps extract.Deps) (professor.Extractor, error) {
	build, ok := constructors[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedUniversity, name)
	}
	return build(deps), nil
}

// Supported lists the routed institution names in sorted order.
func Supported() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
