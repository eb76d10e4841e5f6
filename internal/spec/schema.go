package spec

import (
	_ "embed"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaSource string

// checkSchema validates a decoded case document against #Case.
func checkSchema(root *yaml.Node) error {
	var doc any
	if err := root.Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode case: %w", err)
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling case schema: %w", err)
	}

	value := ctx.Encode(doc)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encoding case: %w", err)
	}

	def := schema.LookupPath(cue.ParsePath("#Case"))
	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("case does not match schema: %w", err)
	}
	return nil
}
