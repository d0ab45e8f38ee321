package namelist

import "fmt"

// OpKind discriminates patch operations.
type OpKind string

const (
	OpChange OpKind = "change"
	OpDelete OpKind = "delete"
)

// Op is one declared patch operation against a namelist file.
//
// An empty Kind means change. Instance selects among repeated blocks of the
// same name, 1-based in source order; zero means the first instance. Type
// applies to Change only and defaults to string.
type Op struct {
	Kind     OpKind    `yaml:"op" json:"op"`
	File     string    `yaml:"file" json:"file"`
	Block    string    `yaml:"block" json:"block"`
	Instance int       `yaml:"instance,omitempty" json:"instance,omitempty"`
	Param    string    `yaml:"param" json:"param"`
	Type     ValueType `yaml:"type,omitempty" json:"type,omitempty"`
	Value    string    `yaml:"value,omitempty" json:"value,omitempty"`
}

// Apply processes operations strictly in input order against a single
// document. Change fails with *TargetNotFoundError when the named
// (block, instance) is absent; Delete is idempotent.
func Apply(doc *Document, ops []Op) error {
	for _, op := range ops {
		if err := applyOne(doc, op); err != nil {
			return err
		}
	}
	return nil
}

func applyOne(doc *Document, op Op) error {
	instance := op.Instance
	if instance <= 0 {
		instance = 1
	}
	kind := op.Kind
	if kind == "" {
		kind = OpChange
	}
	switch kind {
	case OpChange:
		b, ok := doc.Block(op.Block, instance)
		if !ok {
			return &TargetNotFoundError{File: op.File, Block: op.Block, Instance: instance, Param: op.Param}
		}
		v, err := Coerce(op.Type, op.Value)
		if err != nil {
			return fmt.Errorf("patch %s/%s/%s: %w", op.File, op.Block, op.Param, err)
		}
		b.Set(op.Param, v)
		return nil
	case OpDelete:
		if b, ok := doc.Block(op.Block, instance); ok {
			b.Delete(op.Param)
		}
		return nil
	}
	return fmt.Errorf("unknown patch operation %q", kind)
}
