// Package namelist models Fortran-namelist configuration files and applies
// typed change/delete patches to them.
//
// A parsed Document preserves the original source text of every block it does
// not touch: serialization emits untouched blocks (and any text between
// blocks) byte-for-byte, and only re-renders blocks that were modified.
// Repeated blocks with the same name are disambiguated by a 1-based instance
// index in source order.
package namelist

import (
	"bytes"
	"fmt"
	"os"
	"strings"
)

// Document is an ordered sequence of raw text segments and namelist blocks.
type Document struct {
	Path     string
	segments []segment
}

type segment struct {
	raw   string // verbatim source text, "" when block != nil
	block *Block
}

// Block is one &name.../ group. Instance is 1-based among blocks sharing the
// same (case-insensitive) name within one document.
type Block struct {
	Name     string
	Instance int

	params []*param
	raw    string // original source text; invalidated once dirty
	dirty  bool
}

type param struct {
	name  string
	raw   string // original value text, used verbatim while unmodified
	value Value
}

// Blocks returns all blocks with the given name in source order.
func (d *Document) Blocks(name string) []*Block {
	var out []*Block
	for _, s := range d.segments {
		if s.block != nil && strings.EqualFold(s.block.Name, name) {
			out = append(out, s.block)
		}
	}
	return out
}

// Block returns the instance-th block (1-based) with the given name.
func (d *Document) Block(name string, instance int) (*Block, bool) {
	if instance <= 0 {
		instance = 1
	}
	for _, b := range d.Blocks(name) {
		if b.Instance == instance {
			return b, true
		}
	}
	return nil, false
}

// DeleteBlock removes the instance-th block with the given name and reindexes
// the remaining instances. It reports whether a block was removed.
func (d *Document) DeleteBlock(name string, instance int) bool {
	if instance <= 0 {
		instance = 1
	}
	idx := -1
	for i, s := range d.segments {
		if s.block != nil && strings.EqualFold(s.block.Name, name) && s.block.Instance == instance {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false
	}
	d.segments = append(d.segments[:idx], d.segments[idx+1:]...)
	n := 0
	for _, s := range d.segments {
		if s.block != nil && strings.EqualFold(s.block.Name, name) {
			n++
			s.block.Instance = n
		}
	}
	return true
}

// Get returns the typed value of a parameter.
func (b *Block) Get(name string) (Value, bool) {
	for _, p := range b.params {
		if strings.EqualFold(p.name, name) {
			return p.value, true
		}
	}
	return Value{}, false
}

// Set assigns a parameter, appending it if absent. The block is re-rendered
// on serialization from this point on; parameters that were not modified keep
// their original value text.
func (b *Block) Set(name string, v Value) {
	b.dirty = true
	for _, p := range b.params {
		if strings.EqualFold(p.name, name) {
			p.value = v
			p.raw = ""
			return
		}
	}
	b.params = append(b.params, &param{name: name, value: v})
}

// Delete removes a parameter if present. Deleting an absent parameter is a
// no-op and does not mark the block dirty.
func (b *Block) Delete(name string) bool {
	for i, p := range b.params {
		if strings.EqualFold(p.name, name) {
			b.params = append(b.params[:i], b.params[i+1:]...)
			b.dirty = true
			return true
		}
	}
	return false
}

// Params returns parameter names in source order.
func (b *Block) Params() []string {
	out := make([]string, len(b.params))
	for i, p := range b.params {
		out[i] = p.name
	}
	return out
}

// Serialize renders the document. Untouched blocks and inter-block text are
// emitted byte-for-byte; modified blocks are re-rendered with their original
// parameter order.
func (d *Document) Serialize() []byte {
	var buf bytes.Buffer
	for _, s := range d.segments {
		if s.block == nil {
			buf.WriteString(s.raw)
			continue
		}
		b := s.block
		if !b.dirty {
			buf.WriteString(b.raw)
			continue
		}
		buf.WriteString("&")
		buf.WriteString(b.Name)
		buf.WriteString("\n")
		for _, p := range b.params {
			buf.WriteString("    ")
			buf.WriteString(p.name)
			buf.WriteString(" = ")
			if p.raw != "" {
				buf.WriteString(p.raw)
			} else {
				buf.WriteString(p.value.Render())
			}
			buf.WriteString("\n")
		}
		buf.WriteString("/\n")
	}
	return buf.Bytes()
}

// Write serializes the document to path. The file the document was parsed
// from is never rewritten in place by the engine; callers pass the working
// copy destination here.
func (d *Document) Write(path string) error {
	if err := os.WriteFile(path, d.Serialize(), 0644); err != nil {
		return fmt.Errorf("write namelist %s: %w", path, err)
	}
	return nil
}
