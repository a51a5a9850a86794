// Package features holds the serving-side half of the training contract: the
// categorical codec, the feature order manifest check and the vector builder.
package features

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/crop-advisor/internal/core/domain"
)

// Table is the persisted codec: for each categorical field, its allowed values in
// code order. A value's code is its index.
type Table map[string][]string

// Codec maps categorical values to integer codes and back. It is immutable after
// NewCodec returns and safe for concurrent use.
type Codec struct {
	fields map[string]fieldCodec
}

type fieldCodec struct {
	values []string
	index  map[string]int
}

// NewCodec validates the table shape against the declared categorical fields and
// builds the lookup indexes.
func NewCodec(table Table) (*Codec, error) {
	declared := make(map[string]struct{}, len(domain.CategoricalFields))
	for _, name := range domain.CategoricalFields {
		declared[name] = struct{}{}
	}

	var extra []string
	for name := range table {
		if _, ok := declared[name]; !ok {
			extra = append(extra, name)
		}
	}
	if len(extra) > 0 {
		sort.Strings(extra)
		return nil, domain.WrapError(domain.ErrCorruptArtifact, "load codec",
			fmt.Errorf("undeclared fields: %s", strings.Join(extra, ", ")))
	}

	fields := make(map[string]fieldCodec, len(domain.CategoricalFields))
	for _, name := range domain.CategoricalFields {
		values, ok := table[name]
		if !ok {
			return nil, domain.WrapError(domain.ErrCorruptArtifact, "load codec",
				fmt.Errorf("field %s is missing", name))
		}
		if len(values) == 0 {
			return nil, domain.WrapError(domain.ErrCorruptArtifact, "load codec",
				fmt.Errorf("field %s has no values", name))
		}

		fc := fieldCodec{
			values: append([]string(nil), values...),
			index:  make(map[string]int, len(values)),
		}
		for code, value := range fc.values {
			if prev, dup := fc.index[value]; dup {
				return nil, domain.WrapError(domain.ErrCorruptArtifact, "load codec",
					fmt.Errorf("field %s repeats %q at codes %d and %d", name, value, prev, code))
			}
			fc.index[value] = code
		}
		fields[name] = fc
	}

	return &Codec{fields: fields}, nil
}

// Encode returns the code of value within field.
func (c *Codec) Encode(field, value string) (int, error) {
	fc, err := c.field(field)
	if err != nil {
		return 0, err
	}
	code, ok := fc.index[value]
	if !ok {
		return 0, &domain.UnknownCategoryError{
			Field:   field,
			Value:   value,
			Allowed: append([]string(nil), fc.values...),
		}
	}
	return code, nil
}

// Decode returns the value with the given code within field.
func (c *Codec) Decode(field string, code int) (string, error) {
	fc, err := c.field(field)
	if err != nil {
		return "", err
	}
	if code < 0 || code >= len(fc.values) {
		return "", &domain.InvalidCodeError{Field: field, Code: code, Size: len(fc.values)}
	}
	return fc.values[code], nil
}

// Values returns a copy of the allowed values of field in code order.
func (c *Codec) Values(field string) []string {
	fc, ok := c.fields[field]
	if !ok {
		return nil
	}
	return append([]string(nil), fc.values...)
}

// Table returns a copy of the codec contents.
func (c *Codec) Table() Table {
	out := make(Table, len(c.fields))
	for name, fc := range c.fields {
		out[name] = append([]string(nil), fc.values...)
	}
	return out
}

func (c *Codec) field(name string) (fieldCodec, error) {
	fc, ok := c.fields[name]
	if !ok {
		return fieldCodec{}, domain.WrapError(domain.ErrCorruptArtifact, "codec lookup",
			fmt.Errorf("field %s is not categorical", name))
	}
	return fc, nil
}
