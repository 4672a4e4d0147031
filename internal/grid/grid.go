// Package grid expands keyfield value domains and fixed combinations into
// the full set of experiment rows for a fill request.
package grid

import (
	"expgrid/domain"
)

// Expand computes the cartesian product over every keyfield that has a
// declared value domain (keyfield declaration order, last axis fastest) and,
// when fixed combinations are supplied, merges each product row with each
// fixed row. A key present in both sides is ambiguous and fails. When no
// domain yields rows the fixed combinations are used verbatim.
//
// Every returned row carries exactly the declared keyfield set; violations
// fail with a ParameterCombinationError. Identical rows are not deduplicated
// here; insertion collapses them downstream.
func Expand(keyfields []string, domains map[string][]interface{}, fixed []map[string]interface{}) ([]map[string]interface{}, error) {
	product := productRows(keyfields, domains)

	rows := product
	if len(fixed) > 0 {
		if len(product) > 0 {
			merged := make([]map[string]interface{}, 0, len(product)*len(fixed))
			for _, p := range product {
				for _, f := range fixed {
					row := make(map[string]interface{}, len(p)+len(f))
					for k, v := range p {
						row[k] = v
					}
					for k, v := range f {
						if _, dup := row[k]; dup {
							return nil, domain.ErrParameterCombination("key %q is used more than once", k)
						}
						row[k] = v
					}
					merged = append(merged, row)
				}
			}
			rows = merged
		} else {
			rows = fixed
		}
	}

	if len(rows) == 0 {
		return nil, domain.ErrParameterCombination("no parameter combination found")
	}

	want := make(map[string]struct{}, len(keyfields))
	for _, k := range keyfields {
		want[k] = struct{}{}
	}
	for _, row := range rows {
		if len(row) != len(want) {
			return nil, domain.ErrParameterCombination(
				"combination has %d keys, want the %d declared keyfields", len(row), len(want))
		}
		for k := range row {
			if _, ok := want[k]; !ok {
				return nil, domain.ErrParameterCombination("key %q is not a declared keyfield", k)
			}
		}
	}
	return rows, nil
}

// productRows builds the N-ary cross product over the keyfields that have a
// domain. Returns nil when no keyfield has a domain or any domain is empty.
func productRows(keyfields []string, domains map[string][]interface{}) []map[string]interface{} {
	var names []string
	var axes [][]interface{}
	for _, k := range keyfields {
		if vals, ok := domains[k]; ok {
			names = append(names, k)
			axes = append(axes, vals)
		}
	}
	if len(axes) == 0 {
		return nil
	}

	total := 1
	for _, a := range axes {
		total *= len(a)
	}
	if total == 0 {
		return nil
	}

	rows := make([]map[string]interface{}, 0, total)
	idx := make([]int, len(axes))
	for {
		row := make(map[string]interface{}, len(axes))
		for i, a := range axes {
			row[names[i]] = a[idx[i]]
		}
		rows = append(rows, row)

		i := len(idx) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(axes[i]) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			break
		}
	}
	return rows
}
