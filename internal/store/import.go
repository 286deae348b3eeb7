package store

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mysokha/internal/core"
)

// ReadExport decodes a realtime-database style JSON tree. Numbers are kept
// as json.Number so amounts survive untouched.
func ReadExport(r io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return nil, fmt.Errorf("decode export: %w", err)
	}
	return tree, nil
}

// CollectionFromTree returns the records found at path inside tree.
func CollectionFromTree(tree map[string]any, path string) []Record {
	var node any = tree
	for _, seg := range strings.Split(path, "/") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[seg]
	}
	children, ok := node.(map[string]any)
	if !ok {
		return nil
	}
	records := make([]Record, 0, len(children))
	for id, v := range children {
		doc, ok := v.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, Record{ID: id, Doc: core.Document(doc)})
	}
	SortRecords(records)
	return records
}

// Import copies every record under paths from tree into st, keeping ids.
// It returns the number of records written.
func Import(ctx context.Context, st Store, tree map[string]any, paths []string) (int, error) {
	n := 0
	for _, p := range paths {
		for _, rec := range CollectionFromTree(tree, p) {
			if err := st.Put(ctx, p, rec.ID, rec.Doc); err != nil {
				return n, fmt.Errorf("import %s/%s: %w", p, rec.ID, err)
			}
			n++
		}
	}
	return n, nil
}
