package backup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/valyala/fastjson"

	"github.com/ersonp/libris/internal/domain/ports"
)

// parsedCollection is one collection of a dump, validated and decoded.
type parsedCollection struct {
	name string
	rows []map[string]any
}

// read loads, decompresses and validates a dump file.
func (f *Facility) read(path string) ([]parsedCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, corrupted(path, err)
	}
	if strings.HasSuffix(path, extZstd) {
		data, err = f.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, corrupted(path, fmt.Errorf("decompressing: %w", err))
		}
	}

	p := f.parsers.Get()
	defer f.parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, corrupted(path, fmt.Errorf("parsing: %w", err))
	}
	collections, err := decodeDump(v)
	if err != nil {
		return nil, corrupted(path, err)
	}
	return collections, nil
}

func decodeDump(v *fastjson.Value) ([]parsedCollection, error) {
	if v.Type() != fastjson.TypeObject {
		return nil, errors.New("dump is not an object")
	}
	if version := v.GetInt("version"); version != dumpVersion {
		return nil, fmt.Errorf("unsupported dump version %d", version)
	}
	items := v.Get("collections")
	if items == nil || items.Type() != fastjson.TypeArray {
		return nil, errors.New("dump has no collections array")
	}

	arr, _ := items.Array()
	out := make([]parsedCollection, 0, len(arr))
	for i, item := range arr {
		name := string(item.GetStringBytes("name"))
		if name == "" {
			return nil, fmt.Errorf("collection %d has no name", i)
		}
		rowsVal := item.Get("rows")
		if rowsVal == nil || rowsVal.Type() != fastjson.TypeArray {
			return nil, fmt.Errorf("collection %s has no rows array", name)
		}
		rows, _ := rowsVal.Array()

		pc := parsedCollection{name: name, rows: make([]map[string]any, 0, len(rows))}
		for j, row := range rows {
			decoded, err := decodeRow(row)
			if err != nil {
				return nil, fmt.Errorf("collection %s row %d: %w", name, j, err)
			}
			pc.rows = append(pc.rows, decoded)
		}
		out = append(out, pc)
	}
	return out, nil
}

// decodeRow turns a flat JSON object into column -> value. Integers stay
// int64 so large values survive the round trip.
func decodeRow(v *fastjson.Value) (map[string]any, error) {
	obj, err := v.Object()
	if err != nil {
		return nil, err
	}

	row := make(map[string]any, obj.Len())
	var rowErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if rowErr != nil {
			return
		}
		col := string(key)
		switch val.Type() {
		case fastjson.TypeNull:
			row[col] = nil
		case fastjson.TypeString:
			b, _ := val.StringBytes()
			row[col] = string(b)
		case fastjson.TypeTrue:
			row[col] = true
		case fastjson.TypeFalse:
			row[col] = false
		case fastjson.TypeNumber:
			if n, err := val.Int64(); err == nil {
				row[col] = n
				return
			}
			fl, err := val.Float64()
			if err != nil || math.IsInf(fl, 0) {
				rowErr = fmt.Errorf("column %s: bad number", col)
				return
			}
			row[col] = fl
		default:
			rowErr = fmt.Errorf("column %s: unexpected %s value", col, val.Type())
		}
	})
	if rowErr != nil {
		return nil, rowErr
	}
	return row, nil
}

// insert writes parsed collections. Must run inside a transaction.
func (f *Facility) insert(ctx context.Context, path string, collections []parsedCollection, ignoreUnknownFields bool) error {
	for _, c := range collections {
		if !slices.Contains(f.cfg.Collections, c.name) {
			if ignoreUnknownFields {
				f.logger.WarnContext(ctx, "skipping unknown collection", "collection", c.name, "path", path)
				continue
			}
			return corrupted(path, fmt.Errorf("unknown collection %q", c.name))
		}
		if len(c.rows) == 0 {
			continue
		}

		columns, err := f.store.CollectionColumns(ctx, c.name)
		if err != nil {
			return fmt.Errorf("reading columns of %s: %w", c.name, err)
		}
		known := make(map[string]bool, len(columns))
		for _, col := range columns {
			known[col] = true
		}

		for _, row := range c.rows {
			for col := range row {
				if known[col] {
					continue
				}
				if !ignoreUnknownFields {
					return corrupted(path, fmt.Errorf("collection %s: unknown column %q", c.name, col))
				}
				delete(row, col)
			}
		}

		if err := f.store.InsertRows(ctx, c.name, c.rows); err != nil {
			return corrupted(path, fmt.Errorf("loading %s: %w", c.name, err))
		}
	}
	return nil
}

func corrupted(path string, err error) error {
	return &ports.BackupCorruptedError{Path: path, Err: err}
}
