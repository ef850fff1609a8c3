package catalog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LoadJSON reads the ion list called name from an ion lists JSON document:
//
//	{"<list>": {"<compound>": {"ions": [59.0139, ...], "info": ["..."]}, ...}, ...}
//
// Compounds and ions keep the order of the document. The literal text of a
// numeric ion is used as its label. A compound without "ions" gets an
// empty ion set.
func LoadJSON(r io.Reader, name string) (*Catalog, error) {
	d := json.NewDecoder(r)
	d.UseNumber()

	if err := expectDelim(d, '{'); err != nil {
		return nil, err
	}
	var cat *Catalog
	for d.More() {
		key, err := readKey(d)
		if err != nil {
			return nil, err
		}
		if key != name || cat != nil {
			if err := skipValue(d); err != nil {
				return nil, err
			}
			continue
		}
		cat, err = readCompounds(d, name)
		if err != nil {
			return nil, fmt.Errorf("ion list %q: %w", name, err)
		}
	}
	if err := expectDelim(d, '}'); err != nil {
		return nil, err
	}
	if cat == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// ListNames returns the names of all ion lists in a JSON document, in
// document order
func ListNames(r io.Reader) ([]string, error) {
	d := json.NewDecoder(r)
	if err := expectDelim(d, '{'); err != nil {
		return nil, err
	}
	var names []string
	for d.More() {
		key, err := readKey(d)
		if err != nil {
			return nil, err
		}
		names = append(names, key)
		if err := skipValue(d); err != nil {
			return nil, err
		}
	}
	return names, expectDelim(d, '}')
}

// OpenFile loads ion list name from a catalog file. Files with extension
// .db, .sqlite or .sqlite3 are read as SQLite databases, all others as JSON.
func OpenFile(path string, name string) (*Catalog, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return OpenSQLite(path, name)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadJSON(f, name)
}

func readCompounds(d *json.Decoder, name string) (*Catalog, error) {
	if err := expectDelim(d, '{'); err != nil {
		return nil, err
	}
	cat := &Catalog{Name: name}
	for d.More() {
		compName, err := readKey(d)
		if err != nil {
			return nil, err
		}
		comp, err := readCompound(d, compName)
		if err != nil {
			return nil, fmt.Errorf("compound %q: %w", compName, err)
		}
		cat.Compounds = append(cat.Compounds, comp)
	}
	return cat, expectDelim(d, '}')
}

func readCompound(d *json.Decoder, name string) (Compound, error) {
	comp := Compound{Name: name, Ions: []Ion{}}
	if err := expectDelim(d, '{'); err != nil {
		return comp, err
	}
	for d.More() {
		key, err := readKey(d)
		if err != nil {
			return comp, err
		}
		switch key {
		case "ions":
			var values []any
			if err := d.Decode(&values); err != nil {
				return comp, err
			}
			for _, v := range values {
				// Entries that are neither numbers nor strings carry no mass
				switch v := v.(type) {
				case json.Number:
					comp.Ions = append(comp.Ions, Ion{Label: v.String()})
				case string:
					comp.Ions = append(comp.Ions, Ion{Label: v})
				}
			}
		case "info":
			var values []any
			if err := d.Decode(&values); err != nil {
				return comp, err
			}
			for _, v := range values {
				if s, ok := v.(string); ok {
					comp.Info = append(comp.Info, s)
				}
			}
		default:
			if err := skipValue(d); err != nil {
				return comp, err
			}
		}
	}
	return comp, expectDelim(d, '}')
}

func expectDelim(d *json.Decoder, delim json.Delim) error {
	t, err := d.Token()
	if err != nil {
		return err
	}
	if got, ok := t.(json.Delim); !ok || got != delim {
		return fmt.Errorf("catalog: expected %q in JSON, got %v", delim, t)
	}
	return nil
}

func readKey(d *json.Decoder) (string, error) {
	t, err := d.Token()
	if err != nil {
		return "", err
	}
	key, ok := t.(string)
	if !ok {
		return "", fmt.Errorf("catalog: expected object key in JSON, got %v", t)
	}
	return key, nil
}

func skipValue(d *json.Decoder) error {
	var raw json.RawMessage
	return d.Decode(&raw)
}
