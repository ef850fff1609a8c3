package catalog

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS compounds (
		list TEXT NOT NULL,
		position INTEGER NOT NULL,
		name TEXT NOT NULL,
		info TEXT,
		PRIMARY KEY (list, name)
	);

	CREATE TABLE IF NOT EXISTS ions (
		list TEXT NOT NULL,
		compound TEXT NOT NULL,
		position INTEGER NOT NULL,
		label TEXT NOT NULL,
		PRIMARY KEY (list, compound, label)
	);
`

// CreateSQLiteSchema creates the catalog tables if they do not exist
func CreateSQLiteSchema(db *sql.DB) error {
	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create catalog tables: %w", err)
	}
	return nil
}

// OpenSQLite loads ion list name from the SQLite database at path.
// The database is opened read-only and must exist.
func OpenSQLite(path string, name string) (*Catalog, error) {
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	defer db.Close()
	return LoadSQLite(db, name)
}

// LoadSQLite reads ion list name from a catalog database
func LoadSQLite(db *sql.DB, name string) (*Catalog, error) {
	rows, err := db.Query(
		`SELECT name, info FROM compounds WHERE list = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query compounds: %w", err)
	}
	defer rows.Close()

	cat := &Catalog{Name: name}
	compIdx := make(map[string]int)
	for rows.Next() {
		var comp Compound
		var info sql.NullString
		if err := rows.Scan(&comp.Name, &info); err != nil {
			return nil, err
		}
		if info.Valid && info.String != "" {
			if err := json.Unmarshal([]byte(info.String), &comp.Info); err != nil {
				return nil, fmt.Errorf("compound %q: invalid info: %w", comp.Name, err)
			}
		}
		comp.Ions = []Ion{}
		compIdx[comp.Name] = len(cat.Compounds)
		cat.Compounds = append(cat.Compounds, comp)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cat.Compounds) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrUnknownList, name)
	}

	ionRows, err := db.Query(
		`SELECT compound, label FROM ions WHERE list = ? ORDER BY compound, position`, name)
	if err != nil {
		return nil, fmt.Errorf("failed to query ions: %w", err)
	}
	defer ionRows.Close()
	for ionRows.Next() {
		var compName, label string
		if err := ionRows.Scan(&compName, &label); err != nil {
			return nil, err
		}
		i, ok := compIdx[compName]
		if !ok {
			// Ions of a compound that is not in the list are ignored
			continue
		}
		cat.Compounds[i].Ions = append(cat.Compounds[i].Ions, Ion{Label: label})
	}
	if err := ionRows.Err(); err != nil {
		return nil, err
	}

	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return cat, nil
}

// SaveSQLite stores the catalog in a database, replacing a list with the
// same name. Results attached to ions are not stored.
func SaveSQLite(db *sql.DB, cat *Catalog) (err error) {
	if err := CreateSQLiteSchema(db); err != nil {
		return err
	}
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM ions WHERE list = ?`, cat.Name); err != nil {
		return err
	}
	if _, err = tx.Exec(`DELETE FROM compounds WHERE list = ?`, cat.Name); err != nil {
		return err
	}

	compoundStmt, err := tx.Prepare(`INSERT INTO compounds (list, position, name, info) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare compound insert: %w", err)
	}
	defer compoundStmt.Close()
	ionStmt, err := tx.Prepare(`INSERT INTO ions (list, compound, position, label) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare ion insert: %w", err)
	}
	defer ionStmt.Close()

	for i, comp := range cat.Compounds {
		var info []byte
		if len(comp.Info) > 0 {
			if info, err = json.Marshal(comp.Info); err != nil {
				return err
			}
		}
		if _, err = compoundStmt.Exec(cat.Name, i, comp.Name, string(info)); err != nil {
			return fmt.Errorf("failed to insert compound %q: %w", comp.Name, err)
		}
		for j, ion := range comp.Ions {
			if _, err = ionStmt.Exec(cat.Name, comp.Name, j, ion.Label); err != nil {
				return fmt.Errorf("failed to insert ion %q of %q: %w", ion.Label, comp.Name, err)
			}
		}
	}
	return tx.Commit()
}
