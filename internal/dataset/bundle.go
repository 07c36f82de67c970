// Package dataset reads and writes case bundles: sqlite files holding body
// vertex arrays, optional skeletons and optional skin weights for a batch of
// cases, tagged with a schema version and a unit.
package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/bodymeasure/internal/db"
	"github.com/banshee-data/bodymeasure/internal/geometry"
	"github.com/banshee-data/bodymeasure/internal/measure"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Bundle metadata values written by this version.
const (
	SchemaVersion = "1"
	UnitsMeters   = "meters"
)

// ErrUnits is wrapped when a bundle's unit tag is not metres. Bundles are
// never rescaled.
var ErrUnits = errors.New("bundle unit tag is not meters")

// ErrNotFound is returned by Get for an unknown case ID.
var ErrNotFound = errors.New("case not found")

// Meta holds the bundle's scalar tags.
type Meta struct {
	SchemaVersion string `json:"schema_version"`
	Units         string `json:"units"`
}

// Case is one body: vertices plus optional joints and skin weights.
type Case struct {
	ID       string
	Vertices geometry.VertexSet
	Joints   *geometry.JointSet
	Weights  *mat.Dense
}

// Bundle is an open case bundle.
type Bundle struct {
	db   *db.DB
	path string
	meta Meta
}

// Create opens or creates the bundle at path and writes meta. Used by
// fixtures and converters; Open is the read path.
func Create(path string, meta Meta) (*Bundle, error) {
	d, err := db.Open(path, db.SchemaBundle)
	if err != nil {
		return nil, err
	}
	for k, v := range map[string]string{"schema_version": meta.SchemaVersion, "units": meta.Units} {
		if _, err := d.Exec(`INSERT INTO bundle_meta (key, value) VALUES (?, ?)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			d.Close()
			return nil, fmt.Errorf("writing bundle meta %s: %w", k, err)
		}
	}
	return &Bundle{db: d, path: path, meta: meta}, nil
}

// Open opens an existing bundle. A unit tag other than "meters" or an
// unsupported schema version is a contract error.
func Open(path string) (*Bundle, error) {
	d, err := db.Open(path, db.SchemaBundle)
	if err != nil {
		return nil, err
	}
	b := &Bundle{db: d, path: path}
	if err := b.readMeta(); err != nil {
		d.Close()
		return nil, err
	}
	if b.meta.Units != UnitsMeters {
		d.Close()
		return nil, &measure.ContractError{Reason: fmt.Sprintf("bundle %s has units %q", path, b.meta.Units), Err: ErrUnits}
	}
	if b.meta.SchemaVersion != SchemaVersion {
		d.Close()
		return nil, &measure.ContractError{Reason: fmt.Sprintf("bundle %s has unsupported schema version %q", path, b.meta.SchemaVersion)}
	}
	return b, nil
}

func (b *Bundle) readMeta() error {
	rows, err := b.db.Query(`SELECT key, value FROM bundle_meta`)
	if err != nil {
		return fmt.Errorf("reading bundle meta: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return fmt.Errorf("scanning bundle meta: %w", err)
		}
		switch k {
		case "schema_version":
			b.meta.SchemaVersion = v
		case "units":
			b.meta.Units = v
		}
	}
	return rows.Err()
}

// Meta returns the bundle tags.
func (b *Bundle) Meta() Meta { return b.meta }

// Path returns the file the bundle was opened from.
func (b *Bundle) Path() string { return b.path }

// Close releases the underlying database.
func (b *Bundle) Close() error { return b.db.Close() }

// Put appends c, or replaces a case with the same ID keeping its position.
func (b *Bundle) Put(c Case) error {
	if c.ID == "" {
		return errors.New("case id must not be empty")
	}
	var names, joints interface{}
	if c.Joints != nil {
		if len(c.Joints.Names) != len(c.Joints.Positions) {
			return fmt.Errorf("case %s: joint names and positions differ in length", c.ID)
		}
		enc, err := json.Marshal(c.Joints.Names)
		if err != nil {
			return fmt.Errorf("case %s: encoding joint names: %w", c.ID, err)
		}
		names = string(enc)
		joints = encodeFloats(geometry.VertexSet(c.Joints.Positions).Flat())
	}
	var cols, weights interface{}
	if c.Weights != nil {
		r, k := c.Weights.Dims()
		if r != len(c.Vertices) {
			return fmt.Errorf("case %s: weights have %d rows for %d vertices", c.ID, r, len(c.Vertices))
		}
		cols = k
		weights = encodeFloats(mat.DenseCopyOf(c.Weights).RawMatrix().Data)
	}

	_, err := b.db.Exec(`
		INSERT INTO cases (case_id, ord, vertex_count, vertices, joint_names, joints, weight_cols, weights)
		VALUES (?, (SELECT COALESCE(MAX(ord), -1) + 1 FROM cases), ?, ?, ?, ?, ?, ?)
		ON CONFLICT(case_id) DO UPDATE SET
			vertex_count = excluded.vertex_count,
			vertices     = excluded.vertices,
			joint_names  = excluded.joint_names,
			joints       = excluded.joints,
			weight_cols  = excluded.weight_cols,
			weights      = excluded.weights`,
		c.ID, len(c.Vertices), encodeFloats(c.Vertices.Flat()), names, joints, cols, weights)
	if err != nil {
		return fmt.Errorf("writing case %s: %w", c.ID, err)
	}
	return nil
}

// IDs returns every case ID in insertion order.
func (b *Bundle) IDs(ctx context.Context) ([]string, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT case_id FROM cases ORDER BY ord`)
	if err != nil {
		return nil, fmt.Errorf("listing cases: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning case id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Get loads one case. Blobs that do not match their declared shape are
// reported as contract errors wrapping ErrCorrupt.
func (b *Bundle) Get(ctx context.Context, id string) (Case, error) {
	var (
		count   int
		vblob   []byte
		names   sql.NullString
		jblob   []byte
		cols    sql.NullInt64
		wblob   []byte
		decoded Case
	)
	err := b.db.QueryRowContext(ctx, `
		SELECT vertex_count, vertices, joint_names, joints, weight_cols, weights
		FROM cases WHERE case_id = ?`, id).Scan(&count, &vblob, &names, &jblob, &cols, &wblob)
	if errors.Is(err, sql.ErrNoRows) {
		return Case{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Case{}, fmt.Errorf("reading case %s: %w", id, err)
	}

	contract := func(reason string, err error) error {
		return &measure.ContractError{Reason: fmt.Sprintf("case %s: %s", id, reason), Err: err}
	}

	if count < 0 {
		return Case{}, contract("vertices", fmt.Errorf("%w: negative vertex_count %d", ErrCorrupt, count))
	}
	if cols.Valid && cols.Int64 < 0 {
		return Case{}, contract("weights", fmt.Errorf("%w: negative weight_cols %d", ErrCorrupt, cols.Int64))
	}

	decoded.ID = id
	flat, err := decodeFloats(vblob, 3*count)
	if err != nil {
		return Case{}, contract("vertices", err)
	}
	if decoded.Vertices, err = geometry.FromFlat(flat, 3); err != nil {
		return Case{}, contract("vertices", err)
	}

	if names.Valid {
		var jn []string
		if err := json.Unmarshal([]byte(names.String), &jn); err != nil {
			return Case{}, contract("joint names", err)
		}
		flat, err := decodeFloats(jblob, 3*len(jn))
		if err != nil {
			return Case{}, contract("joints", err)
		}
		pos := make([]r3.Vec, len(jn))
		for i := range pos {
			pos[i] = r3.Vec{X: flat[3*i], Y: flat[3*i+1], Z: flat[3*i+2]}
		}
		if decoded.Joints, err = geometry.NewJointSet(jn, pos); err != nil {
			return Case{}, contract("joints", err)
		}
	}

	if cols.Valid {
		k := int(cols.Int64)
		data, err := decodeFloats(wblob, count*k)
		if err != nil {
			return Case{}, contract("weights", err)
		}
		if count > 0 && k > 0 {
			decoded.Weights = mat.NewDense(count, k, data)
		}
	}
	return decoded, nil
}

// Cases loads every case in insertion order, stopping at the first error.
func (b *Bundle) Cases(ctx context.Context) ([]Case, error) {
	ids, err := b.IDs(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Case, 0, len(ids))
	for _, id := range ids {
		c, err := b.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
