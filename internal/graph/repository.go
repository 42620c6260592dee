package graph

import (
	"database/sql"
	"fmt"
	"time"
)

// Repository is the persistence boundary the Pipeline Evaluator and
// Invalidation Controller use to read the Block Catalogue and Block Graph.
// It is a thin hand-written SQL layer: no ORM, no query builder library.
type Repository interface {

	// GetBlockInstance fetches a single block instance by id.
	GetBlockInstance(id int) (*BlockInstance, error)

	// GetBlockType fetches a single block type by id.
	GetBlockType(id int) (*BlockType, error)

	// FindInputImageUuidByFilename looks up an input_images row by
	// original filename, for the Load Image block kind.
	FindInputImageUuidByFilename(filename string) (string, error)

	// ListProjectBlocks fetches every block instance belonging to a
	// project in one query, for IC's downstream-closure walk.
	ListProjectBlocks(idProject int) ([]BlockInstance, error)

	// TerminalBlock returns the project's unique terminal block instance
	// (catalogue row with outputs IS NULL).
	TerminalBlock(idProject int) (*BlockInstance, error)

	// SetEnabled sets a block instance's enabled flag to the given value.
	SetEnabled(id int, enabled bool) error

	// InsertInputImage records a newly-uploaded original under uuid.
	InsertInputImage(uuid, filename string) error
}

// NewRepository builds a Repository backed by the given database handle.
func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

type repository struct {
	db *sql.DB
}

func (r *repository) GetBlockInstance(id int) (*BlockInstance, error) {

	row := r.db.QueryRow(`
		SELECT id, idproject, idblock, connections, output_value, enabled
		FROM blocks WHERE id = ?`, id)

	var b BlockInstance
	var enabled sql.NullBool
	if err := row.Scan(&b.Id, &b.IdProject, &b.IdBlock, &b.Connections, &b.OutputValue, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("block instance %d not found", id)
		}
		return nil, fmt.Errorf("failed to query block instance %d: %v", id, err)
	}

	if enabled.Valid {
		b.Enabled = &enabled.Bool
	}

	return &b, nil
}

func (r *repository) GetBlockType(id int) (*BlockType, error) {

	row := r.db.QueryRow(`
		SELECT id, name, command, parameter_template, parameter_mappings, gui_fields, outputs
		FROM blocks_catalogue WHERE id = ?`, id)

	var t BlockType
	var outputs sql.NullString
	if err := row.Scan(&t.Id, &t.Name, &t.Command, &t.ParameterTemplate, &t.ParameterMappings, &t.GuiFields, &outputs); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("block type %d not found", id)
		}
		return nil, fmt.Errorf("failed to query block type %d: %v", id, err)
	}

	if outputs.Valid {
		t.Outputs = &outputs.String
	}

	return &t, nil
}

func (r *repository) FindInputImageUuidByFilename(filename string) (string, error) {

	row := r.db.QueryRow(`SELECT uuid FROM input_images WHERE original_filename = ?`, filename)

	var uuid string
	if err := row.Scan(&uuid); err != nil {
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("no input image found with filename %q", filename)
		}
		return "", fmt.Errorf("failed to query input image by filename %q: %v", filename, err)
	}

	return uuid, nil
}

func (r *repository) ListProjectBlocks(idProject int) ([]BlockInstance, error) {

	rows, err := r.db.Query(`
		SELECT id, idproject, idblock, connections, output_value, enabled
		FROM blocks WHERE idproject = ?`, idProject)
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks for project %d: %v", idProject, err)
	}
	defer rows.Close()

	var out []BlockInstance
	for rows.Next() {
		var b BlockInstance
		var enabled sql.NullBool
		if err := rows.Scan(&b.Id, &b.IdProject, &b.IdBlock, &b.Connections, &b.OutputValue, &enabled); err != nil {
			return nil, fmt.Errorf("failed to scan block row for project %d: %v", idProject, err)
		}
		if enabled.Valid {
			b.Enabled = &enabled.Bool
		}
		out = append(out, b)
	}

	return out, rows.Err()
}

func (r *repository) TerminalBlock(idProject int) (*BlockInstance, error) {

	row := r.db.QueryRow(`
		SELECT b.id, b.idproject, b.idblock, b.connections, b.output_value, b.enabled
		FROM blocks b
		JOIN blocks_catalogue c ON c.id = b.idblock
		WHERE b.idproject = ? AND c.outputs IS NULL
		LIMIT 1`, idProject)

	var b BlockInstance
	var enabled sql.NullBool
	if err := row.Scan(&b.Id, &b.IdProject, &b.IdBlock, &b.Connections, &b.OutputValue, &enabled); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("no terminal block found for project %d", idProject)
		}
		return nil, fmt.Errorf("failed to query terminal block for project %d: %v", idProject, err)
	}

	if enabled.Valid {
		b.Enabled = &enabled.Bool
	}

	return &b, nil
}

func (r *repository) InsertInputImage(uuid, filename string) error {

	if _, err := r.db.Exec(`
		INSERT INTO input_images (uuid, original_filename, upload_timestamp)
		VALUES (?, ?, ?)`, uuid, filename, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to record uploaded image %s (%q): %v", uuid, filename, err)
	}

	return nil
}

func (r *repository) SetEnabled(id int, enabled bool) error {

	res, err := r.db.Exec(`UPDATE blocks SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("failed to set enabled=%t on block %d: %v", enabled, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to confirm update for block %d: %v", id, err)
	}

	if n == 0 {
		return fmt.Errorf("block %d not found", id)
	}

	return nil
}
