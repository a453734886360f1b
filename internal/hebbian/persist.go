package hebbian

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"gonum.org/v1/gonum/mat"

	"github.com/axo-lotto/dae-gov-sub013/internal/logging"
	"github.com/axo-lotto/dae-gov-sub013/internal/types"
)

func init() {
	sqlite_vec.Auto() // registers the vec0 virtual table with go-sqlite3
}

// sqlDB wraps the SQLite handle plus vec-index bookkeeping.
type sqlDB struct {
	conn   *sql.DB
	path   string
	vecDim int
}

func (d *sqlDB) close() error {
	return d.conn.Close()
}

// Open attaches durable storage under statePath and loads any persisted
// coupling weights and patterns. On failure the store stays fully usable in
// memory for the session; the caller logs the returned error and moves on.
func (s *Store) Open(statePath string) error {
	dbPath := filepath.Join(statePath, "system", "hebbian.db")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	db := &sqlDB{conn: conn, path: dbPath, vecDim: len(s.organs)}
	if err := db.migrate(); err != nil {
		conn.Close()
		return fmt.Errorf("failed to migrate: %w", err)
	}

	// Check whether the sqlite-vec extension is available.
	var vecVersion string
	if err := conn.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		logging.Warn("hebbian", "sqlite-vec not available: %v, pattern queries fall back to full scan", err)
	} else {
		logging.Info("hebbian", "sqlite-vec %s loaded", vecVersion)
		if err := db.ensureVecTable(); err != nil {
			logging.Warn("hebbian", "vec index unavailable: %v", err)
		} else {
			s.vecAvailable = true
		}
	}

	s.db = db
	if err := s.load(); err != nil {
		// The schema exists, so later flushes can still land; keep the handle.
		logging.Warn("hebbian", "Partial load of persisted state: %v", err)
	}

	if s.vecAvailable {
		if err := s.syncVecIndex(); err != nil {
			logging.Warn("hebbian", "vec index backfill failed: %v", err)
		}
	}
	return nil
}

func (d *sqlDB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS coupling (
		organ_a TEXT NOT NULL,
		organ_b TEXT NOT NULL,
		weight REAL NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (organ_a, organ_b)
	);

	CREATE TABLE IF NOT EXISTS patterns (
		id TEXT PRIMARY KEY,
		signature TEXT NOT NULL,
		output TEXT NOT NULL,
		confidence REAL NOT NULL,
		activations TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_created ON patterns(created_at);
	CREATE INDEX IF NOT EXISTS idx_patterns_signature ON patterns(signature);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`

	if _, err := d.conn.Exec(schema); err != nil {
		return err
	}
	return nil
}

// ensureVecTable creates the pattern_vec virtual table. Integer rowids mirror
// patterns.rowid; the pattern id rides along as an auxiliary column, avoiding
// vec0's TEXT PRIMARY KEY partitioning behaviour which breaks KNN queries.
func (d *sqlDB) ensureVecTable() error {
	_, err := d.conn.Exec(fmt.Sprintf(`
	CREATE VIRTUAL TABLE IF NOT EXISTS pattern_vec USING vec0(
		embedding float[%d],
		+pattern_id TEXT
	)`, d.vecDim))
	if err != nil {
		return fmt.Errorf("failed to create pattern_vec(float[%d]): %w", d.vecDim, err)
	}
	return nil
}

// load reads persisted state into memory. Runs once from Open; the lock is
// held across the reads, same as every other mutation path.
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pairs, err := s.loadCoupling()
	if err != nil {
		return err
	}
	if err := s.loadPatterns(); err != nil {
		return err
	}
	logging.Info("hebbian", "Loaded %d coupling pairs, %d patterns", pairs, len(s.patterns))
	return nil
}

func (s *Store) loadCoupling() (int, error) {
	rows, err := s.db.conn.Query(`SELECT organ_a, organ_b, weight FROM coupling`)
	if err != nil {
		return 0, fmt.Errorf("failed to query coupling: %w", err)
	}
	defer rows.Close()

	loaded := 0
	for rows.Next() {
		var a, b string
		var w float64
		if err := rows.Scan(&a, &b, &w); err != nil {
			continue
		}
		i, iOK := s.index[a]
		j, jOK := s.index[b]
		if !iOK || !jOK {
			logging.Debug("hebbian", "Skipping coupling row for unknown organs %s/%s", a, b)
			continue
		}
		s.coupling.SetSym(i, j, w)
		loaded++
	}
	return loaded, rows.Err()
}

func (s *Store) loadPatterns() error {
	rows, err := s.db.conn.Query(`
		SELECT id, signature, output, confidence, activations, created_at
		FROM patterns
		ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec types.PatternRecord
		var actsJSON string
		if err := rows.Scan(&rec.ID, &rec.Signature, &rec.Output,
			&rec.Confidence, &actsJSON, &rec.CreatedAt); err != nil {
			continue
		}
		if err := json.Unmarshal([]byte(actsJSON), &rec.Activations); err != nil {
			continue
		}
		s.patterns = append(s.patterns, &rec)
		s.byID[rec.ID] = &rec
	}

	// A lowered capacity between runs shrinks the history on load; the
	// overflow deletes on the next flush.
	s.evictOverflowLocked()
	return rows.Err()
}

// syncVecIndex rebuilds pattern_vec when it disagrees with the patterns
// table (first run after vec became available, or a crash between flushes).
func (s *Store) syncVecIndex() error {
	var vecCount, patCount int
	if err := s.db.conn.QueryRow(`SELECT COUNT(*) FROM pattern_vec`).Scan(&vecCount); err != nil {
		return err
	}
	if err := s.db.conn.QueryRow(`SELECT COUNT(*) FROM patterns`).Scan(&patCount); err != nil {
		return err
	}
	if vecCount == patCount {
		return nil
	}

	rows, err := s.db.conn.Query(`SELECT rowid, id, activations FROM patterns`)
	if err != nil {
		return err
	}

	type vecRow struct {
		rowid      int64
		id         string
		serialized []byte
	}
	var pending []vecRow
	for rows.Next() {
		var rowid int64
		var id, actsJSON string
		if err := rows.Scan(&rowid, &id, &actsJSON); err != nil {
			continue
		}
		var acts map[string]float64
		if err := json.Unmarshal([]byte(actsJSON), &acts); err != nil {
			continue
		}
		serialized, serErr := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(s.vectorOf(acts))))
		if serErr != nil {
			continue
		}
		pending = append(pending, vecRow{rowid: rowid, id: id, serialized: serialized})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	tx, err := s.db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM pattern_vec`); err != nil {
		return err
	}
	for _, vr := range pending {
		if _, err := tx.Exec(`INSERT INTO pattern_vec(rowid, embedding, pattern_id) VALUES (?, ?, ?)`,
			vr.rowid, vr.serialized, vr.id); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	logging.Info("hebbian", "Rebuilt vec index with %d patterns", len(pending))
	return nil
}

// Flush writes dirty coupling state and queued pattern changes to disk. A
// store without persistence, or with nothing queued, returns nil. On write
// failure the queued changes are put back for the next attempt; in-memory
// state is never affected.
func (s *Store) Flush() error {
	if s.db == nil {
		return nil
	}

	s.mu.Lock()
	if !s.dirty && len(s.pendingAdds) == 0 && len(s.pendingEvicts) == 0 {
		s.mu.Unlock()
		return nil
	}
	snap := mat.NewSymDense(len(s.organs), nil)
	snap.CopySym(s.coupling)
	adds := s.pendingAdds
	evicts := s.pendingEvicts
	couplingDirty := s.dirty
	s.pendingAdds = nil
	s.pendingEvicts = nil
	s.dirty = false
	s.mu.Unlock()

	err := s.writeState(snap, adds, evicts, couplingDirty)
	if err != nil {
		s.mu.Lock()
		s.pendingAdds = append(adds, s.pendingAdds...)
		s.pendingEvicts = append(evicts, s.pendingEvicts...)
		s.dirty = s.dirty || couplingDirty
		s.mu.Unlock()
	}
	return err
}

// writeState lands one flush batch in a single transaction. Adds run before
// evicts so a record added and evicted between flushes nets out absent.
func (s *Store) writeState(snap *mat.SymDense, adds []*types.PatternRecord, evicts []string, couplingDirty bool) error {
	tx, err := s.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin flush: %w", err)
	}
	defer tx.Rollback()

	if couplingDirty {
		for i := 0; i < len(s.organs); i++ {
			for j := i + 1; j < len(s.organs); j++ {
				if _, err := tx.Exec(`
					INSERT OR REPLACE INTO coupling (organ_a, organ_b, weight)
					VALUES (?, ?, ?)`,
					s.organs[i], s.organs[j], snap.At(i, j)); err != nil {
					return fmt.Errorf("failed to write coupling %s/%s: %w", s.organs[i], s.organs[j], err)
				}
			}
		}
	}

	for _, rec := range adds {
		actsJSON, err := json.Marshal(rec.Activations)
		if err != nil {
			return fmt.Errorf("failed to marshal activations for %s: %w", rec.ID, err)
		}
		res, err := tx.Exec(`
			INSERT OR REPLACE INTO patterns (id, signature, output, confidence, activations, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Signature, rec.Output, rec.Confidence, string(actsJSON), rec.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert pattern %s: %w", rec.ID, err)
		}

		if s.vecAvailable {
			rowid, liErr := res.LastInsertId()
			if liErr != nil {
				continue
			}
			serialized, serErr := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(s.vectorOf(rec.Activations))))
			if serErr != nil {
				continue
			}
			// vec0 does not reliably support INSERT OR REPLACE; use DELETE + INSERT.
			tx.Exec(`DELETE FROM pattern_vec WHERE rowid = ?`, rowid)
			if _, err := tx.Exec(`INSERT INTO pattern_vec(rowid, embedding, pattern_id) VALUES (?, ?, ?)`,
				rowid, serialized, rec.ID); err != nil {
				logging.Debug("hebbian", "vec insert failed for %s: %v", rec.ID, err)
			}
		}
	}

	for _, id := range evicts {
		if s.vecAvailable {
			var rowid int64
			if err := tx.QueryRow(`SELECT rowid FROM patterns WHERE id = ?`, id).Scan(&rowid); err == nil {
				tx.Exec(`DELETE FROM pattern_vec WHERE rowid = ?`, rowid)
			}
		}
		if _, err := tx.Exec(`DELETE FROM patterns WHERE id = ?`, id); err != nil {
			return fmt.Errorf("failed to evict pattern %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit flush: %w", err)
	}
	return nil
}

// queryVec runs a KNN match against the sqlite-vec index. Distances come back
// as L2 over unit vectors and convert exactly to cosine similarity.
func (s *Store) queryVec(query []float64, limit int) ([]*types.PatternMatch, error) {
	serialized, err := sqlite_vec.SerializeFloat32(normalizeFloat32(float64ToFloat32(query)))
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query: %w", err)
	}

	rows, err := s.db.conn.Query(`
		SELECT pattern_id, distance FROM pattern_vec
		WHERE embedding MATCH ? AND k = ?
		ORDER BY distance`, serialized, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type hit struct {
		id   string
		dist float64
	}
	var hits []hit
	for rows.Next() {
		var h hit
		if err := rows.Scan(&h.id, &h.dist); err != nil {
			continue
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make([]*types.PatternMatch, 0, len(hits))
	for _, h := range hits {
		rec, ok := s.byID[h.id]
		if !ok {
			continue // evicted since the row was indexed
		}
		sim := l2ToCosineSim(h.dist)
		if sim <= 0 {
			continue
		}
		matches = append(matches, &types.PatternMatch{Record: rec, Similarity: sim})
	}
	return matches, nil
}

func float64ToFloat32(in []float64) []float32 {
	out := make([]float32, len(in))
	for i, v := range in {
		out[i] = float32(v)
	}
	return out
}

// normalizeFloat32 returns a unit-length copy of the vector. Normalizing
// before storing in vec0 makes L2 distance equivalent to cosine distance.
func normalizeFloat32(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		return v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}

// l2ToCosineSim converts an L2 distance (on normalized vectors) to cosine
// similarity: cosine_sim = 1 - L2^2/2
func l2ToCosineSim(l2dist float64) float64 {
	return 1.0 - (l2dist*l2dist)/2.0
}
