package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetChecklist(ctx context.Context, target string) (Checklist, error) {
	var (
		checklist Checklist
		itemsRaw  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT target, items, created_at, updated_at
		FROM checklists
		WHERE target = $1
	`, target).Scan(&checklist.Target, &itemsRaw, &checklist.CreatedAt, &checklist.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Checklist{}, ErrNotFound
	}
	if err != nil {
		return Checklist{}, fmt.Errorf("get checklist: %w", err)
	}
	if err := json.Unmarshal(itemsRaw, &checklist.Items); err != nil {
		return Checklist{}, fmt.Errorf("decode checklist items: %w", err)
	}
	if checklist.Items == nil {
		checklist.Items = []ChecklistItem{}
	}
	return checklist, nil
}

// SaveChecklist inserts or replaces the document for checklist.Target. The
// original created_at survives a replace.
func (s *PostgresStore) SaveChecklist(ctx context.Context, checklist Checklist) (Checklist, error) {
	items := checklist.Items
	if items == nil {
		items = []ChecklistItem{}
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return Checklist{}, fmt.Errorf("encode checklist items: %w", err)
	}

	saved := Checklist{Items: items}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO checklists (target, items, created_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (target) DO UPDATE SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at
		RETURNING target, created_at, updated_at
	`, checklist.Target, string(encoded), checklist.CreatedAt, checklist.UpdatedAt).Scan(&saved.Target, &saved.CreatedAt, &saved.UpdatedAt)
	if err != nil {
		return Checklist{}, fmt.Errorf("save checklist: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) ListChecklists(ctx context.Context) ([]Checklist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT target, items, created_at, updated_at
		FROM checklists
		ORDER BY updated_at DESC, target ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list checklists: %w", err)
	}
	defer rows.Close()

	result := []Checklist{}
	for rows.Next() {
		var (
			checklist Checklist
			itemsRaw  []byte
		)
		if err := rows.Scan(&checklist.Target, &itemsRaw, &checklist.CreatedAt, &checklist.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan checklist: %w", err)
		}
		if err := json.Unmarshal(itemsRaw, &checklist.Items); err != nil {
			return nil, fmt.Errorf("decode checklist items: %w", err)
		}
		result = append(result, checklist)
	}
	return result, rows.Err()
}

func (s *PostgresStore) DeleteChecklist(ctx context.Context, target string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM checklists WHERE target = $1`, target)
	if err != nil {
		return false, fmt.Errorf("delete checklist: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete checklist rows: %w", err)
	}
	return affected > 0, nil
}

const credentialColumns = `id, username, password, host, service, notes, content, created_at, updated_at`

func scanCredential(row interface{ Scan(...any) error }) (Credential, error) {
	var c Credential
	err := row.Scan(&c.ID, &c.Username, &c.Password, &c.Host, &c.Service, &c.Notes, &c.Content, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStore) ListCredentials(ctx context.Context) ([]Credential, error) {
	return s.queryCredentials(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY created_at DESC, id ASC`)
}

func (s *PostgresStore) GetCredential(ctx context.Context, id string) (Credential, error) {
	credential, err := scanCredential(s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("get credential: %w", err)
	}
	return credential, nil
}

func (s *PostgresStore) FirstCredential(ctx context.Context) (Credential, error) {
	credential, err := scanCredential(s.db.QueryRowContext(ctx, `SELECT `+credentialColumns+` FROM credentials ORDER BY created_at ASC, id ASC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("first credential: %w", err)
	}
	return credential, nil
}

func (s *PostgresStore) InsertCredential(ctx context.Context, c Credential) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (id, username, password, host, service, notes, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.Username, c.Password, c.Host, c.Service, c.Notes, c.Content, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert credential: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCredential(ctx context.Context, c Credential) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE credentials
		SET username=$2, password=$3, host=$4, service=$5, notes=$6, content=$7, updated_at=$8
		WHERE id=$1
	`, c.ID, c.Username, c.Password, c.Host, c.Service, c.Notes, c.Content, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return requireAffected(res, "update credential")
}

func (s *PostgresStore) DeleteCredential(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return requireAffected(res, "delete credential")
}

// SearchCredentials matches non-secret columns only.
func (s *PostgresStore) SearchCredentials(ctx context.Context, text string, limit int) ([]Credential, error) {
	return s.queryCredentials(ctx, `
		SELECT `+credentialColumns+`
		FROM credentials
		WHERE host ILIKE $1 ESCAPE '\' OR service ILIKE $1 ESCAPE '\'
			OR username ILIKE $1 ESCAPE '\' OR notes ILIKE $1 ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT $2
	`, likePattern(text), normalizeLimit(limit))
}

func (s *PostgresStore) queryCredentials(ctx context.Context, query string, args ...any) ([]Credential, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query credentials: %w", err)
	}
	defer rows.Close()

	result := []Credential{}
	for rows.Next() {
		credential, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		result = append(result, credential)
	}
	return result, rows.Err()
}

const scanColumns = `id, target, command, results, scan_type, ports, os_detection, scan_duration, notes, created_at, updated_at`

func scanNmapScan(row interface{ Scan(...any) error }) (NmapScan, error) {
	var (
		scan     NmapScan
		portsRaw []byte
	)
	if err := row.Scan(&scan.ID, &scan.Target, &scan.Command, &scan.Results, &scan.ScanType, &portsRaw,
		&scan.OSDetection, &scan.ScanDuration, &scan.Notes, &scan.CreatedAt, &scan.UpdatedAt); err != nil {
		return NmapScan{}, err
	}
	if err := json.Unmarshal(portsRaw, &scan.Ports); err != nil {
		return NmapScan{}, fmt.Errorf("decode ports: %w", err)
	}
	if scan.Ports == nil {
		scan.Ports = []NmapPort{}
	}
	return scan, nil
}

func (s *PostgresStore) ListScans(ctx context.Context) ([]NmapScan, error) {
	return s.queryScans(ctx, `SELECT `+scanColumns+` FROM nmap_scans ORDER BY created_at DESC, id ASC`)
}

func (s *PostgresStore) GetScan(ctx context.Context, id string) (NmapScan, error) {
	scan, err := scanNmapScan(s.db.QueryRowContext(ctx, `SELECT `+scanColumns+` FROM nmap_scans WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return NmapScan{}, ErrNotFound
	}
	if err != nil {
		return NmapScan{}, fmt.Errorf("get nmap scan: %w", err)
	}
	return scan, nil
}

func (s *PostgresStore) InsertScan(ctx context.Context, scan NmapScan) error {
	ports, err := encodePorts(scan.Ports)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nmap_scans (id, target, command, results, scan_type, ports, os_detection, scan_duration, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10, $11)
	`, scan.ID, scan.Target, scan.Command, scan.Results, scan.ScanType, ports,
		scan.OSDetection, scan.ScanDuration, scan.Notes, scan.CreatedAt, scan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert nmap scan: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateScan(ctx context.Context, scan NmapScan) error {
	ports, err := encodePorts(scan.Ports)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE nmap_scans
		SET target=$2, command=$3, results=$4, scan_type=$5, ports=$6::jsonb,
			os_detection=$7, scan_duration=$8, notes=$9, updated_at=$10
		WHERE id=$1
	`, scan.ID, scan.Target, scan.Command, scan.Results, scan.ScanType, ports,
		scan.OSDetection, scan.ScanDuration, scan.Notes, scan.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update nmap scan: %w", err)
	}
	return requireAffected(res, "update nmap scan")
}

func (s *PostgresStore) DeleteScan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM nmap_scans WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete nmap scan: %w", err)
	}
	return requireAffected(res, "delete nmap scan")
}

func (s *PostgresStore) SearchScansByTarget(ctx context.Context, target string) ([]NmapScan, error) {
	return s.queryScans(ctx, `
		SELECT `+scanColumns+`
		FROM nmap_scans
		WHERE target ILIKE $1 ESCAPE '\'
		ORDER BY created_at DESC
	`, likePattern(target))
}

func (s *PostgresStore) SearchScans(ctx context.Context, text string, limit int) ([]NmapScan, error) {
	return s.queryScans(ctx, `
		SELECT `+scanColumns+`
		FROM nmap_scans
		WHERE target ILIKE $1 ESCAPE '\' OR command ILIKE $1 ESCAPE '\'
			OR notes ILIKE $1 ESCAPE '\' OR results ILIKE $1 ESCAPE '\'
		ORDER BY created_at DESC
		LIMIT $2
	`, likePattern(text), normalizeLimit(limit))
}

func (s *PostgresStore) queryScans(ctx context.Context, query string, args ...any) ([]NmapScan, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query nmap scans: %w", err)
	}
	defer rows.Close()

	result := []NmapScan{}
	for rows.Next() {
		scan, err := scanNmapScan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan nmap scan: %w", err)
		}
		result = append(result, scan)
	}
	return result, rows.Err()
}

func encodePorts(ports []NmapPort) (string, error) {
	if ports == nil {
		ports = []NmapPort{}
	}
	encoded, err := json.Marshal(ports)
	if err != nil {
		return "", fmt.Errorf("encode ports: %w", err)
	}
	return string(encoded), nil
}

func requireAffected(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds a substring ILIKE pattern with wildcards in text escaped.
func likePattern(text string) string {
	return "%" + likeEscaper.Replace(strings.TrimSpace(text)) + "%"
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	return limit
}
