package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// License is the query surface's row shape: the licensee's entity fields
// joined with the header's call sign. Only active-status licenses are ever
// returned.
type License struct {
	UniqueSystemIdentifier int64
	CallSign               string
	EntityType             string
	EntityName             string
	FirstName              string
	MI                     string
	LastName               string
	Suffix                 string
	StreetAddress          string
	City                   string
	State                  string
	ZipCode                string
	POBox                  string
	Phone                  string
	Email                  string
	FRN                    string
	ApplicantTypeCode      string
}

// licenseColumns is the EN column projection scanned into License, in scan
// order. CallSign is selected separately (from HD on the search paths, from
// EN on the direct lookup).
const licenseColumns = `EN.unique_system_identifier, EN.entity_type, EN.entity_name, EN.first_name, EN.mi,
	EN.last_name, EN.suffix, EN.street_address, EN.city, EN.state, EN.zip_code,
	EN.po_box, EN.phone, EN.email, EN.fcc_registration_number, EN.applicant_type_code`

func scanLicense(rows interface{ Scan(...any) error }) (*License, error) {
	var lic License
	var callSign sql.NullString
	err := rows.Scan(
		&lic.UniqueSystemIdentifier, &lic.EntityType, &lic.EntityName, &lic.FirstName, &lic.MI,
		&lic.LastName, &lic.Suffix, &lic.StreetAddress, &lic.City, &lic.State,
		&lic.ZipCode, &lic.POBox, &lic.Phone, &lic.Email, &lic.FRN,
		&lic.ApplicantTypeCode, &callSign,
	)
	if err != nil {
		return nil, err
	}
	lic.CallSign = callSign.String
	return &lic, nil
}

// RecordByCallSign resolves a call sign to its entity row via the header
// table, restricted to active licenses. A missing call sign returns
// (nil, nil); an error is a real store failure.
func (s *Store) RecordByCallSign(ctx context.Context, callSign string) (*License, error) {
	query := `
	SELECT ` + licenseColumns + `, EN.call_sign
	FROM EN
	WHERE EN.unique_system_identifier = (
		SELECT unique_system_identifier FROM HD
		WHERE call_sign = ? AND license_status = 'A'
	)`
	row := s.db.QueryRowContext(ctx, query, callSign)
	lic, err := scanLicense(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: lookup call sign %s: %w", callSign, err)
	}
	return lic, nil
}

// SearchByName finds active licenses whose entity or personal name contains
// name, case-insensitively, anywhere. Results are de-duplicated by
// (identifier, call sign) — the header join can legitimately multiply rows —
// and ordered by call sign.
func (s *Store) SearchByName(ctx context.Context, name string) ([]License, error) {
	return s.searchEntities(ctx, name, "")
}

// SearchByState finds active licenses with an exact, case-insensitive state
// code match, with the same de-dup and ordering as SearchByName.
func (s *Store) SearchByState(ctx context.Context, state string) ([]License, error) {
	return s.searchEntities(ctx, "", state)
}

// SearchByNameAndState is the conjunction of the two filters.
func (s *Store) SearchByNameAndState(ctx context.Context, name, state string) ([]License, error) {
	return s.searchEntities(ctx, name, state)
}

// searchEntities runs the shared matching-ids CTE: collect identifiers whose
// entity rows satisfy the filters and whose header row is active, then pull
// the full entity+call-sign projection for those identifiers.
func (s *Store) searchEntities(ctx context.Context, name, state string) ([]License, error) {
	var (
		conds []string
		args  []any
	)
	if name != "" {
		pattern := "%" + name + "%"
		conds = append(conds, `(
			LOWER(EN.entity_name) LIKE LOWER(?) OR
			LOWER(EN.first_name) LIKE LOWER(?) OR
			LOWER(EN.mi) LIKE LOWER(?) OR
			LOWER(EN.last_name) LIKE LOWER(?)
		)`)
		args = append(args, pattern, pattern, pattern, pattern)
	}
	if state != "" {
		conds = append(conds, "UPPER(EN.state) = ?")
		args = append(args, strings.ToUpper(state))
	}
	if len(conds) == 0 {
		return nil, fmt.Errorf("store: search requires a name or a state")
	}
	conds = append(conds, "HD.license_status = 'A'")

	query := `
	WITH matching_ids AS (
		SELECT DISTINCT EN.unique_system_identifier
		FROM EN
		JOIN HD ON EN.unique_system_identifier = HD.unique_system_identifier
		WHERE ` + strings.Join(conds, " AND ") + `
	)
	SELECT ` + licenseColumns + `, HD.call_sign
	FROM EN
	JOIN HD ON EN.unique_system_identifier = HD.unique_system_identifier
	JOIN matching_ids ON EN.unique_system_identifier = matching_ids.unique_system_identifier
	ORDER BY HD.call_sign`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	type key struct {
		usi      int64
		callSign string
	}
	seen := make(map[key]bool)
	var out []License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("store: search scan: %w", err)
		}
		k := key{lic.UniqueSystemIdentifier, lic.CallSign}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, *lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: search rows: %w", err)
	}
	return out, nil
}
