// Package schema is the registry of ULS table definitions.
//
// Every weekly dump table is described by a typed, ordered column list. The
// ordering is load-bearing: it is the only thing binding a raw pipe-delimited
// field array to a column, so the CREATE TABLE DDL, the insert column list,
// and the parser's expected field count are all generated from the same
// []Column slice. Validate checks the registry once at startup so drift shows
// up as a hard error instead of silently misaligned columns.
package schema

import (
	"fmt"
	"regexp"
	"strings"
)

// ColType is the SQL storage class of a column. The ULS dump only ever needs
// TEXT and INTEGER.
type ColType string

const (
	Text    ColType = "TEXT"
	Integer ColType = "INTEGER"
)

// Column describes one ordered column of a ULS table.
type Column struct {
	Name string
	Type ColType

	// Date marks columns holding MM/DD/YYYY values in the source dump; the
	// parser rewrites them to YYYY-MM-DD at emission time.
	Date bool
}

// Table is the full definition of one ULS record type.
type Table struct {
	// ID is the two-letter record type code, e.g. "HD", "EN", "AM".
	ID string

	Columns []Column

	// IndexDDL holds one CREATE INDEX statement per secondary index. Index
	// names are embedded in the statements; the store extracts them by
	// pattern when it needs to drop them.
	IndexDDL []string

	// Multiline is set for tables whose free-text fields may legitimately
	// contain embedded newlines in the source dump.
	Multiline bool

	// NoKeyDedup disables the delete-by-identifier pass before batch
	// inserts. Only LA sets it; its attachment rows are not one-per-license.
	NoKeyDedup bool
}

func c(name string) Column  { return Column{Name: name, Type: Text} }
func ic(name string) Column { return Column{Name: name, Type: Integer} }
func dc(name string) Column { return Column{Name: name, Type: Text, Date: true} }

// Tables is the registry of all known ULS record types, keyed by ID.
var Tables = map[string]*Table{
	"AM": {
		ID: "AM",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("uls_file_number"),
			c("ebf_number"), c("call_sign"), c("operator_class"), c("group_code"),
			ic("region_code"), c("trustee_call_sign"), c("trustee_indicator"),
			c("physician_certification"), c("ve_signature"),
			c("systematic_call_sign_change"), c("vanity_call_sign_change"),
			c("vanity_relationship"), c("previous_call_sign"),
			c("previous_operator_class"), c("trustee_name"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_AM_call_sign ON AM (call_sign);",
			"CREATE INDEX IF NOT EXISTS idx_AM_unique_sys_id ON AM (unique_system_identifier);",
		},
	},
	"CO": {
		ID: "CO",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("uls_file_number"),
			c("call_sign"), dc("comment_date"), c("description"),
			c("status_code"), dc("status_date"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_CO_call_sign ON CO (call_sign);",
		},
		Multiline: true,
	},
	"EN": {
		ID: "EN",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("uls_file_number"),
			c("ebf_number"), c("call_sign"), c("entity_type"), c("licensee_id"),
			c("entity_name"), c("first_name"), c("mi"), c("last_name"), c("suffix"),
			c("phone"), c("fax"), c("email"), c("street_address"), c("city"),
			c("state"), c("zip_code"), c("po_box"), c("attention_line"), c("sgin"),
			c("fcc_registration_number"), c("applicant_type_code"),
			c("applicant_type_code_other"), c("status_code"), dc("status_date"),
			c("_37ghz_license_type"), ic("linked_unique_sys_id"), c("linked_call_sign"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_EN_call_sign ON EN (call_sign);",
			"CREATE INDEX IF NOT EXISTS idx_EN_unique_sys_id ON EN (unique_system_identifier);",
			"CREATE INDEX IF NOT EXISTS idx_EN_entity_name ON EN (entity_name);",
			"CREATE INDEX IF NOT EXISTS idx_EN_first_name ON EN (first_name);",
			"CREATE INDEX IF NOT EXISTS idx_EN_last_name ON EN (last_name);",
			"CREATE INDEX IF NOT EXISTS idx_EN_state ON EN (state);",
			"CREATE INDEX IF NOT EXISTS idx_EN_state_unique_sys_id ON EN (state, unique_system_identifier);",
			"CREATE INDEX IF NOT EXISTS idx_EN_name_search ON EN (entity_name, first_name, last_name);",
		},
		Multiline: true,
	},
	"HD": {
		ID: "HD",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("uls_file_number"),
			c("ebf_number"), c("call_sign"), c("license_status"),
			c("radio_service_code"), dc("grant_date"), dc("expired_date"),
			dc("cancellation_date"), c("eligibility_rule_num"),
			c("applicant_type_code_reserved"), c("alien"), c("alien_government"),
			c("alien_corporation"), c("alien_officer"), c("alien_control"),
			c("revoked"), c("convicted"), c("adjudged"), c("involved_reserved"),
			c("common_carrier"), c("non_common_carrier"), c("private_comm"),
			c("fixed"), c("mobile"), c("radiolocation"), c("satellite"),
			c("developmental_or_sta"), c("interconnected_service"),
			c("certifier_first_name"), c("certifier_mi"), c("certifier_last_name"),
			c("certifier_suffix"), c("certifier_title"), c("gender"),
			c("african_american"), c("native_american"), c("hawaiian"), c("asian"),
			c("white"), c("ethnicity"), dc("effective_date"), dc("last_action_date"),
			ic("auction_id"), c("reg_stat_broad_serv"), c("band_manager"),
			c("type_serv_broad_serv"), c("alien_ruling"), c("licensee_name_change"),
			c("whitespace_ind"), c("additional_cert_choice"),
			c("additional_cert_answer"), c("discontinuation_ind"),
			c("regulatory_compliance_ind"), c("eligibility_cert_900"),
			c("transition_plan_cert_900"), c("return_spectrum_cert_900"),
			c("payment_cert_900"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_HD_call_sign ON HD (call_sign,license_status);",
			"CREATE INDEX IF NOT EXISTS idx_HD_unique_sys_id ON HD (unique_system_identifier);",
			"CREATE INDEX IF NOT EXISTS idx_HD_license_status ON HD (license_status);",
		},
		Multiline: true,
	},
	"HS": {
		ID: "HS",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("uls_file_number"),
			c("call_sign"), dc("log_date"), c("code"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_HS_call_sign ON HS (call_sign);",
		},
		Multiline: true,
	},
	"LA": {
		ID: "LA",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("call_sign"),
			c("attachment_code"), c("attachment_description"), dc("attachment_date"),
			c("attachment_file_name"), c("action_performed"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_LA_call_sign ON LA (call_sign);",
		},
		NoKeyDedup: true,
	},
	"SC": {
		ID: "SC",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("uls_file_number"),
			c("ebf_number"), c("call_sign"), c("special_condition_type"),
			ic("special_condition_code"), c("status_code"), dc("status_date"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_SC_call_sign ON SC (call_sign);",
		},
	},
	"SF": {
		ID: "SF",
		Columns: []Column{
			c("record_type"), ic("unique_system_identifier"), c("uls_file_number"),
			c("ebf_number"), c("call_sign"), c("license_free_form_type"),
			ic("unique_license_free_form_identifier"), ic("sequence_number"),
			c("license_free_form_condition"), c("status_code"), dc("status_date"),
		},
		IndexDDL: []string{
			"CREATE INDEX IF NOT EXISTS idx_SF_call_sign ON SF (call_sign);",
		},
	},
}

// KeyColumn is the shared identifier correlating rows for one license across
// all tables. It is ordinal 1 in every table.
const KeyColumn = "unique_system_identifier"

// AllTableIDs returns every registered table ID in a stable order.
func AllTableIDs() []string {
	return []string{"AM", "CO", "EN", "HD", "HS", "LA", "SC", "SF"}
}

// Lookup returns the table definition for id, or an error when the registry
// has no such table (a precondition failure for loads).
func Lookup(id string) (*Table, error) {
	t, ok := Tables[id]
	if !ok {
		return nil, fmt.Errorf("schema: no table definition for %q", id)
	}
	return t, nil
}

// ColumnCount is the expected field count of parsed records for this table.
func (t *Table) ColumnCount() int { return len(t.Columns) }

// ColumnNames returns the ordered column name list.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// DateIndices returns the ordinals of date-valued columns.
func (t *Table) DateIndices() []int {
	var idx []int
	for i, col := range t.Columns {
		if col.Date {
			idx = append(idx, i)
		}
	}
	return idx
}

// CreateDDL renders the idempotent CREATE TABLE statement for this table.
func (t *Table) CreateDDL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", t.ID)
	for i, col := range t.Columns {
		fmt.Fprintf(&b, "    %s %s", col.Name, col.Type)
		if i < len(t.Columns)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")
	return b.String()
}

var indexNameRe = regexp.MustCompile(`CREATE INDEX IF NOT EXISTS (\S+) ON (\S+)`)

// IndexNames extracts the index names embedded in IndexDDL.
func (t *Table) IndexNames() []string {
	names := make([]string, 0, len(t.IndexDDL))
	for _, ddl := range t.IndexDDL {
		if m := indexNameRe.FindStringSubmatch(ddl); m != nil {
			names = append(names, m[1])
		}
	}
	return names
}

// Validate cross-checks the registry: column ordering invariants, the shared
// key ordinal, date flags against the naming convention, and every index
// statement referencing its own table with a parseable name. Call it once at
// startup; any error means the registry itself is broken.
func Validate() error {
	for _, id := range AllTableIDs() {
		t, ok := Tables[id]
		if !ok {
			return fmt.Errorf("schema: table %s missing from registry", id)
		}
		if t.ID != id {
			return fmt.Errorf("schema: table %s has mismatched ID %q", id, t.ID)
		}
		if len(t.Columns) < 2 {
			return fmt.Errorf("schema: table %s has too few columns", id)
		}
		if t.Columns[0].Name != "record_type" {
			return fmt.Errorf("schema: table %s: first column must be record_type, got %q", id, t.Columns[0].Name)
		}
		if t.Columns[1].Name != KeyColumn || t.Columns[1].Type != Integer {
			return fmt.Errorf("schema: table %s: second column must be INTEGER %s", id, KeyColumn)
		}
		seen := make(map[string]bool, len(t.Columns))
		for i, col := range t.Columns {
			if col.Name == "" {
				return fmt.Errorf("schema: table %s: empty column name at ordinal %d", id, i)
			}
			if seen[col.Name] {
				return fmt.Errorf("schema: table %s: duplicate column %q", id, col.Name)
			}
			seen[col.Name] = true
			// The dump marks date fields by name; the typed flag must agree
			// so the parser and the registry cannot diverge.
			if col.Date != strings.Contains(strings.ToLower(col.Name), "date") {
				return fmt.Errorf("schema: table %s: column %q date flag disagrees with name", id, col.Name)
			}
		}
		for _, ddl := range t.IndexDDL {
			m := indexNameRe.FindStringSubmatch(ddl)
			if m == nil {
				return fmt.Errorf("schema: table %s: index DDL without extractable name: %q", id, ddl)
			}
			if m[2] != id {
				return fmt.Errorf("schema: table %s: index %s targets table %s", id, m[1], m[2])
			}
		}
	}
	return nil
}
