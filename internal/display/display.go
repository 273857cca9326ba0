// Package display renders query results for the terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"ulsdb/internal/store"
)

const separator = "----------------------------------------"

// Name assembles the display name for a license: the entity name when set,
// otherwise "First MI Last" from the personal fields.
func Name(lic *store.License) string {
	if lic.EntityName != "" {
		return lic.EntityName
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{lic.FirstName, lic.MI, lic.LastName} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// WriteRecord prints one license in labeled form, skipping empty fields.
func WriteRecord(w io.Writer, lic *store.License) {
	fields := []struct {
		label, value string
	}{
		{"Call Sign", lic.CallSign},
		{"Name", Name(lic)},
		{"Licensee ID", fmt.Sprintf("%d", lic.UniqueSystemIdentifier)},
		{"Entity Type", EntityType(lic.EntityType)},
		{"Applicant Type", ApplicantType(lic.ApplicantTypeCode)},
		{"Address", lic.StreetAddress},
		{"PO Box", lic.POBox},
		{"City", lic.City},
		{"State", lic.State},
		{"Zip Code", lic.ZipCode},
		{"Phone", lic.Phone},
		{"Email", lic.Email},
		{"FRN", lic.FRN},
	}
	for _, f := range fields {
		if f.value != "" {
			fmt.Fprintf(w, "%s: %s\n", f.label, f.value)
		}
	}
	fmt.Fprintln(w, separator)
}

// WriteTable prints licenses as an aligned table, one row per license, and a
// trailing count.
func WriteTable(w io.Writer, lics []store.License) {
	if len(lics) == 0 {
		fmt.Fprintln(w, "No matching licenses found.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CALL SIGN\tNAME\tCITY\tSTATE")
	for i := range lics {
		lic := &lics[i]
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", lic.CallSign, Name(lic), lic.City, lic.State)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d matching licenses\n", len(lics))
}
