package display

// FCC ULS code tables, used to translate single-letter codes into readable
// descriptions on output.

var applicantTypeCodes = map[string]string{
	"B": "Amateur Club",
	"C": "Corporation",
	"D": "General Partnership",
	"E": "Limited Partnership",
	"F": "Limited Liability Partnership",
	"G": "Governmental Entity",
	"H": "Other",
	"I": "Individual",
	"J": "Joint Venture",
	"L": "Limited Liability Company",
	"M": "Military Recreation",
	"O": "Consortium",
	"P": "Partnership",
	"R": "RACES",
	"T": "Trust",
	"U": "Unincorporated Association",
}

var entityTypeCodes = map[string]string{
	"CE": "Transferee contact",
	"CL": "Licensee Contact",
	"CR": "Assignor or Transferor Contact",
	"CS": "Lessee Contact",
	"E":  "Transferee",
	"L":  "Licensee or Assignee",
	"O":  "Owner",
	"R":  "Assignor or Transferor",
	"S":  "Lessee",
}

// ApplicantType returns "Description (C)" for a known applicant type code,
// or the code unchanged.
func ApplicantType(code string) string {
	if desc, ok := applicantTypeCodes[code]; ok {
		return desc + " (" + code + ")"
	}
	return code
}

// EntityType returns "Description (C)" for a known entity type code, or the
// code unchanged.
func EntityType(code string) string {
	if desc, ok := entityTypeCodes[code]; ok {
		return desc + " (" + code + ")"
	}
	return code
}
