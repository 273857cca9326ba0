package display

import (
	"html/template"
	"io"

	"ulsdb/internal/store"
)

// recordTemplate renders one license as an embeddable HTML fragment, not a
// full document; the converting caller owns the page around it.
var recordTemplate = template.Must(template.New("record").Parse(`<div class="license">
  <h2>{{.CallSign}}</h2>
  <dl>
    <dt>Name</dt><dd>{{.Name}}</dd>
    <dt>Licensee ID</dt><dd>{{.ID}}</dd>
{{- if .EntityType}}
    <dt>Entity Type</dt><dd>{{.EntityType}}</dd>
{{- end}}
{{- if .ApplicantType}}
    <dt>Applicant Type</dt><dd>{{.ApplicantType}}</dd>
{{- end}}
{{- if .Address}}
    <dt>Address</dt><dd>{{.Address}}</dd>
{{- end}}
{{- if .CityStateZip}}
    <dt>Location</dt><dd>{{.CityStateZip}}</dd>
{{- end}}
{{- if .Email}}
    <dt>Email</dt><dd>{{.Email}}</dd>
{{- end}}
  </dl>
</div>
`))

type recordView struct {
	CallSign      string
	Name          string
	ID            int64
	EntityType    string
	ApplicantType string
	Address       string
	CityStateZip  string
	Email         string
}

// WriteRecordHTML renders lic as an HTML fragment. All field values are
// escaped by the template engine; the dump is untrusted input.
func WriteRecordHTML(w io.Writer, lic *store.License) error {
	v := recordView{
		CallSign: lic.CallSign,
		Name:     Name(lic),
		ID:       lic.UniqueSystemIdentifier,
		Address:  lic.StreetAddress,
		Email:    lic.Email,
	}
	if lic.EntityType != "" {
		v.EntityType = EntityType(lic.EntityType)
	}
	if lic.ApplicantTypeCode != "" {
		v.ApplicantType = ApplicantType(lic.ApplicantTypeCode)
	}
	loc := lic.City
	if lic.State != "" {
		if loc != "" {
			loc += ", "
		}
		loc += lic.State
	}
	if lic.ZipCode != "" {
		if loc != "" {
			loc += " "
		}
		loc += lic.ZipCode
	}
	v.CityStateZip = loc
	return recordTemplate.Execute(w, v)
}
