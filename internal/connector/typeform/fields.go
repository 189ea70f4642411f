package typeform

// fieldRefToKey maps the form's stable field refs to semantic keys. Refs are
// assigned by Typeform when the form is built; the mapping must be updated if
// the form is rebuilt.
var fieldRefToKey = map[string]string{
	"bbc1908b-14c5-4b99-8365-5055c2c9cefc": "details_confirmed",
	"d2745455-71ba-4d31-a07b-c675350b8730": "date_of_birth",
	"92fc8a3f-466e-4dbf-825b-5c1f211c3940": "national_insurance_number",
	"ddd7b1a2-972a-48e5-9fe8-e8204c5de29b": "emergency_contact_name",
	"02bac3a4-d6e6-4bd8-a944-8648612ab95f": "emergency_contact_relationship",
	"acff250a-11fe-4845-affc-b5db5c5cea7f": "emergency_contact_phone",
	"185eb1c7-20bb-4ea9-984a-a8aa1732c01e": "preferred_days_per_week",
	"b458f157-4547-4279-bc8f-7f1a5f341413": "preferred_start_day",
	"07cc1c10-b4e4-4f01-9774-073cb5cae0f8": "preferred_start_date",
}

// ParseFields flattens a form response into a key→value map. Hidden fields
// come first (string values only), then answers keyed by their field ref.
// Answers with a fieldRefToKey mapping are stored under both the raw ref and
// the semantic key. Later answers win over hidden fields of the same key.
func ParseFields(p *WebhookPayload) map[string]Value {
	fields := map[string]Value{}

	for key, raw := range p.FormResponse.Hidden {
		if s, ok := raw.(string); ok {
			fields[key] = Value{Text: s}
		}
	}

	for _, answer := range p.FormResponse.Answers {
		ref := answer.Field.Ref
		if ref == "" {
			continue
		}

		value, ok := answer.Decode()
		if !ok {
			continue
		}

		fields[ref] = value
		if mapped, ok := fieldRefToKey[ref]; ok {
			fields[mapped] = value
		}
	}

	return fields
}
