// Package typeform decodes Typeform webhook payloads and applies form
// submissions to driver records.
package typeform

import "strconv"

// Answer types
const (
	AnswerTypeText        = "text"
	AnswerTypeNumber      = "number"
	AnswerTypeBoolean     = "boolean"
	AnswerTypeChoice      = "choice"
	AnswerTypeChoices     = "choices"
	AnswerTypeEmail       = "email"
	AnswerTypeURL         = "url"
	AnswerTypeFileURL     = "file_url"
	AnswerTypeDate        = "date"
	AnswerTypePhoneNumber = "phone_number"
)

// WebhookPayload is the body of a Typeform webhook delivery.
type WebhookPayload struct {
	EventID      string       `json:"event_id"`
	EventType    string       `json:"event_type"`
	FormResponse FormResponse `json:"form_response"`
}

// FormResponse is the submitted response embedded in a webhook delivery.
type FormResponse struct {
	FormID      string         `json:"form_id"`
	Token       string         `json:"token"`
	SubmittedAt string         `json:"submitted_at"`
	Hidden      map[string]any `json:"hidden"`
	Definition  Definition     `json:"definition"`
	Answers     []Answer       `json:"answers"`
}

// Definition lists the form's fields.
type Definition struct {
	Fields []FieldDefinition `json:"fields"`
}

// FieldDefinition describes one question of the form.
type FieldDefinition struct {
	ID    string `json:"id"`
	Ref   string `json:"ref"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// AnswerField identifies the question an answer belongs to.
type AnswerField struct {
	ID   string `json:"id"`
	Ref  string `json:"ref"`
	Type string `json:"type"`
}

// Choice is a single selected option.
type Choice struct {
	Label string `json:"label"`
	Other string `json:"other,omitempty"`
}

// Choices is a multi-select answer.
type Choices struct {
	Labels []string `json:"labels"`
	Other  string   `json:"other,omitempty"`
}

// Answer is one answer in a form response. The populated variant is selected
// by Type; the decoder never probes untyped properties.
type Answer struct {
	Field       AnswerField `json:"field"`
	Type        string      `json:"type"`
	Text        string      `json:"text,omitempty"`
	Email       string      `json:"email,omitempty"`
	URL         string      `json:"url,omitempty"`
	FileURL     string      `json:"file_url,omitempty"`
	Date        string      `json:"date,omitempty"`
	PhoneNumber string      `json:"phone_number,omitempty"`
	Number      *float64    `json:"number,omitempty"`
	Boolean     *bool       `json:"boolean,omitempty"`
	Choice      *Choice     `json:"choice,omitempty"`
	Choices     *Choices    `json:"choices,omitempty"`
}

// Value is a decoded answer value: either text or a boolean.
type Value struct {
	Text   string
	Bool   bool
	IsBool bool
}

// Decode extracts the answer's value according to its declared type. The
// second return is false for unknown or empty variants, which are ignored.
func (a *Answer) Decode() (Value, bool) {
	switch a.Type {
	case AnswerTypeBoolean:
		if a.Boolean == nil {
			return Value{}, false
		}
		return Value{Bool: *a.Boolean, IsBool: true}, true
	case AnswerTypeChoice:
		if a.Choice == nil {
			return Value{}, false
		}
		label := a.Choice.Label
		if label == "" {
			label = a.Choice.Other
		}
		return Value{Text: label}, true
	case AnswerTypeChoices:
		if a.Choices == nil {
			return Value{}, false
		}
		return Value{Text: joinLabels(a.Choices.Labels)}, true
	case AnswerTypeNumber:
		if a.Number == nil {
			return Value{}, false
		}
		return Value{Text: strconv.FormatFloat(*a.Number, 'f', -1, 64)}, true
	case AnswerTypeText:
		return Value{Text: a.Text}, true
	case AnswerTypeEmail:
		return Value{Text: a.Email}, true
	case AnswerTypePhoneNumber:
		return Value{Text: a.PhoneNumber}, true
	case AnswerTypeDate:
		return Value{Text: a.Date}, true
	case AnswerTypeURL:
		return Value{Text: a.URL}, true
	case AnswerTypeFileURL:
		return Value{Text: a.FileURL}, true
	}
	return Value{}, false
}

func joinLabels(labels []string) string {
	out := ""
	for i, l := range labels {
		if i > 0 {
			out += ", "
		}
		out += l
	}
	return out
}
