package lifecycle

import "ambient-pro/internal/common/validation"

const (
	datePattern    = `^[0-9]{4}-(0[1-9]|1[0-2])-(0[1-9]|[12][0-9]|3[01])$`
	timePattern    = `^([01][0-9]|2[0-3]):[0-5][0-9]$`
	// Embedded in JSON, so the backslash is escaped.
	decimalPattern = `^[0-9]+(\\.[0-9]+)?$`
)

var closeFormSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["systemSize", "grossPPW", "financeType", "lender", "panelType", "siteSurveyDate", "siteSurveyTime"],
	"properties": {
		"systemSize":      {"type": "string", "pattern": "` + decimalPattern + `"},
		"grossPPW":        {"type": "string", "pattern": "` + decimalPattern + `"},
		"financeType":     {"type": "string", "minLength": 1},
		"lender":          {"type": "string", "minLength": 1},
		"panelType":       {"type": "string", "minLength": 1},
		"adders":          {"type": "array", "items": {"type": "string"}},
		"batteryType":     {"type": "string"},
		"batteryQuantity": {"type": "integer", "minimum": 0},
		"siteSurveyDate":  {"type": "string", "pattern": "` + datePattern + `"},
		"siteSurveyTime":  {"type": "string", "pattern": "` + timePattern + `"},
		"permitDate":      {"type": "string", "pattern": "` + datePattern + `"},
		"installDate":     {"type": "string", "pattern": "` + datePattern + `"},
		"inspectionDate":  {"type": "string", "pattern": "` + datePattern + `"},
		"ptoDate":         {"type": "string", "pattern": "` + datePattern + `"}
	}
}`)

var newSetSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["userId", "customerName", "address", "phoneNumber", "appointmentDate", "appointmentTime"],
	"properties": {
		"userId":          {"type": "string", "minLength": 1},
		"customerName":    {"type": "string", "minLength": 1},
		"address":         {"type": "string", "minLength": 1},
		"phoneNumber":     {"type": "string", "minLength": 7},
		"email":           {"type": "string", "format": "email"},
		"appointmentDate": {"type": "string", "pattern": "` + datePattern + `"},
		"appointmentTime": {"type": "string", "pattern": "` + timePattern + `"},
		"office":          {"type": "string"},
		"notes":           {"type": "string"}
	}
}`)
