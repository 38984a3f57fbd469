package edi

// Static CARC/RARC reference tables. These are read-only lookups used by
// posting reports and denial details; they are not part of the parsing
// algorithm itself.

// CARCCategory buckets claim-adjustment reason codes for reporting.
type CARCCategory string

const (
	CategoryContractual CARCCategory = "contractual"
	CategoryDenial      CARCCategory = "denial"
	CategoryPatient     CARCCategory = "patient_responsibility"
	CategoryOther       CARCCategory = "other"
)

type carcEntry struct {
	Description string
	Category    CARCCategory
}

// carcTable covers the codes seen in day-to-day professional-claim
// remittances. Unknown codes fall back to CategoryOther.
var carcTable = map[string]carcEntry{
	"1":   {"Deductible amount", CategoryPatient},
	"2":   {"Coinsurance amount", CategoryPatient},
	"3":   {"Co-payment amount", CategoryPatient},
	"4":   {"Procedure code inconsistent with modifier", CategoryDenial},
	"11":  {"Diagnosis inconsistent with procedure", CategoryDenial},
	"16":  {"Claim lacks information needed for adjudication", CategoryDenial},
	"18":  {"Exact duplicate claim/service", CategoryDenial},
	"22":  {"Care may be covered by another payer per coordination of benefits", CategoryDenial},
	"23":  {"Impact of prior payer(s) adjudication", CategoryOther},
	"26":  {"Expenses incurred prior to coverage", CategoryDenial},
	"27":  {"Expenses incurred after coverage terminated", CategoryDenial},
	"29":  {"Time limit for filing has expired", CategoryDenial},
	"45":  {"Charge exceeds fee schedule/maximum allowable", CategoryContractual},
	"50":  {"Non-covered service: not deemed a medical necessity", CategoryDenial},
	"96":  {"Non-covered charge(s)", CategoryDenial},
	"97":  {"Benefit included in payment/allowance for another service", CategoryContractual},
	"109": {"Claim not covered by this payer/contractor", CategoryDenial},
	"119": {"Benefit maximum for this time period has been reached", CategoryDenial},
	"151": {"Payment adjusted: information does not support this many services", CategoryDenial},
	"197": {"Precertification/authorization absent", CategoryDenial},
	"204": {"Service not covered under the patient's current benefit plan", CategoryDenial},
	"253": {"Sequestration - reduction in federal payment", CategoryContractual},
	"B7":  {"Provider not certified/eligible for this service on this date", CategoryDenial},
}

// rarcTable holds remittance-advice remark code descriptions.
var rarcTable = map[string]string{
	"M15":  "Separately billed services/tests bundled",
	"M25":  "Information furnished does not substantiate the need for this service level",
	"M80":  "Not covered when performed during the same session as a covered service",
	"N130": "Consult plan benefit documents for coverage information",
	"N265": "Missing/incomplete/invalid ordering provider primary identifier",
	"N290": "Missing/incomplete/invalid rendering provider primary identifier",
	"N362": "Number of days or units exceeds acceptable maximum",
	"N386": "Decision based on National Coverage Determination",
	"N522": "Duplicate of a claim processed or to be processed as a crossover claim",
}

// casGroupDescriptions maps CAS group codes to display names.
var casGroupDescriptions = map[string]string{
	"CO": "Contractual Obligation",
	"PR": "Patient Responsibility",
	"OA": "Other Adjustment",
	"PI": "Payer Initiated Reduction",
	"CR": "Correction and Reversal",
}

// CARCDescription returns the human-readable description for a CARC, or a
// generic fallback.
func CARCDescription(code string) string {
	if e, ok := carcTable[code]; ok {
		return e.Description
	}
	return "Adjustment reason " + code
}

// CARCCategoryFor returns the reporting category for a CARC.
func CARCCategoryFor(code string) CARCCategory {
	if e, ok := carcTable[code]; ok {
		return e.Category
	}
	return CategoryOther
}

// RARCDescription returns the human-readable description for a RARC, or a
// generic fallback.
func RARCDescription(code string) string {
	if d, ok := rarcTable[code]; ok {
		return d
	}
	return "Remark " + code
}

// CASGroupDescription returns the display name for a CAS group code.
func CASGroupDescription(group string) string {
	if d, ok := casGroupDescriptions[group]; ok {
		return d
	}
	return group
}

// IsDenialCode reports whether a CARC indicates an outright denial.
func IsDenialCode(code string) bool {
	return CARCCategoryFor(code) == CategoryDenial
}
