package schema

import "debtor-import/internal/fieldtype"

const (
	DebtorSchemaName    = "debtor"
	DebtorSchemaVersion = 1
)

// Debtor statuses accepted by the collection workflow.
const (
	StatusActive       = "ACTIVE"
	StatusPromiseToPay = "PROMISE_TO_PAY"
	StatusPaid         = "PAID"
	StatusWrittenOff   = "WRITTEN_OFF"
)

// Debtor returns the schema every imported debtor record must satisfy
// before it reaches the collection workflow.
func Debtor() *Schema {
	return New(DebtorSchemaName, DebtorSchemaVersion,
		FieldSpec{Path: "customerId", Required: true, Rules: "max=64"},
		FieldSpec{Path: "fullName", Required: true, Rules: "max=255"},
		FieldSpec{Path: "nationalId", Rules: "numeric,len=16"},
		FieldSpec{Path: "mobilePhones", Type: fieldtype.JSON, Required: true, Rules: "min=1"},
		FieldSpec{Path: "email", Rules: "email"},
		FieldSpec{Path: "outstandingAmount", Type: fieldtype.Decimal, Required: true, Rules: "gte=0"},
		FieldSpec{Path: "daysPastDue", Type: fieldtype.Integer, Rules: "gte=0"},
		FieldSpec{Path: "dueDate", Type: fieldtype.DateOnly},
		FieldSpec{Path: "status", Rules: "oneof=" + StatusActive + " " + StatusPromiseToPay + " " + StatusPaid + " " + StatusWrittenOff},
		FieldSpec{
			Path:       "promiseDate",
			Type:       fieldtype.DateOnly,
			RequiredIf: &Condition{Path: "status", Equals: StatusPromiseToPay},
		},
		FieldSpec{Path: "address.city", Rules: "max=100"},
		FieldSpec{Path: "address.postalCode", Rules: "numeric,len=5"},
	)
}
