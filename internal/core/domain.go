package core

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	// XPPerSavedBRL is the base experience earned for each BRL deposited.
	XPPerSavedBRL = 0.1
	// XPLossPerMissedMonth is subtracted when a savings streak breaks.
	XPLossPerMissedMonth = 50.0
	// DefaultSavingsGoal is the per-cycle target ("battle pass" goal).
	DefaultSavingsGoal = 10000.0
	// RecurringMonths is how many records a recurring transaction expands to.
	RecurringMonths = 12
	// CustomDescription is the description value that requires a custom description.
	CustomDescription = "Outra"
)

const (
	FrequencySingle       Frequency = "single"
	FrequencyInstallments Frequency = "installments"
	FrequencyRecurring    Frequency = "recurring"
)

const (
	DeleteSingle DeleteScope = "single"
	DeleteAll    DeleteScope = "all"
)

type (
	Frequency   string
	DeleteScope string

	// User is the minimal identity handed over by the authentication layer.
	User struct {
		UID         string `json:"uid"`
		Email       string `json:"email"`
		DisplayName string `json:"displayName"`
		PhotoURL    string `json:"photoURL"`
	}

	// UserProfile is the gamification state of a user.
	UserProfile struct {
		UID             string    `json:"uid" bson:"_id"`
		Email           string    `json:"email" bson:"email"`
		DisplayName     string    `json:"displayName" bson:"displayName"`
		PhotoURL        string    `json:"photoURL" bson:"photoURL"`
		XP              float64   `json:"xp" bson:"xp"`
		Level           int       `json:"level" bson:"level"`
		Streak          int       `json:"streak" bson:"streak"`
		LastSavingsDate time.Time `json:"lastSavingsDate" bson:"lastSavingsDate"`
		SavingsGoal     float64   `json:"savingsGoal" bson:"savingsGoal"`
		TotalSavings    float64   `json:"totalSavings" bson:"totalSavings"`
		SavingsCycle    int       `json:"savingsCycle" bson:"savingsCycle"`
	}

	// ProfileDocument is the persisted shape of a profile. The last four fields
	// were added after the first release and may be absent on older records.
	ProfileDocument struct {
		UID             string     `bson:"_id"`
		Email           string     `bson:"email"`
		DisplayName     string     `bson:"displayName"`
		PhotoURL        string     `bson:"photoURL"`
		XP              float64    `bson:"xp"`
		Level           int        `bson:"level"`
		Streak          int        `bson:"streak"`
		LastSavingsDate *time.Time `bson:"lastSavingsDate,omitempty"`
		SavingsGoal     *float64   `bson:"savingsGoal,omitempty"`
		TotalSavings    *float64   `bson:"totalSavings,omitempty"`
		SavingsCycle    *int       `bson:"savingsCycle,omitempty"`
	}

	Transaction struct {
		ID               string    `json:"id" bson:"_id"`
		UserID           string    `json:"userId" bson:"userId"`
		Description      string    `json:"description" bson:"description"`
		Value            float64   `json:"value" bson:"value"`
		Category         string    `json:"category" bson:"category"`
		Date             time.Time `json:"date" bson:"date"`
		DueDate          time.Time `json:"dueDate" bson:"dueDate"`
		IsPaid           bool      `json:"isPaid" bson:"isPaid"`
		IsRecurring      bool      `json:"isRecurring" bson:"isRecurring"`
		InstallmentIndex *string   `json:"installmentIndex" bson:"installmentIndex"`
		GroupID          *string   `json:"groupId" bson:"groupId"`
	}

	// TransactionInput is what a user submits to create one or more transactions.
	TransactionInput struct {
		Description       string    `json:"description"`
		CustomDescription string    `json:"customDescription,omitempty"`
		Details           string    `json:"details,omitempty"`
		Value             float64   `json:"value"`
		Category          string    `json:"category"`
		DueDate           time.Time `json:"dueDate"`
		Frequency         Frequency `json:"frequency,omitempty"`
		Installments      int       `json:"installments,omitempty"`
	}

	// TransactionUpdate carries the user-editable fields of a transaction.
	TransactionUpdate struct {
		Description string    `json:"description"`
		Value       float64   `json:"value"`
		Category    string    `json:"category"`
		DueDate     time.Time `json:"dueDate"`
	}

	// TransactionPatch lists the fields a store must overwrite; nil means untouched.
	TransactionPatch struct {
		Description *string
		Value       *float64
		Category    *string
		DueDate     *time.Time
		IsPaid      *bool
	}

	Summary struct {
		TotalPayable     float64 `json:"totalPayable"`
		TotalPaid        float64 `json:"totalPaid"`
		RemainingBalance float64 `json:"remainingBalance"`
		TotalSaved       float64 `json:"totalSaved"`
	}

	Category struct {
		Value string `json:"value"`
		Label string `json:"label"`
	}
)

// CategorySavings marks piggy-bank deposits.
const CategorySavings = "Savings"

// Categories is the fixed category set offered to users.
var Categories = []Category{
	{Value: "Groceries", Label: "Supermercado"},
	{Value: "Dining", Label: "Restaurantes"},
	{Value: "Entertainment", Label: "Entretenimento"},
	{Value: "Utilities", Label: "Contas"},
	{Value: "Rent", Label: "Aluguel"},
	{Value: "Salary", Label: "Salário"},
	{Value: "Investments", Label: "Investimentos"},
	{Value: "Shopping", Label: "Compras"},
	{Value: "Transport", Label: "Transporte"},
	{Value: CategorySavings, Label: "Cofrinho"},
	{Value: "Other", Label: "Outros"},
}

var (
	ErrNotFound     = errors.New("not found")
	ErrAccessDenied = errors.New("access denied")
)

// ValidationError reports malformed input field by field.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid fields: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// NewValidationError builds a single-field validation error.
func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// Epoch is the "never saved" marker stored in LastSavingsDate.
func Epoch() time.Time {
	return time.UnixMilli(0).UTC()
}

// CategoryLabel returns the display label of a category value.
func CategoryLabel(value string) string {
	for _, c := range Categories {
		if c.Value == value {
			return c.Label
		}
	}
	return value
}

// IsSavings reports whether the transaction is a piggy-bank deposit.
func (t Transaction) IsSavings() bool {
	return t.Category == CategorySavings
}

// FinalDescription resolves the custom description and appends details.
func (in TransactionInput) FinalDescription() string {
	base := strings.TrimSpace(in.Description)
	if base == CustomDescription {
		base = strings.TrimSpace(in.CustomDescription)
	}
	if d := strings.TrimSpace(in.Details); d != "" {
		return base + " - " + d
	}
	return base
}

// Normalize fills the default frequency.
func (in TransactionInput) Normalize() TransactionInput {
	if in.Frequency == "" {
		in.Frequency = FrequencySingle
	}
	return in
}

func (in TransactionInput) Validate() error {
	in = in.Normalize()
	ve := &ValidationError{}
	if strings.TrimSpace(in.Description) == "" {
		ve.add("description", "description is required")
	}
	if strings.TrimSpace(in.Description) == CustomDescription && len([]rune(strings.TrimSpace(in.CustomDescription))) < 2 {
		ve.add("customDescription", "custom description must have at least 2 characters")
	}
	if in.Value <= 0 {
		ve.add("value", "value must be a positive number")
	}
	if strings.TrimSpace(in.Category) == "" {
		ve.add("category", "category is required")
	}
	if in.DueDate.IsZero() {
		ve.add("dueDate", "due date is required")
	}
	switch in.Frequency {
	case FrequencySingle, FrequencyRecurring:
	case FrequencyInstallments:
		if in.Installments < 2 {
			ve.add("installments", "must have at least 2 installments")
		}
	default:
		ve.add("frequency", fmt.Sprintf("unknown frequency %q", in.Frequency))
	}
	return ve.orNil()
}

func (u TransactionUpdate) Validate() error {
	ve := &ValidationError{}
	if strings.TrimSpace(u.Description) == "" {
		ve.add("description", "description is required")
	}
	if u.Value <= 0 {
		ve.add("value", "value must be a positive number")
	}
	if strings.TrimSpace(u.Category) == "" {
		ve.add("category", "category is required")
	}
	if u.DueDate.IsZero() {
		ve.add("dueDate", "due date is required")
	}
	return ve.orNil()
}

// Patch converts the update into the fields a store overwrites.
func (u TransactionUpdate) Patch() TransactionPatch {
	desc := strings.TrimSpace(u.Description)
	cat := strings.TrimSpace(u.Category)
	value := u.Value
	due := u.DueDate
	return TransactionPatch{Description: &desc, Value: &value, Category: &cat, DueDate: &due}
}

// Apply overwrites the patched fields of t.
func (p TransactionPatch) Apply(t *Transaction) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Value != nil {
		t.Value = *p.Value
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.DueDate != nil {
		t.DueDate = *p.DueDate
	}
	if p.IsPaid != nil {
		t.IsPaid = *p.IsPaid
	}
}

// BuildBatch expands a validated input into the records of one user action.
// newID is called once per record; groupID is used for installment and
// recurring batches only.
func BuildBatch(userID string, in TransactionInput, now time.Time, groupID string, newID func() string) []Transaction {
	in = in.Normalize()
	base := Transaction{
		UserID:      userID,
		Description: in.FinalDescription(),
		Value:       in.Value,
		Category:    strings.TrimSpace(in.Category),
		Date:        now,
	}

	switch in.Frequency {
	case FrequencyInstallments:
		out := make([]Transaction, 0, in.Installments)
		per := in.Value / float64(in.Installments)
		for i := 0; i < in.Installments; i++ {
			t := base
			t.ID = newID()
			t.Value = per
			t.DueDate = AddMonths(in.DueDate, i)
			idx := fmt.Sprintf("%d/%d", i+1, in.Installments)
			t.InstallmentIndex = &idx
			g := groupID
			t.GroupID = &g
			out = append(out, t)
		}
		return out
	case FrequencyRecurring:
		out := make([]Transaction, 0, RecurringMonths)
		for i := 0; i < RecurringMonths; i++ {
			t := base
			t.ID = newID()
			t.DueDate = AddMonths(in.DueDate, i)
			t.IsRecurring = true
			g := groupID
			t.GroupID = &g
			out = append(out, t)
		}
		return out
	default:
		t := base
		t.ID = newID()
		t.DueDate = in.DueDate
		t.IsPaid = t.IsSavings()
		return []Transaction{t}
	}
}
