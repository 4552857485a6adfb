package core

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ImputeBoth Impute = iota
	ImputeMariano
	ImputeGabriela
)

const (
	CategoryAlquilerBA Category = "alquiler_ba"
	CategoryUniversity Category = "universidad"
	CategoryDailyLife  Category = "vida_diaria"
	CategoryPhone      Category = "telefono"
	CategoryHealth     Category = "salud"
	CategoryOther      Category = "otros"
)

const dateLayout = "2006-01-02"

type (
	// Impute names who an expense is charged to, independent of who paid it.
	// The zero value is ImputeBoth.
	Impute int

	// Category is one of the six fixed expense categories.
	Category string

	// Date is a calendar date. The time part is always midnight UTC so that
	// year and month never shift with the host time zone.
	Date struct {
		time.Time
	}

	Expense struct {
		ID                 string          `json:"id"`
		Amount             decimal.Decimal `json:"amount"`
		Description        string          `json:"description"`
		Category           Category        `json:"category"`
		PaidBy             UserID          `json:"paidBy"`
		ImputeTo           Impute          `json:"imputeTo"`
		NeedsReimbursement bool            `json:"needsReimbursement"`
		Date               Date            `json:"date"`
		CreatedBy          UserID          `json:"createdBy"`
		CreatedAt          time.Time       `json:"createdAt"`
		UpdatedAt          time.Time       `json:"updatedAt"`
	}

	Transfer struct {
		ID        string          `json:"id"`
		From      UserID          `json:"from"`
		To        UserID          `json:"to"`
		Amount    decimal.Decimal `json:"amount"`
		Date      Date            `json:"date"`
		CreatedBy UserID          `json:"createdBy,omitempty"`
		CreatedAt time.Time       `json:"createdAt"`
	}

	// Snapshot is a full dump of the record store.
	Snapshot struct {
		Expenses  []Expense  `json:"expenses"`
		Transfers []Transfer `json:"transfers"`
	}
)

var (
	ErrInvalidRecord      = errors.New("invalid record")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidMonth       = errors.New("invalid month")
	ErrInvalidImpute      = errors.New("invalid impute target")
	ErrInvalidCategory    = errors.New("invalid category")
	ErrEmptyDescription   = errors.New("empty description")
	ErrUnknownUser        = errors.New("unknown user")
	ErrTransferNotAllowed = errors.New("transfer route not allowed")
	ErrForbidden          = errors.New("forbidden")
)

var imputeNames = [...]string{"both", "mariano", "gabriela"}

func (i Impute) String() string {
	if i < ImputeBoth || i > ImputeGabriela {
		return fmt.Sprintf("Impute(%d)", int(i))
	}
	return imputeNames[i]
}

// Valid reports whether i is one of the three known targets.
func (i Impute) Valid() bool {
	return i >= ImputeBoth && i <= ImputeGabriela
}

// ParseImpute converts the wire form. An empty string means ImputeBoth, as
// records written before the field existed carry no value.
func ParseImpute(s string) (Impute, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ImputeBoth, nil
	}
	for i, name := range imputeNames {
		if name == s {
			return Impute(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidImpute, s)
}

func (i Impute) MarshalText() ([]byte, error) {
	if !i.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidImpute, int(i))
	}
	return []byte(imputeNames[i]), nil
}

func (i *Impute) UnmarshalText(b []byte) error {
	v, err := ParseImpute(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

var categoryNames = []struct {
	id   Category
	name string
}{
	{CategoryAlquilerBA, "Alquiler BA"},
	{CategoryUniversity, "Universidad"},
	{CategoryDailyLife, "Vida diaria"},
	{CategoryPhone, "Teléfono"},
	{CategoryHealth, "Salud"},
	{CategoryOther, "Otros"},
}

// Categories returns the fixed category list in display order.
func Categories() []Category {
	out := make([]Category, len(categoryNames))
	for i, c := range categoryNames {
		out[i] = c.id
	}
	return out
}

// Name returns the display name, or the raw id for unknown values.
func (c Category) Name() string {
	for _, cn := range categoryNames {
		if cn.id == c {
			return cn.name
		}
	}
	return string(c)
}

func (c Category) Valid() bool {
	for _, cn := range categoryNames {
		if cn.id == c {
			return true
		}
	}
	return false
}

func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCategory, s)
	}
	return c, nil
}

// NewDate creates a new Date from year, month, day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string as a calendar date.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// DateOf drops the clock part of t, keeping t's own calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(dateLayout)
}

// InMonth reports whether the date falls in the given year and month (1-12).
func (d Date) InMonth(year, month int) bool {
	return d.Year() == year && int(d.Month()) == month
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// MarshalJSON overrides the promoted time.Time encoding.
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, b)
	}
	return d.UnmarshalText([]byte(s))
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// ValidateMonth checks a 1-12 month number.
func ValidateMonth(month int) error {
	if month < 1 || month > 12 {
		return fmt.Errorf("%w: %d", ErrInvalidMonth, month)
	}
	return nil
}

// Validate checks the fields a new or edited expense must carry.
func (e Expense) Validate() error {
	if e.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: %w: %s", ErrInvalidRecord, ErrInvalidAmount, e.Amount)
	}
	if strings.TrimSpace(e.Description) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyDescription)
	}
	if len(e.Description) > 200 {
		return fmt.Errorf("%w: description too long (max 200 characters)", ErrInvalidRecord)
	}
	if !e.Category.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidRecord, ErrInvalidCategory, e.Category)
	}
	if _, ok := LookupUser(e.PaidBy); !ok {
		return fmt.Errorf("%w: paidBy: %w: %q", ErrInvalidRecord, ErrUnknownUser, e.PaidBy)
	}
	if !e.ImputeTo.Valid() {
		return fmt.Errorf("%w: %w: %d", ErrInvalidRecord, ErrInvalidImpute, int(e.ImputeTo))
	}
	if e.Date.IsZero() {
		return fmt.Errorf("%w: %w: missing", ErrInvalidRecord, ErrInvalidDate)
	}
	if _, ok := LookupUser(e.CreatedBy); !ok {
		return fmt.Errorf("%w: createdBy: %w: %q", ErrInvalidRecord, ErrUnknownUser, e.CreatedBy)
	}
	return nil
}

// Validate checks a transfer's fields. The route itself is checked
// separately by ValidateTransferRoute.
func (t Transfer) Validate() error {
	if t.Amount.Sign() <= 0 {
		return fmt.Errorf("%w: %w: %s", ErrInvalidRecord, ErrInvalidAmount, t.Amount)
	}
	if _, ok := LookupUser(t.From); !ok {
		return fmt.Errorf("%w: from: %w: %q", ErrInvalidRecord, ErrUnknownUser, t.From)
	}
	if _, ok := LookupUser(t.To); !ok {
		return fmt.Errorf("%w: to: %w: %q", ErrInvalidRecord, ErrUnknownUser, t.To)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("%w: %w: missing", ErrInvalidRecord, ErrInvalidDate)
	}
	return nil
}

var allowedRoutes = map[[2]UserID]bool{
	{Mariano, Gabriela}:    true,
	{Gabriela, Mariano}:    true,
	{Mariano, JuanMartin}:  true,
	{Gabriela, JuanMartin}: true,
}

// ValidateTransferRoute accepts only the four directed pairs the household
// uses: between the parents either way, or from a parent to Juan Martín.
func ValidateTransferRoute(from, to UserID) error {
	if !allowedRoutes[[2]UserID{from, to}] {
		return fmt.Errorf("%w: %s -> %s", ErrTransferNotAllowed, from, to)
	}
	return nil
}

// AllowedTransferTargets lists the recipients a sender may pay.
func AllowedTransferTargets(from UserID) []UserID {
	var out []UserID
	for _, to := range []UserID{Mariano, Gabriela, JuanMartin} {
		if allowedRoutes[[2]UserID{from, to}] {
			out = append(out, to)
		}
	}
	return out
}
