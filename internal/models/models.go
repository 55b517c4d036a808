package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType represents the kind of a point-of-sale record
type TransactionType string

const (
	// TransactionTypeNormal is a regular sale
	TransactionTypeNormal TransactionType = "normal"
	// TransactionTypeCancel reverses an earlier sale
	TransactionTypeCancel TransactionType = "cancel"
)

// DefaultCancelMarkers are the source labels that mark a cancellation.
var DefaultCancelMarkers = []string{"취소", "cancel"}

// String returns the string representation of TransactionType
func (t TransactionType) String() string {
	return string(t)
}

// IsValid checks if the transaction type is valid
func (t TransactionType) IsValid() bool {
	return t == TransactionTypeNormal || t == TransactionTypeCancel
}

// ParseTransactionType maps a source label to a TransactionType. A label
// equal to one of the markers (case-insensitive) is a cancellation,
// anything else is a normal sale. A nil markers slice uses DefaultCancelMarkers.
func ParseTransactionType(s string, markers []string) TransactionType {
	if markers == nil {
		markers = DefaultCancelMarkers
	}
	s = strings.TrimSpace(s)
	for _, m := range markers {
		if strings.EqualFold(s, strings.TrimSpace(m)) {
			return TransactionTypeCancel
		}
	}
	return TransactionTypeNormal
}

// Branch is a canonical retail location. The value is the display name.
type Branch string

const (
	BranchGangnamGuOffice Branch = "강남구청"
	BranchGiheung         Branch = "기흥"
	BranchYeouido         Branch = "여의도"
	BranchMokdong         Branch = "목동"
	BranchWonju           Branch = "원주"
	BranchGangnam         Branch = "강남"
	BranchOther           Branch = "기타"
)

// String returns the display name of the branch
func (b Branch) String() string {
	return string(b)
}

// IsReportable reports whether the branch gets its own rows in the metrics table
func (b Branch) IsReportable() bool {
	return b != "" && b != BranchOther
}

var (
	// ErrMissingCustomer marks a record without a customer identifier
	ErrMissingCustomer = errors.New("customer id is empty")
	// ErrMissingTimestamp marks a record whose timestamp could not be parsed
	ErrMissingTimestamp = errors.New("timestamp is missing or unparsable")
)

// RawTransaction is one record as supplied by an ingestion adapter.
// Timestamp is zero when the source value could not be parsed.
type RawTransaction struct {
	CustomerID string          `json:"customer_id"`
	Branch     string          `json:"branch"`
	Amount     decimal.Decimal `json:"amount"`
	Type       TransactionType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
	Source     string          `json:"source,omitempty"`
}

// Validate reports why a raw record cannot enter the pipeline
func (t *RawTransaction) Validate() error {
	if strings.TrimSpace(t.CustomerID) == "" {
		return ErrMissingCustomer
	}
	if t.Timestamp.IsZero() {
		return ErrMissingTimestamp
	}
	return nil
}

// String returns a string representation of the RawTransaction
func (t *RawTransaction) String() string {
	return fmt.Sprintf("RawTransaction{Customer: %s, Branch: %s, Amount: %s, Type: %s, Time: %s, Seq: %d}",
		t.CustomerID, t.Branch, t.Amount.String(), t.Type, t.Timestamp.Format(DateTimeLayout), t.Sequence)
}

// CanonicalTransaction is a normalized record with its signed amount and canonical branch
type CanonicalTransaction struct {
	CustomerID string          `json:"customer_id"`
	Branch     Branch          `json:"branch"`
	RawBranch  string          `json:"raw_branch"`
	Amount     decimal.Decimal `json:"amount"`
	NetAmount  decimal.Decimal `json:"net_amount"`
	Type       TransactionType `json:"type"`
	Timestamp  time.Time       `json:"timestamp"`
	Sequence   int64           `json:"sequence"`
}

// NewCanonicalTransaction derives the net amount from the transaction type
func NewCanonicalTransaction(raw RawTransaction, branch Branch) CanonicalTransaction {
	net := raw.Amount
	if raw.Type == TransactionTypeCancel {
		net = raw.Amount.Neg()
	}
	return CanonicalTransaction{
		CustomerID: strings.TrimSpace(raw.CustomerID),
		Branch:     branch,
		RawBranch:  raw.Branch,
		Amount:     raw.Amount,
		NetAmount:  net,
		Type:       raw.Type,
		Timestamp:  raw.Timestamp,
		Sequence:   raw.Sequence,
	}
}

// Key returns the (branch, customer) group the transaction belongs to
func (t *CanonicalTransaction) Key() CustomerKey {
	return CustomerKey{Branch: t.Branch, CustomerID: t.CustomerID}
}

// Month returns the YYYY-MM label of the transaction
func (t *CanonicalTransaction) Month() string {
	return MonthLabel(t.Timestamp)
}

// CustomerKey identifies a customer at one branch
type CustomerKey struct {
	Branch     Branch `json:"branch"`
	CustomerID string `json:"customer_id"`
}

// String returns a string representation of the CustomerKey
func (k CustomerKey) String() string {
	return fmt.Sprintf("%s/%s", k.Branch, k.CustomerID)
}

// Less orders keys by branch, then customer id
func (k CustomerKey) Less(other CustomerKey) bool {
	if k.Branch != other.Branch {
		return k.Branch < other.Branch
	}
	return k.CustomerID < other.CustomerID
}

// CustomerProfile holds lifetime aggregates for one customer at one branch
type CustomerProfile struct {
	Key         CustomerKey `json:"key"`
	FirstVisit  time.Time   `json:"first_visit"`
	LastVisit   time.Time   `json:"last_visit"`
	TotalVisits int         `json:"total_visits"`
	SecondVisit *time.Time  `json:"second_visit,omitempty"`
}

// FirstMonth returns the month label of the first visit
func (p *CustomerProfile) FirstMonth() string {
	return MonthLabel(p.FirstVisit)
}

// Lifetime returns the span between first and last visit
func (p *CustomerProfile) Lifetime() time.Duration {
	return p.LastVisit.Sub(p.FirstVisit)
}

// TimelineRow is a deduplicated transaction tagged with its visit number and month
type TimelineRow struct {
	Transaction CanonicalTransaction `json:"transaction"`
	VisitNo     int                  `json:"visit_no"`
	Month       string               `json:"month"`
	Profile     *CustomerProfile     `json:"-"`
}

// Timeline is the output of the timeline builder: rows in group order,
// one profile per group, every month label in the dataset and the
// latest timestamp seen.
type Timeline struct {
	Rows         []TimelineRow                    `json:"rows"`
	Profiles     map[CustomerKey]*CustomerProfile `json:"-"`
	Months       []string                         `json:"months"`
	MaxTimestamp time.Time                        `json:"max_timestamp"`
}

// Branches returns the reportable branches present in the timeline, sorted by display name
func (tl *Timeline) Branches() []Branch {
	seen := make(map[Branch]struct{})
	for _, row := range tl.Rows {
		if row.Transaction.Branch.IsReportable() {
			seen[row.Transaction.Branch] = struct{}{}
		}
	}
	branches := make([]Branch, 0, len(seen))
	for b := range seen {
		branches = append(branches, b)
	}
	sort.Slice(branches, func(i, j int) bool { return branches[i] < branches[j] })
	return branches
}

// MarshalJSON implements custom JSON marshaling for CustomerProfile
func (p *CustomerProfile) MarshalJSON() ([]byte, error) {
	var second *string
	if p.SecondVisit != nil {
		s := p.SecondVisit.Format(DateTimeLayout)
		second = &s
	}
	return json.Marshal(&struct {
		Branch      string  `json:"branch"`
		CustomerID  string  `json:"customer_id"`
		FirstVisit  string  `json:"first_visit"`
		LastVisit   string  `json:"last_visit"`
		TotalVisits int     `json:"total_visits"`
		SecondVisit *string `json:"second_visit,omitempty"`
	}{
		Branch:      p.Key.Branch.String(),
		CustomerID:  p.Key.CustomerID,
		FirstVisit:  p.FirstVisit.Format(DateTimeLayout),
		LastVisit:   p.LastVisit.Format(DateTimeLayout),
		TotalVisits: p.TotalVisits,
		SecondVisit: second,
	})
}
