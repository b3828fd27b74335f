// Package reconcile compares parsed feed records with transactions that
// already exist in a budget, so that pushing the same screenshots twice
// does not create duplicates. It has no network access of its own.
package reconcile

import (
	"crypto/sha256"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/yurifrl/feedscan/pkg/models"
)

// Status indicates the reconciliation result for a local record.
type Status int

const (
	Synced Status = iota
	ToAdd
	// Invalid records have an amount or date that cannot be pushed.
	Invalid
)

func (s Status) String() string {
	switch s {
	case Synced:
		return "synced"
	case ToAdd:
		return "to_add"
	default:
		return "invalid"
	}
}

// Remote is a transaction that already exists in the budget.
type Remote struct {
	ID         string
	Date       time.Time
	Payee      string
	Milliunits int64
	ImportID   string
}

// Entry links a local record with its remote counterpart, if any.
type Entry struct {
	Local      models.Record
	Remote     *Remote // nil unless Synced
	Status     Status
	Date       time.Time
	Milliunits int64
	ImportID   string
	Err        error // set when Invalid
}

type Report struct {
	Items []Entry
}

var thousand = decimal.NewFromInt(1000)

// Milliunits converts a record amount to signed thousandths. Feed amounts
// carry no sign, so they count as outflows unless inflow is set.
func Milliunits(r models.Record, inflow bool) (int64, error) {
	d, err := r.Decimal()
	if err != nil {
		return 0, err
	}
	m := d.Mul(thousand).Round(0).IntPart()
	if !inflow {
		m = -m
	}
	return m, nil
}

// ImportID builds a stable identifier for the nth occurrence of an
// identical record in a batch.
func ImportID(date time.Time, note string, milliunits int64, occurrence int) string {
	input := fmt.Sprintf("%s|%s|%d|%d", date.Format("2006-01-02"), strings.ToLower(strings.TrimSpace(note)), milliunits, occurrence)
	hash := sha256.Sum256([]byte(input))
	return fmt.Sprintf("FEEDSCAN:%x", hash)[:25]
}

func matchKey(date time.Time, payee string, milliunits int64) string {
	return fmt.Sprintf("%d|%s|%s", milliunits, strings.ToLower(strings.TrimSpace(payee)), date.Format("2006-01-02"))
}

// Build matches local records against remote transactions, first by import
// ID and then by amount, payee and date. Each remote transaction matches at
// most one record.
func Build(local []models.Record, remote []Remote, inflow bool) *Report {
	byImport := make(map[string]*Remote, len(remote))
	byKey := make(map[string][]*Remote, len(remote))
	for i := range remote {
		rt := &remote[i]
		if rt.ImportID != "" {
			byImport[rt.ImportID] = rt
		}
		k := matchKey(rt.Date, rt.Payee, rt.Milliunits)
		byKey[k] = append(byKey[k], rt)
	}

	used := make(map[*Remote]bool, len(remote))
	occurrences := make(map[string]int, len(local))
	items := make([]Entry, 0, len(local))

	for _, lr := range local {
		entry := Entry{Local: lr, Status: ToAdd}

		date, err := lr.Time()
		if err != nil {
			entry.Status, entry.Err = Invalid, err
			items = append(items, entry)
			continue
		}
		m, err := Milliunits(lr, inflow)
		if err != nil {
			entry.Status, entry.Err = Invalid, err
			items = append(items, entry)
			continue
		}
		entry.Date, entry.Milliunits = date, m

		k := matchKey(date, lr.Note, m)
		entry.ImportID = ImportID(date, lr.Note, m, occurrences[k])
		occurrences[k]++

		if rt, ok := byImport[entry.ImportID]; ok && !used[rt] {
			entry.Remote = rt
		} else {
			for _, candidate := range byKey[k] {
				if !used[candidate] {
					entry.Remote = candidate
					break
				}
			}
		}
		if entry.Remote != nil {
			used[entry.Remote] = true
			entry.Status = Synced
		}
		items = append(items, entry)
	}

	return &Report{Items: items}
}

func (r *Report) count(s Status) int {
	n := 0
	for _, e := range r.Items {
		if e.Status == s {
			n++
		}
	}
	return n
}

// InSyncCount returns how many records already exist remotely.
func (r *Report) InSyncCount() int { return r.count(Synced) }

// MissingCount returns how many records still need to be created.
func (r *Report) MissingCount() int { return r.count(ToAdd) }

// InvalidCount returns how many records cannot be pushed.
func (r *Report) InvalidCount() int { return r.count(Invalid) }

// ToSync returns the entries that still need to be created.
func (r *Report) ToSync() []Entry {
	var out []Entry
	for _, e := range r.Items {
		if e.Status == ToAdd {
			out = append(out, e)
		}
	}
	return out
}

var (
	syncedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	addedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	invalidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
)

// Print renders one line per record followed by a summary.
func (r *Report) Print(w io.Writer) {
	for _, e := range r.Items {
		switch e.Status {
		case Synced:
			fmt.Fprintln(w, syncedStyle.Render(fmt.Sprintf("= %s | %-30s | $ %s", e.Local.Date, e.Local.Note, e.Local.Amount)))
		case ToAdd:
			fmt.Fprintln(w, addedStyle.Render(fmt.Sprintf("+ %s | %-30s | $ %s", e.Local.Date, e.Local.Note, e.Local.Amount)))
		default:
			fmt.Fprintln(w, invalidStyle.Render(fmt.Sprintf("! %s | %-30s | $ %s | %v", e.Local.Date, e.Local.Note, e.Local.Amount, e.Err)))
		}
	}

	if r.MissingCount() == 0 {
		fmt.Fprintf(w, "\nPlan: All %d transaction(s) are in sync", r.InSyncCount())
	} else {
		fmt.Fprintf(w, "\nPlan: %d transaction(s) will be added, %d already in sync", r.MissingCount(), r.InSyncCount())
	}
	if n := r.InvalidCount(); n > 0 {
		fmt.Fprintf(w, ", %d skipped", n)
	}
	fmt.Fprintln(w)
}
