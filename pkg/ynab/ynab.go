package ynab

import (
	"fmt"

	"github.com/brunomvsouza/ynab.go"
	"github.com/brunomvsouza/ynab.go/api"
	"github.com/brunomvsouza/ynab.go/api/transaction"

	"github.com/yurifrl/feedscan/pkg/reconcile"
)

// YNABClient wraps the YNAB API client with the calls feedscan needs.
type YNABClient struct {
	client ynab.ClientServicer
}

func New(token string) *YNABClient {
	return &YNABClient{
		client: ynab.NewClient(token),
	}
}

// Transactions fetches the non-deleted transactions of an account.
func (c *YNABClient) Transactions(budgetID, accountID string) ([]reconcile.Remote, error) {
	txs, err := c.client.Transaction().GetTransactionsByAccount(budgetID, accountID, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}

	remote := make([]reconcile.Remote, 0, len(txs))
	for _, tx := range txs {
		if tx.Deleted {
			continue
		}
		remote = append(remote, toRemote(tx))
	}
	return remote, nil
}

func toRemote(tx *transaction.Transaction) reconcile.Remote {
	r := reconcile.Remote{
		ID:         tx.ID,
		Date:       tx.Date.Time,
		Milliunits: tx.Amount,
	}
	if tx.PayeeName != nil {
		r.Payee = *tx.PayeeName
	}
	if tx.ImportID != nil {
		r.ImportID = *tx.ImportID
	}
	return r
}

// Payload converts a reconciled entry into a create request.
func Payload(e reconcile.Entry, accountID string) (transaction.PayloadTransaction, error) {
	date, err := api.DateFromString(e.Date.Format("2006-01-02"))
	if err != nil {
		return transaction.PayloadTransaction{}, fmt.Errorf("invalid date for %q: %w", e.Local.Note, err)
	}
	payee := e.Local.Note
	importID := e.ImportID
	return transaction.PayloadTransaction{
		AccountID: accountID,
		Date:      date,
		Amount:    e.Milliunits,
		Cleared:   transaction.ClearingStatusCleared,
		Approved:  true,
		PayeeName: &payee,
		ImportID:  &importID,
	}, nil
}

// Push creates every entry of the report that is missing remotely and
// returns how many were sent.
func (c *YNABClient) Push(budgetID, accountID string, report *reconcile.Report) (int, error) {
	toSync := report.ToSync()
	if len(toSync) == 0 {
		return 0, nil
	}

	payloads := make([]transaction.PayloadTransaction, 0, len(toSync))
	for _, e := range toSync {
		p, err := Payload(e, accountID)
		if err != nil {
			return 0, err
		}
		payloads = append(payloads, p)
	}

	if _, err := c.client.Transaction().CreateTransactions(budgetID, payloads); err != nil {
		return 0, fmt.Errorf("failed to create transactions: %w", err)
	}
	return len(payloads), nil
}
