package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"finledger/internal/core"
)

const dateLayout = "2006-01-02"

func parseDate(s string) (time.Time, error) {
	return time.Parse(dateLayout, s)
}

// parseRange parses a [from, to] date pair, defaulting to the last 30
// days when both are empty.
func parseRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from, to := now.AddDate(0, 0, -30), now

	if fromStr != "" {
		parsed, err := parseDate(fromStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be YYYY-MM-DD")
		}
		from = parsed
	}
	if toStr != "" {
		parsed, err := parseDate(toStr)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be YYYY-MM-DD")
		}
		to = parsed.Add(24*time.Hour - time.Nanosecond)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, errors.New("to must not precede from")
	}
	return from, to, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return false
	}
	return true
}

// --- accounts ---

type accountPayload struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Source    string          `json:"source"`
	Balance   decimal.Decimal `json:"balance"`
	GroupID   *int64          `json:"group_id,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func toAccountPayload(a core.Account) accountPayload {
	p := accountPayload{
		ID:      a.ID,
		Name:    a.Name,
		Source:  a.Source,
		Balance: a.Balance,
		GroupID: a.GroupID,
	}
	if !a.UpdatedAt.IsZero() {
		t := a.UpdatedAt
		p.UpdatedAt = &t
	}
	return p
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.store.ListAccounts(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]accountPayload, 0, len(accounts))
	for _, a := range accounts {
		payload = append(payload, toAccountPayload(a))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name    string          `json:"name"`
		Source  string          `json:"source"`
		Balance decimal.Decimal `json:"balance"`
		GroupID *int64          `json:"group_id"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Source == "" {
		req.Source = core.SourceManual
	}

	account := &core.Account{
		Name:      req.Name,
		Source:    req.Source,
		Balance:   req.Balance,
		GroupID:   req.GroupID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateAccount(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toAccountPayload(*account))
}

// --- categories ---

type categoryPayload struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Count  int64           `json:"tx_count"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.store.ListCategories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]categoryPayload, 0, len(categories))
	for _, c := range categories {
		payload = append(payload, categoryPayload{Name: c.Name, Amount: c.Amount, Count: c.Count})
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- budgets ---

type budgetPayload struct {
	ID             int64           `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category,omitempty"`
	Limit          decimal.Decimal `json:"limit"`
	Spent          decimal.Decimal `json:"spent"`
	Remaining      decimal.Decimal `json:"remaining"`
	Usage          decimal.Decimal `json:"usage_percentage"`
	Alerting       bool            `json:"alerting"`
	Frequency      string          `json:"frequency"`
	StartDate      time.Time       `json:"start_date"`
	EndDate        *time.Time      `json:"end_date,omitempty"`
	AlertThreshold float64         `json:"alert_threshold"`
	Description    string          `json:"description,omitempty"`
}

func toBudgetPayload(b core.Budget) budgetPayload {
	p := budgetPayload{
		ID:             b.ID,
		Name:           b.Name,
		Category:       b.Category,
		Limit:          b.Limit,
		Spent:          b.Spent,
		Remaining:      b.Remaining(),
		Usage:          b.UsagePercentage(),
		Alerting:       b.ShouldAlert(),
		Frequency:      string(b.Frequency),
		StartDate:      b.StartDate,
		AlertThreshold: b.AlertThreshold,
		Description:    b.Description,
	}
	if !b.EndDate.IsZero() {
		t := b.EndDate
		p.EndDate = &t
	}
	return p
}

func (s *Server) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	budgets, err := s.store.ListActiveBudgets(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]budgetPayload, 0, len(budgets))
	for _, b := range budgets {
		payload = append(payload, toBudgetPayload(b))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateBudget(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name           string          `json:"name"`
		Category       string          `json:"category"`
		Limit          decimal.Decimal `json:"limit"`
		Frequency      string          `json:"frequency"`
		StartDate      string          `json:"start_date"`
		AlertThreshold *float64        `json:"alert_threshold"`
		Description    string          `json:"description"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start_date must be YYYY-MM-DD"})
		return
	}
	threshold := core.DefaultAlertThreshold
	if req.AlertThreshold != nil {
		threshold = *req.AlertThreshold
	}
	frequency := core.Frequency(req.Frequency)

	budget := &core.Budget{
		Name:           req.Name,
		Category:       req.Category,
		Limit:          req.Limit,
		Frequency:      frequency,
		StartDate:      start,
		EndDate:        frequency.Advance(start, 1),
		Active:         true,
		AlertThreshold: threshold,
		Description:    req.Description,
	}
	if err := s.store.CreateBudget(r.Context(), budget); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBudgetPayload(*budget))
}

// --- recurring ---

type recurringPayload struct {
	ID              int64           `json:"id"`
	Description     string          `json:"description"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category,omitempty"`
	AccountID       int64           `json:"account_id"`
	Frequency       string          `json:"frequency"`
	Interval        int             `json:"interval"`
	StartDate       time.Time       `json:"start_date"`
	EndDate         *time.Time      `json:"end_date,omitempty"`
	NextOccurrence  time.Time       `json:"next_occurrence"`
	LastOccurrence  *time.Time      `json:"last_occurrence,omitempty"`
	OccurrenceCount int64           `json:"occurrence_count"`
	AutoExecute     bool            `json:"auto_execute"`
	Notes           string          `json:"notes,omitempty"`
}

func toRecurringPayload(rec core.RecurringTransaction) recurringPayload {
	p := recurringPayload{
		ID:              rec.ID,
		Description:     rec.Description,
		Amount:          rec.Amount,
		Category:        rec.Category,
		AccountID:       rec.AccountID,
		Frequency:       string(rec.Frequency),
		Interval:        rec.Interval,
		StartDate:       rec.StartDate,
		NextOccurrence:  rec.NextOccurrence,
		OccurrenceCount: rec.OccurrenceCount,
		AutoExecute:     rec.AutoExecute,
		Notes:           rec.Notes,
	}
	if !rec.EndDate.IsZero() {
		t := rec.EndDate
		p.EndDate = &t
	}
	if !rec.LastOccurrence.IsZero() {
		t := rec.LastOccurrence
		p.LastOccurrence = &t
	}
	return p
}

func (s *Server) handleListRecurring(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.ListActiveRecurring(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]recurringPayload, 0, len(recs))
	for _, rec := range recs {
		payload = append(payload, toRecurringPayload(rec))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		AccountID   int64           `json:"account_id"`
		Frequency   string          `json:"frequency"`
		Interval    int             `json:"interval"`
		StartDate   string          `json:"start_date"`
		EndDate     string          `json:"end_date"`
		AutoExecute bool            `json:"auto_execute"`
		Notes       string          `json:"notes"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	start, err := parseDate(req.StartDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start_date must be YYYY-MM-DD"})
		return
	}
	var end time.Time
	if req.EndDate != "" {
		if end, err = parseDate(req.EndDate); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "end_date must be YYYY-MM-DD"})
			return
		}
	}
	if req.Interval == 0 {
		req.Interval = 1
	}

	rec := &core.RecurringTransaction{
		Description:    req.Description,
		Amount:         req.Amount,
		Category:       req.Category,
		AccountID:      req.AccountID,
		Frequency:      core.Frequency(req.Frequency),
		Interval:       req.Interval,
		StartDate:      start,
		EndDate:        end,
		NextOccurrence: start,
		IsActive:       true,
		AutoExecute:    req.AutoExecute,
		Notes:          req.Notes,
	}
	if err := s.store.CreateRecurring(r.Context(), rec); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecurringPayload(*rec))
}

// --- reconciliation rules ---

type rulePayload struct {
	ID                   int64   `json:"id"`
	Name                 string  `json:"name"`
	SourceAccountID      int64   `json:"source_account_id"`
	TargetAccountID      int64   `json:"target_account_id"`
	CounterpartyPattern  string  `json:"counterparty_pattern,omitempty"`
	AccountPattern       string  `json:"account_pattern,omitempty"`
	MaxDaysDifference    int     `json:"max_days_difference"`
	MaxCommissionPercent float64 `json:"max_commission_percent"`
	CommissionCategory   string  `json:"commission_category,omitempty"`
}

func toRulePayload(rule core.ReconciliationRule) rulePayload {
	return rulePayload{
		ID:                   rule.ID,
		Name:                 rule.Name,
		SourceAccountID:      rule.SourceAccountID,
		TargetAccountID:      rule.TargetAccountID,
		CounterpartyPattern:  rule.CounterpartyPattern,
		AccountPattern:       rule.AccountPattern,
		MaxDaysDifference:    rule.MaxDaysDifference,
		MaxCommissionPercent: rule.MaxCommissionPercent,
		CommissionCategory:   rule.CommissionCategory,
	}
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rules, err := s.store.ListActiveRules(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]rulePayload, 0, len(rules))
	for _, rule := range rules {
		payload = append(payload, toRulePayload(rule))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req rulePayload
	if !decodeBody(w, r, &req) {
		return
	}

	rule := core.ReconciliationRule{
		Name:                 req.Name,
		SourceAccountID:      req.SourceAccountID,
		TargetAccountID:      req.TargetAccountID,
		CounterpartyPattern:  req.CounterpartyPattern,
		AccountPattern:       req.AccountPattern,
		MaxDaysDifference:    req.MaxDaysDifference,
		MaxCommissionPercent: req.MaxCommissionPercent,
		Active:               true,
		CommissionCategory:   req.CommissionCategory,
	}
	if rule.MaxDaysDifference == 0 {
		rule.MaxDaysDifference = core.DefaultMaxDaysDifference
	}
	if rule.MaxCommissionPercent == 0 {
		rule.MaxCommissionPercent = core.DefaultMaxCommissionPercent
	}
	if err := s.store.CreateRule(r.Context(), &rule); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRulePayload(rule))
}

// --- transactions ---

type transactionPayload struct {
	TransactionID      string          `json:"transaction_id"`
	AccountID          int64           `json:"account_id,omitempty"`
	Date               time.Time       `json:"date"`
	Amount             decimal.Decimal `json:"amount"`
	Description        string          `json:"description,omitempty"`
	Category           string          `json:"category,omitempty"`
	Source             string          `json:"source,omitempty"`
	TransferID         string          `json:"transfer_id,omitempty"`
	Status             string          `json:"status"`
	TransferCommission decimal.Decimal `json:"transfer_commission"`
}

func toTransactionPayload(tx core.Transaction, accountID int64) transactionPayload {
	return transactionPayload{
		TransactionID:      tx.TransactionID,
		AccountID:          accountID,
		Date:               tx.Date,
		Amount:             tx.Amount,
		Description:        tx.Description,
		Category:           tx.Category,
		Source:             tx.Source,
		TransferID:         tx.TransferID,
		Status:             string(tx.Status),
		TransferCommission: tx.TransferCommission,
	}
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	accountID, err := strconv.ParseInt(q.Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "account_id is required"})
		return
	}

	from, to, err := parseRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	txs, err := s.store.ListTransactions(r.Context(), accountID, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]transactionPayload, 0, len(txs))
	for _, tx := range txs {
		payload = append(payload, toTransactionPayload(tx.Transaction, tx.AccountID))
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID   int64           `json:"account_id"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Description string          `json:"description"`
		Date        string          `json:"date"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	date := time.Now().UTC()
	if req.Date != "" {
		var err error
		if date, err = parseDate(req.Date); err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "date must be YYYY-MM-DD"})
			return
		}
	}

	tx, err := s.ledger.RecordManualTransaction(r.Context(), req.AccountID, req.Amount, req.Category, req.Description, date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTransactionPayload(*tx, req.AccountID))
}

// --- planned ---

type plannedPayload struct {
	ID                    string          `json:"id"`
	RecurringID           int64           `json:"recurring_id,omitempty"`
	AccountID             int64           `json:"account_id"`
	Amount                decimal.Decimal `json:"amount"`
	Category              string          `json:"category,omitempty"`
	Description           string          `json:"description,omitempty"`
	DueDate               time.Time       `json:"due_date"`
	Status                string          `json:"status"`
	RealizedTransactionID string          `json:"realized_transaction_id,omitempty"`
}

func toPlannedPayload(p core.PlannedTransaction) plannedPayload {
	return plannedPayload{
		ID:                    p.ID,
		RecurringID:           p.RecurringID,
		AccountID:             p.AccountID,
		Amount:                p.Amount,
		Category:              p.Category,
		Description:           p.Description,
		DueDate:               p.DueDate,
		Status:                string(p.Status),
		RealizedTransactionID: p.RealizedTransactionID,
	}
}

func (s *Server) handleListPlanned(w http.ResponseWriter, r *http.Request) {
	dueBy := time.Now().UTC().AddDate(0, 1, 0)
	if v := r.URL.Query().Get("due_by"); v != "" {
		parsed, err := parseDate(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: "due_by must be YYYY-MM-DD"})
			return
		}
		dueBy = parsed
	}

	plans, err := s.store.ListPendingPlanned(r.Context(), dueBy)
	if err != nil {
		writeError(w, err)
		return
	}
	payload := make([]plannedPayload, 0, len(plans))
	for _, p := range plans {
		payload = append(payload, toPlannedPayload(p))
	}
	writeJSON(w, http.StatusOK, payload)
}

// --- sync trigger ---

func (s *Server) handleTriggerSync(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID int64  `json:"account_id"`
		From      string `json:"from"`
		To        string `json:"to"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	from, to, err := parseRange(req.From, req.To)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	// The account must exist before we queue work for it.
	if _, err := s.store.GetAccount(r.Context(), req.AccountID); err != nil {
		writeError(w, err)
		return
	}

	if err := s.sync.PublishSyncRequest(r.Context(), req.AccountID, from, to); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"account_id": req.AccountID,
		"from":       from,
		"to":         to,
		"status":     "queued",
	})
}
