package log

// Common field names for structured logging
const (
	FieldComponent  = "component"
	FieldRequestID  = "request_id"
	FieldClientIP   = "client_ip"
	FieldMethod     = "method"
	FieldPath       = "path"
	FieldStatusCode = "status_code"
	FieldDuration   = "duration_ms"
	FieldError      = "error"
	FieldOperation  = "operation"

	FieldAccountID   = "account_id"
	FieldBudgetID    = "budget_id"
	FieldRecurringID = "recurring_id"
	FieldTransferID  = "transfer_id"
	FieldCategory    = "category"
	FieldAmount      = "amount"
	FieldHash        = "hash"
	FieldProvider    = "provider"
)

// Components defines standard component names
const (
	ComponentApp       = "app"
	ComponentHTTP      = "http"
	ComponentStorage   = "storage"
	ComponentAMQP      = "amqp"
	ComponentSync      = "sync"
	ComponentIngest    = "ingest"
	ComponentReconcile = "reconcile"
	ComponentRecurring = "recurring"
	ComponentBudget    = "budget"
	ComponentProvider  = "provider"
	ComponentCache     = "cache"
)

// Operations defines standard operation names
const (
	OpCreate    = "create"
	OpRead      = "read"
	OpUpdate    = "update"
	OpList      = "list"
	OpSync      = "sync"
	OpIngest    = "ingest"
	OpReconcile = "reconcile"
	OpExecute   = "execute"
	OpValidate  = "validate"
	OpStartup   = "startup"
	OpShutdown  = "shutdown"
)
