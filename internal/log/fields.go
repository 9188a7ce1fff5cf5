package log

// Common field names for structured logging
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldClientIP    = "client_ip"
	FieldMethod      = "method"
	FieldPath        = "path"
	FieldQuery       = "query"
	FieldStatusCode  = "status_code"
	FieldDuration    = "duration_ms"
	FieldUserAgent   = "user_agent"
	FieldSuccess     = "success"
	FieldError       = "error"
	FieldErrorType   = "error_type"
	FieldOperation   = "operation"
	FieldUserID      = "user_id"
	FieldYear        = "year"
	FieldMonth       = "month"
	FieldAmount      = "amount"
	FieldCategory    = "category"
	FieldFrequency   = "frequency"
	FieldGroupID     = "group_id"
	FieldTxCount     = "transaction_count"
	FieldXP          = "xp"
	FieldLevel       = "level"
	FieldStreak      = "streak"
	FieldCycle       = "savings_cycle"
	FieldDocPath     = "doc_path"
	FieldSpreadsheet = "spreadsheet"
)

// Components defines standard component names
const (
	ComponentApp         = "app"
	ComponentHTTP        = "http"
	ComponentAuth        = "auth"
	ComponentProfile     = "profile"
	ComponentSavings     = "savings"
	ComponentStreak      = "streak"
	ComponentTransaction = "transaction"
	ComponentDashboard   = "dashboard"
	ComponentStorage     = "storage"
	ComponentMongo       = "mongo"
	ComponentAMQP        = "amqp"
	ComponentWorker      = "worker"
	ComponentSheets      = "sheets"
	ComponentCache       = "cache"
	ComponentRateLimit   = "rate_limit"
	ComponentBackend     = "backend"
	ComponentDiagnostics = "diagnostics"
)

// Operations defines standard operation names
const (
	OpCreate   = "create"
	OpGet      = "get"
	OpUpdate   = "update"
	OpDelete   = "delete"
	OpList     = "list"
	OpAppend   = "append"
	OpPublish  = "publish"
	OpConsume  = "consume"
	OpDeposit  = "deposit"
	OpAudit    = "audit"
	OpValidate = "validate"
	OpShutdown = "shutdown"
	OpStartup  = "startup"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeConfiguration = "configuration_error"
	ErrorTypeDatabase      = "database_error"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeAuth          = "auth_error"
	ErrorTypePermission    = "permission_error"
	ErrorTypeNotFound      = "not_found_error"
	ErrorTypeInternal      = "internal_error"
)

// LogFields provides a builder pattern for structured log fields
type LogFields map[string]any

// NewFields creates a new LogFields instance
func NewFields() LogFields {
	return make(LogFields)
}

func (f LogFields) WithComponent(component string) LogFields {
	f[FieldComponent] = component
	return f
}

func (f LogFields) WithRequestID(requestID string) LogFields {
	f[FieldRequestID] = requestID
	return f
}

func (f LogFields) WithClientIP(ip string) LogFields {
	f[FieldClientIP] = ip
	return f
}

// WithError adds the error message; nil errors are skipped.
func (f LogFields) WithError(err error) LogFields {
	if err != nil {
		f[FieldError] = err.Error()
	}
	return f
}

func (f LogFields) WithErrorType(errType string) LogFields {
	f[FieldErrorType] = errType
	return f
}

func (f LogFields) WithOperation(op string) LogFields {
	f[FieldOperation] = op
	return f
}

func (f LogFields) WithUser(uid string) LogFields {
	f[FieldUserID] = uid
	return f
}

// WithTransaction adds the fields describing a transaction batch.
func (f LogFields) WithTransaction(category string, amount float64, frequency string, count int) LogFields {
	f[FieldCategory] = category
	f[FieldAmount] = amount
	f[FieldFrequency] = frequency
	f[FieldTxCount] = count
	return f
}

// WithProgress adds the gamification state of a profile.
func (f LogFields) WithProgress(xp float64, level, streak, cycle int) LogFields {
	f[FieldXP] = xp
	f[FieldLevel] = level
	f[FieldStreak] = streak
	f[FieldCycle] = cycle
	return f
}

func (f LogFields) WithHTTPRequest(method, path, query, userAgent string) LogFields {
	f[FieldMethod] = method
	f[FieldPath] = path
	f[FieldQuery] = query
	f[FieldUserAgent] = userAgent
	return f
}

func (f LogFields) WithHTTPResponse(statusCode int, durationMs int64, success bool) LogFields {
	f[FieldStatusCode] = statusCode
	f[FieldDuration] = durationMs
	f[FieldSuccess] = success
	return f
}

// ToSlice converts LogFields to a slice for slog
func (f LogFields) ToSlice() []any {
	slice := make([]any, 0, len(f)*2)
	for k, v := range f {
		slice = append(slice, k, v)
	}
	return slice
}
