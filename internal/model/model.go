package model

import "time"

// Print event results as reported by clients.
const (
	ResultSuccess        = "success"
	ResultFail           = "fail"
	ResultSuccessReprint = "success_reprint"
)

// Tracking aggregate print states.
const (
	StatusNotPrinted = "not_printed"
	StatusPrinted    = "printed"
	StatusReprinted  = "reprinted"
)

// Input kinds a client can scan.
const (
	InputKindOrder    = "order"
	InputKindTracking = "tracking"
)

// Job lifecycle states.
const (
	JobStatePending   = "PENDING"
	JobStateRunning   = "RUNNING"
	JobStateCompleted = "COMPLETED"
	JobStateFailed    = "FAILED"
)

type AdminUser struct {
	ID           string
	Username     string
	PasswordHash string
	CreatedAt    time.Time
}

type Session struct {
	ID        string
	AdminID   string
	CreatedAt time.Time
	ExpiresAt time.Time
}

type AccessCode struct {
	ID           int64
	CodeHash     string
	CodePlain    string
	Description  string
	Active       bool
	FailureCount int
	LockedUntil  *time.Time
	LastUsed     *time.Time
	CreatedAt    time.Time
}

type PrintEvent struct {
	ID            int64
	AccessCodeID  int64
	InputKind     string
	CodeValue     string
	OrderID       string
	TrackingNo    string
	Result        string
	ReprintReason string
	Host          string
	User          string
	ClientVersion string
	PrinterName   string
	MACList       []string
	IPList        []string
	PDFSHA256     string
	ClientIP      string
	CreatedAt     time.Time
}

// TrackingFile is the per-tracking-number aggregate row. It doubles as the
// bookkeeping record for the label PDF on disk (file_path, uploaded_at);
// a row may exist with an empty file_path when a print was reported for a
// tracking number that was never imported.
type TrackingFile struct {
	TrackingNo          string
	FilePath            string
	UploadedAt          *time.Time
	PrintStatus         string
	PrintCount          int
	FirstPrintTime      *time.Time
	LastPrintTime       *time.Time
	LastPrintClientName string
}

type OrderMapping struct {
	OrderID       string
	CustomerOrder string
	TrackingNo    string
	UpdatedAt     time.Time
}

type Job struct {
	ID            string
	Kind          string
	Payload       string
	State         string
	Phase         string
	ProgressDone  int
	ProgressTotal int
	Result        string
	ErrorMessage  string
	CreatedAt     time.Time
	StartedAt     *time.Time
	FinishedAt    *time.Time
}
