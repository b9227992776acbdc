package core

// error_messages.go maps technical errors to user-facing messages with a
// support code. Users quote the code; support looks it up here.
//
//	DB001  duplicate natural key          DB003  foreign key violation
//	DB004  database unreachable           DB006  database timeout
//	DB007  deadlock / serialization
//	VAL001 missing required field         VAL002 wrong value type
//	VAL003 value not in allowed list      VAL004 value out of range
//	VAL005 required columns missing       VAL006 referenced record missing
//	FILE001 file too large                FILE002 unreadable file
//	FILE003 unsupported file type         FILE004 no file in request
//	FILE005 empty file
//	UPL001 batch cancelled                UPL002 queue full
//	UPL003 batch not found                UPL004 request cancelled
//	UPL005 request timeout                UPL006 batch already finished
//	UPL007 service shutting down          UPL008 batch still importing
//	UPL009 upload file already removed
//	ENT001 unknown entity type            AUD001 audit entry not found
//	RATE001 rate limited
//	ERR000 anything else, see the logs
//
// Typed errors are matched first with errors.Is/As; plain errors fall back to
// case-insensitive substring patterns where the first match wins.

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"` // What happened
	Action  string `json:"action"`  // What to do about it
	Code    string `json:"code"`    // Support reference
}

var (
	msgDuplicate      = UserMessage{"A record with this ID already exists", "Remove or correct the duplicate rows and upload them again", "DB001"}
	msgForeignKey     = UserMessage{"Referenced record does not exist", "Import the parent records (customers, agents, policies) first", "DB003"}
	msgDBUnavailable  = UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}
	msgDBTimeout      = UserMessage{"Operation timed out", "Try a smaller file or try again later", "DB006"}
	msgDeadlock       = UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}
	msgMissingField   = UserMessage{"Required field is empty", "Fill in every required column for each row", "VAL001"}
	msgTypeMismatch   = UserMessage{"A value has the wrong format", "Use YYYY-MM-DD for dates and plain numbers for amounts", "VAL002"}
	msgEnum           = UserMessage{"Value is not in the allowed list", "Check the allowed values for this field", "VAL003"}
	msgRange          = UserMessage{"Value is out of range", "Amounts must be positive; fees and deductibles cannot be negative", "VAL004"}
	msgMissingColumns = UserMessage{"Required columns are missing from the file", "Check the header row against the column list for this data type", "VAL005"}
	msgReference      = UserMessage{"Referenced record does not exist", "Import the parent records first or correct the reference", "VAL006"}
	msgTooLarge       = UserMessage{"File exceeds the maximum size limit", "Split the file into smaller files", "FILE001"}
	msgUnreadable     = UserMessage{"The file could not be read", "Save the file as .xlsx or UTF-8 .csv and try again", "FILE002"}
	msgUnsupported    = UserMessage{"Unsupported file type", "Upload an .xlsx, .xlsm or .csv file", "FILE003"}
	msgNoFile         = UserMessage{"No file was provided", "Attach the spreadsheet in the \"file\" form field", "FILE004"}
	msgEmptyFile      = UserMessage{"The uploaded file is empty", "Upload a file with a header row and data rows", "FILE005"}
	msgCancelled      = UserMessage{"Import was cancelled", "Submit the file again when ready", "UPL001"}
	msgBusy           = UserMessage{"Too many uploads in progress", "Please wait a moment and try again", "UPL002"}
	msgBatchNotFound  = UserMessage{"Import batch not found", "Check the batch ID returned by the upload", "UPL003"}
	msgReqCancelled   = UserMessage{"Request was cancelled", "Please try again", "UPL004"}
	msgReqTimeout     = UserMessage{"Request timed out", "Try a smaller file or check your connection", "UPL005"}
	msgFinished       = UserMessage{"Import batch has already finished", "No action needed", "UPL006"}
	msgShuttingDown   = UserMessage{"The service is restarting", "Please try again shortly", "UPL007"}
	msgBatchActive    = UserMessage{"Import batch is still running", "Wait for the batch to finish or cancel it first", "UPL008"}
	msgUploadGone     = UserMessage{"The uploaded file is no longer stored", "No action needed; the batch record and audit log are kept", "UPL009"}
	msgUnknownEntity  = UserMessage{"Unknown data type", "Use one of: customers, agents, policies, payments, receipts, claims", "ENT001"}
	msgAuditNotFound  = UserMessage{"Audit entry not found", "Check the audit entry ID", "AUD001"}
	msgRateLimited    = UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}
)

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// ErrNoFile is returned by transports when a request carries no file.
var ErrNoFile = errors.New("no file provided")

// ErrRateLimited is returned by transports when a client is throttled.
var ErrRateLimited = errors.New("rate limit exceeded")

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns match untyped errors. Specific patterns come first.
var errorPatterns = []errorPattern{
	{"duplicate key", msgDuplicate},
	{"violates unique", msgDuplicate},
	{"foreign key", msgForeignKey},
	{"connection refused", msgDBUnavailable},
	{"connection reset", msgDBUnavailable},
	{"deadlock", msgDeadlock},
	{"could not serialize", msgDeadlock},
	{"timeout", msgDBTimeout},
	{"invalid byte sequence", msgUnreadable},
}

// MapError converts an error to a user-facing message.
// Returns the zero UserMessage for nil and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	var verr *ValidationError
	if errors.As(err, &verr) {
		switch verr.Kind {
		case MissingField:
			return msgMissingField
		case TypeMismatch:
			return msgTypeMismatch
		case EnumViolation:
			return msgEnum
		case RangeViolation:
			return msgRange
		}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return msgDuplicate
		case pgErr.Code == "23503":
			return msgForeignKey
		case pgErr.Code == "40001" || pgErr.Code == "40P01":
			return msgDeadlock
		case pgErr.Code == "57014":
			return msgDBTimeout
		case strings.HasPrefix(pgErr.Code, "08"):
			return msgDBUnavailable
		}
	}

	var perr *ParseError
	if errors.As(err, &perr) && strings.HasPrefix(perr.Msg, "missing required columns") {
		return msgMissingColumns
	}

	switch {
	case errors.Is(err, ErrParse):
		return msgUnreadable
	case errors.Is(err, ErrValidation):
		return msgTypeMismatch
	case errors.Is(err, ErrReferenceNotFound):
		return msgReference
	case errors.Is(err, ErrFileTooLarge):
		return msgTooLarge
	case errors.Is(err, ErrUnsupportedFile):
		return msgUnsupported
	case errors.Is(err, ErrNoFile):
		return msgNoFile
	case errors.Is(err, ErrEmptyFile):
		return msgEmptyFile
	case errors.Is(err, ErrTooManyUploads):
		return msgBusy
	case errors.Is(err, ErrBatchNotFound):
		return msgBatchNotFound
	case errors.Is(err, ErrBatchFinished):
		return msgFinished
	case errors.Is(err, ErrBatchActive):
		return msgBatchActive
	case errors.Is(err, ErrUploadNotFound):
		return msgUploadGone
	case errors.Is(err, ErrServiceClosed):
		return msgShuttingDown
	case errors.Is(err, ErrUnknownEntity):
		return msgUnknownEntity
	case errors.Is(err, ErrAuditNotFound):
		return msgAuditNotFound
	case errors.Is(err, ErrRateLimited):
		return msgRateLimited
	case errors.Is(err, context.Canceled):
		return msgReqCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return msgReqTimeout
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// CancelledMessage is the message shown for batches with outcome cancelled.
func CancelledMessage() UserMessage {
	return msgCancelled
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific message rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
