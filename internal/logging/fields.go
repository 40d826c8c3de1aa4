package logging

import "log/slog"

// Common field names for consistent logging across components.
const (
	FieldService   = "service"
	FieldComponent = "component"
	FieldIP        = "ip"
	FieldError     = "error"
	FieldCallID    = "call_id"
	FieldDID       = "did"
	FieldCampaign  = "campaign"
	FieldTable     = "table"
	FieldBatch     = "batch_size"
	FieldReason    = "reason"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// Component returns a slog attribute for a subsystem name.
func Component(name string) slog.Attr {
	return slog.String(FieldComponent, name)
}

// IP returns a slog attribute for the client IP address.
func IP(ip string) slog.Attr {
	return slog.String(FieldIP, ip)
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// CallID returns a slog attribute for a call identifier.
func CallID(id string) slog.Attr {
	return slog.String(FieldCallID, id)
}

// DID returns a slog attribute for a normalized destination number.
func DID(did string) slog.Attr {
	return slog.String(FieldDID, did)
}

// Campaign returns a slog attribute for a campaign name.
func Campaign(name string) slog.Attr {
	return slog.String(FieldCampaign, name)
}

// Table returns a slog attribute for a remote table name.
func Table(name string) slog.Attr {
	return slog.String(FieldTable, name)
}

// BatchSize returns a slog attribute for a flush batch size.
func BatchSize(n int) slog.Attr {
	return slog.Int(FieldBatch, n)
}

// Reason returns a slog attribute for a drop/reject reason.
func Reason(r string) slog.Attr {
	return slog.String(FieldReason, r)
}
