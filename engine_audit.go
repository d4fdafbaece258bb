package tokenAuth

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/tokenAuth/internal/audit"
)

const (
	auditEventLoginSuccess            = internalaudit.TypeLoginSuccess
	auditEventLoginFailure            = internalaudit.TypeLoginFailure
	auditEventLoginRateLimited        = internalaudit.TypeLoginRateLimited
	auditEventRefreshSuccess          = internalaudit.TypeRefreshSuccess
	auditEventRefreshExpired          = internalaudit.TypeRefreshExpired
	auditEventRefreshInvalid          = internalaudit.TypeRefreshInvalid
	auditEventRefreshReplayed         = internalaudit.TypeRefreshReplayed
	auditEventRefreshFamilyRevoked    = internalaudit.TypeRefreshFamilyRevoked
	auditEventRefreshRevoked          = internalaudit.TypeRefreshRevoked
	auditEventAccessSignatureMismatch = internalaudit.TypeAccessSignatureMismatch
	auditEventAccessKindMismatch      = internalaudit.TypeAccessKindMismatch
)

// AuditErrorCode is the stable error label stored in AuditEvent.Error.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrRefreshReplayed    AuditErrorCode = "refresh_replayed"
	auditErrExpired            AuditErrorCode = "expired"
	auditErrSignature          AuditErrorCode = "signature_mismatch"
	auditErrKindMismatch       AuditErrorCode = "kind_mismatch"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	subject string,
	tokenID string,
	family string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.Now().UTC(),
		EventType: eventType,
		Subject:   subject,
		TokenID:   tokenID,
		Family:    family,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials), errors.Is(err, ErrUserNotFound):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrLoginRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrRefreshReplayed):
		return auditErrRefreshReplayed
	case errors.Is(err, ErrTokenExpired):
		return auditErrExpired
	case errors.Is(err, ErrTokenSignature):
		return auditErrSignature
	case errors.Is(err, ErrTokenKindMismatch):
		return auditErrKindMismatch
	case errors.Is(err, ErrTokenMalformed), errors.Is(err, ErrRefreshInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrLedgerUnavailable), errors.Is(err, ErrIdentitySourceUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
