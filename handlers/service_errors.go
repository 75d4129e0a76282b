package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/expenso/policy-engine/services"
	"github.com/expenso/policy-engine/utils"
)

// HandleServiceError translates a service-layer error into an HTTP response.
// Domain errors map to their natural status codes; everything else is a 500.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var domainErr *services.DomainError
	if errors.As(err, &domainErr) {
		switch domainErr.Type {
		case services.ErrorTypeNotFound:
			_ = utils.WriteNotFound(w, domainErr.Message)
			return
		case services.ErrorTypeValidation:
			_ = utils.WriteBadRequest(w, domainErr.Message, domainErr.Details)
			return
		case services.ErrorTypeConflict:
			_ = utils.WriteConflict(w, domainErr.Message, domainErr.Details)
			return
		case services.ErrorTypeLedger:
			// The ledger is a hard dependency of limit checks; without it
			// the engine cannot answer correctly, so surface the outage.
			_ = utils.WriteServiceUnavailable(w, "Historical spending data is temporarily unavailable")
			return
		}
	}

	logger.Error("unhandled service error", zap.Error(err))
	_ = utils.WriteInternalServerError(w, "")
}

// HandleValidationError writes a 400 response with per-field details
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	fields := utils.GetValidationFields(err)
	details := make(map[string]interface{}, len(fields))
	for field, msg := range fields {
		details[field] = msg
	}

	logger.Debug("request validation failed", zap.Any("fields", details))
	_ = utils.WriteBadRequest(w, "Validation failed", details)
}
