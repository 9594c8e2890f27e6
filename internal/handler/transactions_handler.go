package handler

import (
	"encoding/json"
	"net/http"

	"github.com/boddenberg/finance-core/internal/domain"
	"github.com/boddenberg/finance-core/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Transactions
// ============================================================

func listTransactionsHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions")
		defer span.End()

		limit, err := parseLimit(r)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		txns, err := svc.List(ctx, UserIDFromContext(ctx), limit)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if txns == nil {
			txns = []domain.Transaction{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"transactions": txns})
	}
}

func getTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/transactions/{transactionId}")
		defer span.End()

		id := chi.URLParam(r, "transactionId")
		span.SetAttributes(attribute.String("transaction.id", id))

		txn, err := svc.Get(ctx, UserIDFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, txn)
	}
}

func createTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/transactions")
		defer span.End()

		var in domain.TransactionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.Create(ctx, UserIDFromContext(ctx), in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if result.MerchantError != "" {
			logger.Warn("transaction saved without merchant update",
				zap.String("transaction_id", result.Transaction.ID),
				zap.String("merchant_error", result.MerchantError),
			)
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

func updateTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/transactions/{transactionId}")
		defer span.End()

		id := chi.URLParam(r, "transactionId")
		span.SetAttributes(attribute.String("transaction.id", id))

		var in domain.TransactionInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.Update(ctx, UserIDFromContext(ctx), id, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func deleteTransactionHandler(svc *service.TransactionService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/transactions/{transactionId}")
		defer span.End()

		id := chi.URLParam(r, "transactionId")
		if err := svc.Delete(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "transaction deleted", ID: id})
	}
}

// ============================================================
// Statistics
// ============================================================

func statisticsHandler(svc *service.StatisticsAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/statistics")
		defer span.End()

		period, err := domain.ParsePeriod(r.URL.Query().Get("period"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		span.SetAttributes(attribute.String("statistics.period", string(period)))

		stats, err := svc.Calculate(ctx, UserIDFromContext(ctx), period)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, stats)
	}
}
