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

type resolveMerchantResponse struct {
	Merchant *domain.Merchant `json:"merchant"`
	Created  bool             `json:"created"`
}

func listMerchantsHandler(svc *service.MerchantAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/merchants")
		defer span.End()

		merchants, err := svc.List(ctx, UserIDFromContext(ctx), r.URL.Query().Get("search"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if merchants == nil {
			merchants = []domain.Merchant{}
		}

		writeJSON(w, http.StatusOK, map[string]any{"merchants": merchants})
	}
}

func getMerchantHandler(svc *service.MerchantAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/merchants/{merchantId}")
		defer span.End()

		id := chi.URLParam(r, "merchantId")
		span.SetAttributes(attribute.String("merchant.id", id))

		m, err := svc.Get(ctx, UserIDFromContext(ctx), id)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, m)
	}
}

func resolveMerchantHandler(svc *service.MerchantAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/merchants/resolve")
		defer span.End()

		var sel domain.MerchantSelection
		if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		m, created, err := svc.ResolveMerchant(ctx, UserIDFromContext(ctx), sel)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		writeJSON(w, status, resolveMerchantResponse{Merchant: m, Created: created})
	}
}

func recordMerchantTransactionHandler(svc *service.MerchantAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/merchants/{merchantId}/transactions")
		defer span.End()

		id := chi.URLParam(r, "merchantId")
		span.SetAttributes(attribute.String("merchant.id", id))

		var rt domain.RecentTransaction
		if err := json.NewDecoder(r.Body).Decode(&rt); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		m, err := svc.RecordTransaction(ctx, UserIDFromContext(ctx), id, rt)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, m)
	}
}

func updateMerchantNoteHandler(svc *service.MerchantAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PUT /v1/merchants/{merchantId}/note")
		defer span.End()

		id := chi.URLParam(r, "merchantId")

		var note domain.MerchantNote
		if err := json.NewDecoder(r.Body).Decode(&note); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		m, err := svc.UpdateNote(ctx, UserIDFromContext(ctx), id, note)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, m)
	}
}

func deleteMerchantHandler(svc *service.MerchantAggregator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/merchants/{merchantId}")
		defer span.End()

		id := chi.URLParam(r, "merchantId")
		if err := svc.Delete(ctx, UserIDFromContext(ctx), id); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "merchant deleted", ID: id})
	}
}
